package ddl_test

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"

	"github.com/Arkanys/chronomodel/pkg/temporal"
	"github.com/Arkanys/chronomodel/pkg/temporal/ddl"
	"github.com/Arkanys/chronomodel/pkg/temporal/history"
	"github.com/Arkanys/chronomodel/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	flag.Parse()
	code := m.Run()
	testutil.IntegrationCleanup()
	os.Exit(code)
}

func setupEngine(t *testing.T) (*temporal.Engine, *ddl.Adapter) {
	t.Helper()
	database, _ := testutil.IntegrationDB(t)
	engine, err := temporal.NewEngine(context.Background(), database)
	require.NoError(t, err)
	return engine, ddl.NewAdapter(engine)
}

var foosSpec = ddl.TableSpec{
	Name:       "foos",
	PrimaryKey: "id",
	Columns:    []ddl.ColumnSpec{{Name: "name", Type: "varchar"}},
}

func TestCreateTableRequiresPrimaryKey(t *testing.T) {
	_, adapter := setupEngine(t)
	err := adapter.CreateTable(context.Background(), ddl.TableSpec{
		Name:    "nopk",
		Columns: []ddl.ColumnSpec{{Name: "name", Type: "varchar"}},
	}, ddl.CreateTableOptions{Temporal: true})
	assert.ErrorIs(t, err, temporal.ErrPrimaryKeyRequired)
}

func TestCreateTableObjectSet(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))

	isTemporal, err := engine.IsTemporal(ctx, "foos")
	require.NoError(t, err)
	assert.True(t, isTemporal)

	var relkind string
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &relkind,
		`SELECT relkind::text FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		  WHERE n.nspname = 'public' AND c.relname = 'foos'`))
	assert.Equal(t, "v", relkind)

	var rules int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &rules,
		`SELECT COUNT(*) FROM pg_rules WHERE schemaname = 'public' AND tablename = 'foos'`))
	assert.EqualValues(t, 3, rules)
}

func TestVersionChain(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))

	exec := func(query string, args ...interface{}) {
		t.Helper()
		_, err := engine.DB.Exec(ctx, query, args...)
		testutil.MustDo(t, query, err)
	}

	exec(`INSERT INTO "foos" ( "name" ) VALUES ( $1 )`, "a")
	time.Sleep(20 * time.Millisecond)
	exec(`UPDATE "foos" SET "name" = $1`, "b")
	time.Sleep(20 * time.Millisecond)
	exec(`UPDATE "foos" SET "name" = $1`, "c")

	var id int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &id, `SELECT "id" FROM "foos"`))

	foos := temporal.NewEntity("foos", "name")
	hist := history.New(engine, foos)
	versions, err := hist.Of(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	assert.Equal(t, "a", versions[0].Attributes["name"])
	assert.Equal(t, "b", versions[1].Attributes["name"])
	assert.Equal(t, "c", versions[2].Attributes["name"])

	// Adjacent versions touch: the close of one version is the birth of the
	// next, with no gap.
	assert.True(t, versions[0].ValidTo.Equal(versions[1].ValidFrom))
	assert.True(t, versions[1].ValidTo.Equal(versions[2].ValidFrom))
	assert.True(t, versions[2].ValidTo.Equal(history.TimeInfinity))

	// Exactly one open version per live record.
	var open int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &open,
		`SELECT COUNT(*) FROM "history"."foos" WHERE "id" = $1 AND valid_to = '9999-12-31'`, id))
	assert.EqualValues(t, 1, open)
}

func TestDeletePreservesHistory(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))

	_, err := engine.DB.Exec(ctx, `INSERT INTO "foos" ( "name" ) VALUES ( 'a' )`)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = engine.DB.Exec(ctx, `DELETE FROM "foos"`)
	require.NoError(t, err)

	var live int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &live, `SELECT COUNT(*) FROM "foos"`))
	assert.Zero(t, live)

	var trail int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &trail, `SELECT COUNT(*) FROM "history"."foos"`))
	assert.EqualValues(t, 1, trail)

	var open int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &open,
		`SELECT COUNT(*) FROM "history"."foos" WHERE valid_to = '9999-12-31'`))
	assert.Zero(t, open)
}

func TestDropTableRemovesEverything(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))

	for i := 0; i < 3; i++ {
		_, err := engine.DB.Exec(ctx, `INSERT INTO "foos" ( "name" ) VALUES ( 'x' )`)
		require.NoError(t, err)
	}
	testutil.Must(t, adapter.DropTable(ctx, "foos"))

	var leftovers int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &leftovers,
		`SELECT COUNT(*) FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		  WHERE c.relname = 'foos' AND n.nspname IN ('temporal', 'history', 'public')`))
	assert.Zero(t, leftovers)

	isTemporal, err := engine.IsTemporal(ctx, "foos")
	require.NoError(t, err)
	assert.False(t, isTemporal)
}

func TestRenameTable(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))
	testutil.Must(t, adapter.RenameTable(ctx, "foos", "bars"))

	_, err := engine.DB.Exec(ctx, `INSERT INTO "bars" ( "name" ) VALUES ( 'a' )`)
	require.NoError(t, err)

	isTemporal, err := engine.IsTemporal(ctx, "bars")
	require.NoError(t, err)
	assert.True(t, isTemporal)
	_, known := engine.Cache.Lookup("foos")
	assert.False(t, known)
}

func TestAddColumnRebuildRules(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))
	testutil.Must(t, adapter.AddColumn(ctx, "foos", ddl.ColumnSpec{Name: "email", Type: "varchar"}))

	_, err := engine.DB.Exec(ctx, `INSERT INTO "foos" ( "name", "email" ) VALUES ( 'a', 'a@x' )`)
	require.NoError(t, err)

	var email string
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &email, `SELECT "email" FROM "history"."foos"`))
	assert.Equal(t, "a@x", email)
}

func TestRemoveColumn(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	spec := foosSpec
	spec.Columns = []ddl.ColumnSpec{{Name: "name", Type: "varchar"}, {Name: "junk", Type: "varchar"}}
	testutil.Must(t, adapter.CreateTable(ctx, spec, ddl.CreateTableOptions{Temporal: true}))
	testutil.Must(t, adapter.RemoveColumn(ctx, "foos", "junk"))

	defs, err := adapter.Columns(ctx, "foos")
	require.NoError(t, err)
	names := columnNames(defs)
	assert.Equal(t, []string{"id", "name"}, names)

	_, err = engine.DB.Exec(ctx, `INSERT INTO "foos" ( "name" ) VALUES ( 'a' )`)
	require.NoError(t, err)
}

func TestUniqueIndexStripping(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	spec := foosSpec
	spec.Columns = []ddl.ColumnSpec{{Name: "name", Type: "varchar"}, {Name: "email", Type: "varchar"}}
	testutil.Must(t, adapter.CreateTable(ctx, spec, ddl.CreateTableOptions{Temporal: true}))
	testutil.Must(t, adapter.AddIndex(ctx, "foos", "foos_email_idx", []string{"email"}, true))

	var currentDef, historyDef string
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &currentDef,
		`SELECT indexdef FROM pg_indexes WHERE schemaname = 'temporal' AND indexname = 'foos_email_idx'`))
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &historyDef,
		`SELECT indexdef FROM pg_indexes WHERE schemaname = 'history' AND indexname = 'foos_email_idx'`))

	assert.Contains(t, currentDef, "UNIQUE")
	assert.NotContains(t, historyDef, "UNIQUE")
	assert.Contains(t, historyDef, "email")
}

func TestColumnsIntrospectionHidesSystemColumns(t *testing.T) {
	_, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))

	defs, err := adapter.Columns(ctx, "foos")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, columnNames(defs))

	pk, err := adapter.PrimaryKey(ctx, "foos")
	require.NoError(t, err)
	assert.Equal(t, "id", pk)
}

func TestNonTemporalFallthrough(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, ddl.TableSpec{
		Name:       "plains",
		PrimaryKey: "id",
		Columns:    []ddl.ColumnSpec{{Name: "name", Type: "varchar"}},
	}, ddl.CreateTableOptions{}))

	isTemporal, err := engine.IsTemporal(ctx, "plains")
	require.NoError(t, err)
	assert.False(t, isTemporal)

	var relkind string
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &relkind,
		`SELECT relkind::text FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		  WHERE n.nspname = 'public' AND c.relname = 'plains'`))
	assert.Equal(t, "r", relkind)

	// Column operations fall through to the plain public table.
	testutil.Must(t, adapter.AddColumn(ctx, "plains", ddl.ColumnSpec{Name: "email", Type: "varchar"}))
	testutil.Must(t, adapter.ChangeColumnNull(ctx, "plains", "name", true))
	testutil.Must(t, adapter.RemoveColumn(ctx, "plains", "email"))

	_, err = engine.DB.Exec(ctx, `INSERT INTO "plains" ( "name" ) VALUES ( 'x' )`)
	require.NoError(t, err)
}

func TestIsTemporalMissPathClassifiesPlainTables(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	testutil.Must(t, adapter.CreateTable(ctx, foosSpec, ddl.CreateTableOptions{Temporal: true}))
	testutil.Must(t, adapter.CreateTable(ctx, ddl.TableSpec{
		Name:       "plains",
		PrimaryKey: "id",
		Columns:    []ddl.ColumnSpec{{Name: "name", Type: "varchar"}},
	}, ddl.CreateTableOptions{}))

	// A fresh engine has an empty cache, so both lookups take the lazy miss
	// path against the catalog. The plain table exists only in public and
	// must not be mistaken for a temporal one.
	fresh, err := temporal.NewEngine(ctx, engine.DB)
	require.NoError(t, err)

	isTemporal, err := fresh.IsTemporal(ctx, "plains")
	require.NoError(t, err)
	assert.False(t, isTemporal)

	isTemporal, err = fresh.IsTemporal(ctx, "foos")
	require.NoError(t, err)
	assert.True(t, isTemporal)

	isTemporal, err = fresh.IsTemporal(ctx, "no_such_table")
	require.NoError(t, err)
	assert.False(t, isTemporal)
}

func TestDDLRollsBackAtomically(t *testing.T) {
	engine, adapter := setupEngine(t)
	ctx := context.Background()
	// The invalid column type makes the plan fail mid-way; the schemas and
	// any objects created by earlier statements must roll back with it.
	err := adapter.CreateTable(ctx, ddl.TableSpec{
		Name:       "halfbuilt",
		PrimaryKey: "id",
		Columns:    []ddl.ColumnSpec{{Name: "name", Type: "no_such_type"}},
	}, ddl.CreateTableOptions{Temporal: true})
	require.Error(t, err)

	var leftovers int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &leftovers,
		`SELECT COUNT(*) FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
		  WHERE c.relname = 'halfbuilt' AND n.nspname IN ('temporal', 'history', 'public')`))
	assert.Zero(t, leftovers)
}

func columnNames(defs []ddl.ColumnDefinition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
