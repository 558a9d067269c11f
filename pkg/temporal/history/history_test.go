package history_test

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

func setupFoos(t *testing.T) (*temporal.Engine, *history.History, int64) {
	t.Helper()
	database, _ := testutil.IntegrationDB(t)
	ctx := context.Background()
	engine, err := temporal.NewEngine(ctx, database)
	require.NoError(t, err)
	adapter := ddl.NewAdapter(engine)
	testutil.Must(t, adapter.CreateTable(ctx, ddl.TableSpec{
		Name:       "foos",
		PrimaryKey: "id",
		Columns:    []ddl.ColumnSpec{{Name: "name", Type: "varchar"}},
	}, ddl.CreateTableOptions{Temporal: true}))

	exec := func(query string, args ...interface{}) {
		t.Helper()
		_, err := engine.DB.Exec(ctx, query, args...)
		testutil.MustDo(t, query, err)
	}
	exec(`INSERT INTO "foos" ( "name" ) VALUES ( 'a' )`)
	time.Sleep(20 * time.Millisecond)
	exec(`UPDATE "foos" SET "name" = 'b'`)
	time.Sleep(20 * time.Millisecond)
	exec(`UPDATE "foos" SET "name" = 'c'`)

	var id int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &id, `SELECT "id" FROM "foos"`))

	foos := temporal.NewEntity("foos", "name")
	return engine, history.New(engine, foos), id
}

func TestFirstAndLast(t *testing.T) {
	_, hist, id := setupFoos(t)
	ctx := context.Background()

	first, err := hist.First(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.Attributes["name"])
	assert.Equal(t, id, first.RID)

	last, err := hist.Last(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "c", last.Attributes["name"])
	assert.True(t, last.ValidTo.Equal(history.TimeInfinity))
}

func TestPredSucc(t *testing.T) {
	_, hist, id := setupFoos(t)
	ctx := context.Background()

	first, err := hist.First(ctx, id)
	require.NoError(t, err)

	// Walk forward through the chain.
	second, err := hist.Succ(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "b", second.Attributes["name"])

	third, err := hist.Succ(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, "c", third.Attributes["name"])

	// The open version has no successor.
	none, err := hist.Succ(ctx, third)
	require.NoError(t, err)
	assert.Nil(t, none)

	// And back again.
	back, err := hist.Pred(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.Equal(t, first.HID, back.HID)

	none, err = hist.Pred(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestVersionIdentityIsHID(t *testing.T) {
	_, hist, id := setupFoos(t)
	ctx := context.Background()

	versions, err := hist.Of(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	seen := make(map[int64]bool)
	for _, v := range versions {
		assert.Equal(t, v.HID, v.ID())
		assert.Equal(t, id, v.RID)
		assert.False(t, seen[v.ID()], "version identity must be unique")
		seen[v.ID()] = true
	}
}

func TestRecord(t *testing.T) {
	_, hist, id := setupFoos(t)
	ctx := context.Background()

	first, err := hist.First(ctx, id)
	require.NoError(t, err)

	record, err := hist.Record(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "c", record["name"])
}

func TestRecordOfDeleted(t *testing.T) {
	engine, hist, id := setupFoos(t)
	ctx := context.Background()

	first, err := hist.First(ctx, id)
	require.NoError(t, err)

	_, err = engine.DB.Exec(ctx, `DELETE FROM "foos"`)
	require.NoError(t, err)

	record, err := hist.Record(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestAll(t *testing.T) {
	_, hist, _ := setupFoos(t)
	ctx := context.Background()

	versions, err := hist.All(ctx)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i := 1; i < len(versions); i++ {
		assert.False(t, versions[i].RecordedAt.Before(versions[i-1].RecordedAt))
	}
}

func TestOfWithAggregate(t *testing.T) {
	engine, hist, id := setupFoos(t)
	ctx := context.Background()

	// The aggregate projection must reach the database without the implicit
	// ordering or as_of_time column, or the statement would not parse.
	var count int64
	testutil.Must(t, engine.DB.GetPrimitive(ctx, &count,
		`SELECT COUNT(*) FROM "history"."foos" WHERE "id" = $1`, id))
	assert.EqualValues(t, 3, count)

	_, err := hist.Of(ctx, id, `count(*) AS hits`)
	require.NoError(t, err)
}

func TestDestroyIsRefused(t *testing.T) {
	_, hist, id := setupFoos(t)
	ctx := context.Background()

	first, err := hist.First(ctx, id)
	require.NoError(t, err)
	assert.ErrorIs(t, hist.Destroy(first), temporal.ErrReadOnlyRecord)
}

func TestAmendPeriod(t *testing.T) {
	_, hist, id := setupFoos(t)
	ctx := context.Background()

	first, err := hist.First(ctx, id)
	require.NoError(t, err)

	from := first.ValidFrom.Add(-time.Hour)
	to := first.ValidTo
	testutil.Must(t, hist.AmendPeriod(ctx, first.HID, from, to))

	amended, err := hist.First(ctx, id)
	require.NoError(t, err)
	assert.True(t, amended.ValidFrom.Equal(from))
	assert.True(t, amended.ValidTo.Equal(to))
}
