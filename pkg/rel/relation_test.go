package rel

import (
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/assert"
)

func TestSQLMinimal(t *testing.T) {
	r := New("foos", `"foos"`)
	assert.Equal(t, `SELECT * FROM "foos"`, r.SQL())
}

func TestSQLFull(t *testing.T) {
	r := New("books", `"books"`).
		With("books", `SELECT 1`).
		Select(`"books".*`).
		Join(InnerJoin, "authors", `"authors"`, `"authors"."id" = "books"."author_id"`).
		Where(`"books"."title" = 'x'`).
		Order(`"books"."id"`).
		Limit(10)
	want := `WITH "books" AS ( SELECT 1 ) ` +
		`SELECT "books".* FROM "books" ` +
		`INNER JOIN "authors" ON "authors"."id" = "books"."author_id" ` +
		`WHERE "books"."title" = 'x' ORDER BY "books"."id" LIMIT 10`
	assert.Equal(t, want, r.SQL())
}

func TestWithDeduplicates(t *testing.T) {
	r := New("foos", `"foos"`).
		With("foos", `SELECT 1`).
		With("foos", `SELECT 2`)
	assert.True(t, r.HasCTE("foos"))
	assert.False(t, r.HasCTE("bars"))
	assert.Equal(t, `WITH "foos" AS ( SELECT 1 ) SELECT * FROM "foos"`, r.SQL())
}

func TestJoinSources(t *testing.T) {
	r := New("a", `"a"`).
		Join(InnerJoin, "b", `"b"`, "").
		Join(LeftOuterJoin, "c", `"c"`, "")
	if diff := deep.Equal([]string{"b", "c"}, r.JoinSources()); diff != nil {
		t.Error(diff)
	}
}

func TestRewriteJoins(t *testing.T) {
	r := New("a", `"a"`).
		Join(InnerJoin, "b", `"b"`, `"b"."a_id" = "a"."id"`).
		RewriteJoins(LeftOuterJoin)
	assert.Equal(t, `SELECT * FROM "a" LEFT OUTER JOIN "b" ON "b"."a_id" = "a"."id"`, r.SQL())
}

func TestOnBuildHookSeesJoins(t *testing.T) {
	r := New("a", `"a"`)
	r.OnBuild(func(q *Relation) {
		for _, name := range q.JoinSources() {
			q.With(name, "SELECT 1")
		}
	})
	r.Join(InnerJoin, "b", `"b"`, "")
	sql := r.SQL()
	assert.Contains(t, sql, `WITH "b" AS ( SELECT 1 )`)
}

func TestMergeScopesTakesWhereAndOrderOnly(t *testing.T) {
	base := New("a", `"a"`).
		Where("x = 1").
		Order("y").
		Join(InnerJoin, "b", `"b"`, "")
	r := New("a", `"a"`).MergeScopes(base)
	assert.Equal(t, []string{"x = 1"}, r.Wheres())
	assert.Equal(t, []string{"y"}, r.Orders())
	assert.Empty(t, r.Joins())
}

func TestCloneIsIndependent(t *testing.T) {
	r := New("a", `"a"`).Where("x = 1")
	clone := r.Clone().Where("y = 2")
	assert.Equal(t, []string{"x = 1"}, r.Wheres())
	assert.Equal(t, []string{"x = 1", "y = 2"}, clone.Wheres())
}

func TestTimestamp(t *testing.T) {
	r := New("a", `"a"`)
	_, ok := r.Timestamp()
	assert.False(t, ok)

	at := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	r.SetTimestamp(at)
	got, ok := r.Timestamp()
	assert.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestReadOnly(t *testing.T) {
	r := New("a", `"a"`)
	assert.False(t, r.IsReadOnly())
	assert.True(t, r.ReadOnly().IsReadOnly())
}
