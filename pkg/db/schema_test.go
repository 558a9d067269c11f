package db

import (
	"errors"
	"testing"

	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records executed statements and serves a canned search_path.
type fakeTx struct {
	path      string
	execs     []string
	pathReads int
	failExec  map[string]error
}

func newFakeTx(path string) *fakeTx {
	return &fakeTx{path: path, failExec: make(map[string]error)}
}

func (f *fakeTx) Exec(query string, args ...interface{}) (pgconn.CommandTag, error) {
	if err, ok := f.failExec[query]; ok {
		return nil, err
	}
	f.execs = append(f.execs, query)
	return pgconn.CommandTag("SET"), nil
}

func (f *fakeTx) GetPrimitive(dest interface{}, query string, args ...interface{}) error {
	f.pathReads++
	*(dest.(*string)) = f.path
	return nil
}

func (f *fakeTx) Query(query string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTx) Select(dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func (f *fakeTx) Get(dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

func TestOnSchemaSetsAndRestores(t *testing.T) {
	tx := newFakeTx(`"$user", public`)
	router := NewSchemaRouter(logging.Dummy())

	var ran bool
	err := router.OnSchema(tx, "history", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{
		`SET search_path TO "history", public`,
		`SET search_path TO "$user", public`,
	}, tx.execs)
}

func TestOnSchemaRestoresOnBodyError(t *testing.T) {
	tx := newFakeTx(`"$user", public`)
	router := NewSchemaRouter(logging.Dummy())

	bodyErr := errors.New("body failed")
	err := router.OnSchema(tx, "history", func() error {
		return bodyErr
	})
	assert.ErrorIs(t, err, bodyErr)
	assert.Equal(t, `SET search_path TO "$user", public`, tx.execs[len(tx.execs)-1])
}

func TestOnSchemaNesting(t *testing.T) {
	tx := newFakeTx(`"$user", public`)
	router := NewSchemaRouter(logging.Dummy())

	err := router.OnSchema(tx, "temporal", func() error {
		return router.OnSchema(tx, "history", func() error {
			return nil
		})
	})
	require.NoError(t, err)
	// Both frames set and restore.
	assert.Len(t, tx.execs, 4)
}

func TestOnSchemaDisallowNesting(t *testing.T) {
	tx := newFakeTx(`"$user", public`)
	router := NewSchemaRouter(logging.Dummy())

	var innerRan bool
	err := router.OnSchema(tx, "temporal", func() error {
		return router.OnSchema(tx, "history", func() error {
			innerRan = true
			return nil
		}, DisallowNesting())
	})
	require.NoError(t, err)
	assert.True(t, innerRan, "the body still runs when nesting is disallowed")
	// Only the outer frame touches the path.
	assert.Equal(t, []string{
		`SET search_path TO "temporal", public`,
		`SET search_path TO "$user", public`,
	}, tx.execs)
}

func TestOnSchemaDeferredRestoreInAbortedTransaction(t *testing.T) {
	tx := newFakeTx(`"$user", public`)
	router := NewSchemaRouter(logging.Dummy())

	// The restore fails the way it does when the enclosing transaction
	// aborted: the router recovers by invalidating its cached path.
	tx.failExec[`SET search_path TO "$user", public`] = &pgconn.PgError{Code: "25P02"}

	bodyErr := errors.New("statement failed, transaction aborted")
	err := router.OnSchema(tx, "history", func() error {
		return bodyErr
	})
	assert.ErrorIs(t, err, bodyErr)

	// The next frame must not trust the cached path.
	reads := tx.pathReads
	delete(tx.failExec, `SET search_path TO "$user", public`)
	err = router.OnSchema(tx, "history", func() error { return nil })
	require.NoError(t, err)
	assert.Greater(t, tx.pathReads, reads, "path should be re-read after deferred restore")
}

func TestOnSchemaCachesPath(t *testing.T) {
	tx := newFakeTx(`"$user", public`)
	router := NewSchemaRouter(logging.Dummy())

	for i := 0; i < 3; i++ {
		err := router.OnSchema(tx, "history", func() error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tx.pathReads)
}
