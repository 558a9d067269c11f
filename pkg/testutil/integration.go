package testutil

import (
	"sync"
	"testing"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/ory/dockertest/v3"
)

var (
	integrationOnce   sync.Once
	integrationURI    string
	integrationErr    error
	integrationCloser func()
)

// IntegrationDB returns a Database on a fresh test database, starting a
// shared PostgreSQL container on first use, or using the server passed with
// -db. Tests are skipped in short mode, or, without -db, when docker is not
// reachable.
func IntegrationDB(t testing.TB) (db.Database, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test: skipped in short mode")
	}
	integrationOnce.Do(func() {
		if len(*addrDB) > 0 {
			integrationURI, integrationCloser = GetDBInstance(nil)
			return
		}
		pool, err := dockertest.NewPool("")
		if err != nil {
			integrationErr = err
			return
		}
		if err := pool.Client.Ping(); err != nil {
			integrationErr = err
			return
		}
		integrationURI, integrationCloser = GetDBInstance(pool)
	})
	if integrationErr != nil {
		t.Skipf("integration test: docker not available: %v", integrationErr)
	}
	return GetDB(t, integrationURI)
}

// IntegrationCleanup purges the shared container, if one was started. Call
// from TestMain after m.Run.
func IntegrationCleanup() {
	if integrationCloser != nil {
		integrationCloser()
	}
}
