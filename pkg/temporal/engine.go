package temporal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/hashicorp/go-multierror"
)

// Reserved schema names. The live presentation view of each temporal table
// stays in public.
const (
	SchemaCurrent = "temporal"
	SchemaHistory = "history"
	SchemaPublic  = "public"
)

// minServerVersionNum is PostgreSQL 9.0, the first release with all the
// features the storage layer leans on (CTEs, exclusion constraints, rewrite
// rules on views).
const minServerVersionNum = 90000

// Engine ties a database connection pool to the temporal cache and carries
// both into the DDL compiler and the query rewriters. One engine per
// connection; inter-connection coordination is PostgreSQL's problem.
type Engine struct {
	DB    db.Database
	Cache *Cache
	Log   logging.Logger
}

type EngineOption func(*Engine)

func WithLogger(logger logging.Logger) EngineOption {
	return func(e *Engine) {
		e.Log = logger
	}
}

// WithCache shares an existing cache between engines, e.g. one per pooled
// connection in a multi-threaded deployment.
func WithCache(cache *Cache) EngineOption {
	return func(e *Engine) {
		e.Cache = cache
	}
}

// NewEngine verifies the backend is a supported PostgreSQL and makes sure the
// btree_gist extension backing the history exclusion constraint is present.
func NewEngine(ctx context.Context, database db.Database, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		DB:    database,
		Cache: NewCache(),
		Log:   logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	var version string
	err := database.GetPrimitive(ctx, &version, `SHOW server_version_num`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDatabase, err)
	}
	versionNum, err := strconv.Atoi(version)
	if err != nil {
		return nil, fmt.Errorf("%w: server_version_num %q", ErrUnsupportedDatabase, version)
	}
	if versionNum < minServerVersionNum {
		return nil, fmt.Errorf("%w: server_version_num %d < %d", ErrUnsupportedDatabase, versionNum, minServerVersionNum)
	}

	_, err = database.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS btree_gist`)
	if err != nil {
		return nil, fmt.Errorf("%w: btree_gist: %v", ErrUnsupportedDatabase, err)
	}

	e.Log.WithField("server_version_num", versionNum).Debug("temporal engine ready")
	return e, nil
}

// RegisterEntities checks that each entity's backing tables carry the
// temporal layout. Entities that do not are reported with
// ErrNonTemporalTable; the rest stay usable, so a batch with one bad entity
// logs and skips it rather than failing the whole set.
func (e *Engine) RegisterEntities(ctx context.Context, entities ...*Entity) error {
	var merr *multierror.Error
	for _, entity := range entities {
		temporal, err := e.IsTemporal(ctx, entity.Name)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("register %s: %w", entity.Name, err))
			continue
		}
		if !temporal {
			e.Log.WithField(logging.TableFieldKey, entity.Name).
				Warn("skipping entity: backing table is not temporal")
			merr = multierror.Append(merr, fmt.Errorf("register %s: %w", entity.Name, ErrNonTemporalTable))
		}
	}
	return merr.ErrorOrNil()
}
