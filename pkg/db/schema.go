package db

import (
	"fmt"

	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/jackc/pgx/v4"
)

// SchemaRouter runs statements with the connection's search_path pointed at a
// chosen schema, restoring the previous path on every exit. A router belongs
// to a single connection (in practice: a single transaction); sharing one
// across connections breaks the path bookkeeping.
type SchemaRouter struct {
	depth      int
	cachedPath string
	pathValid  bool
	logger     logging.Logger
}

func NewSchemaRouter(logger logging.Logger) *SchemaRouter {
	return &SchemaRouter{logger: logger}
}

// OnSchemaOption adjusts a single OnSchema call.
type OnSchemaOption func(*onSchemaOptions)

type onSchemaOptions struct {
	allowNesting bool
}

// DisallowNesting makes an OnSchema call inside another OnSchema frame a
// no-op with respect to path changes. The body still runs.
func DisallowNesting() OnSchemaOption {
	return func(o *onSchemaOptions) {
		o.allowNesting = false
	}
}

// OnSchema saves the current search_path, points it at schema, runs fn and
// restores the saved path whether fn failed or not. Body errors propagate
// after the path is restored.
//
// When the enclosing transaction aborted inside fn, the restore statement
// fails with 25P02; that failure is not reported and restoration is deferred
// instead: the cached path is invalidated and the next path read refreshes
// from the server.
func (r *SchemaRouter) OnSchema(tx Tx, schema string, fn func() error, opts ...OnSchemaOption) error {
	options := &onSchemaOptions{allowNesting: true}
	for _, opt := range opts {
		opt(options)
	}
	if !options.allowNesting && r.depth > 0 {
		return fn()
	}

	prev, err := r.currentPath(tx)
	if err != nil {
		return fmt.Errorf("read search_path: %w", err)
	}
	quoted := pgx.Identifier{schema}.Sanitize()
	if _, err := tx.Exec(`SET search_path TO ` + quoted + `, public`); err != nil {
		return fmt.Errorf("set search_path to %s: %w", schema, err)
	}
	r.depth++

	bodyErr := fn()

	r.depth--
	if _, err := tx.Exec(`SET search_path TO ` + prev); err != nil {
		if IsAbortedTransaction(err) {
			// The transaction is rolling back; the path dies with it.
			r.pathValid = false
			r.logger.WithFields(logging.Fields{
				logging.SchemaFieldKey: schema,
			}).Debug("deferring search_path restore in aborted transaction")
			return bodyErr
		}
		if bodyErr != nil {
			return bodyErr
		}
		return fmt.Errorf("restore search_path to %s: %w", prev, err)
	}
	return bodyErr
}

// currentPath returns the connection's search_path. The outermost frame uses
// the cached path when valid; inner frames always read it from the server,
// so they see the path their caller set.
func (r *SchemaRouter) currentPath(tx Tx) (string, error) {
	if r.depth == 0 && r.pathValid && r.cachedPath != "" {
		return r.cachedPath, nil
	}
	var path string
	if err := tx.GetPrimitive(&path, `SHOW search_path`); err != nil {
		return "", err
	}
	if r.depth == 0 {
		r.cachedPath = path
		r.pathValid = true
	}
	return path, nil
}

// Invalidate drops the cached search_path so the next read refreshes it.
func (r *SchemaRouter) Invalidate() {
	r.pathValid = false
}
