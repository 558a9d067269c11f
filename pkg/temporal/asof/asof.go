// Package asof rewrites relational queries to read the state of the data at
// a chosen instant. The rewrite reads from the history table through a CTE
// named after the entity, and transitively extends to every joined table the
// temporal cache knows about, so a whole object graph is reconstructed at
// the same instant.
package asof

import (
	"context"
	"fmt"
	"time"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/logging"
	"github.com/Arkanys/chronomodel/pkg/pgquote"
	"github.com/Arkanys/chronomodel/pkg/rel"
	"github.com/Arkanys/chronomodel/pkg/temporal"
	"github.com/Arkanys/chronomodel/pkg/temporal/history"
	"github.com/Arkanys/chronomodel/pkg/timefmt"
)

// cteBody is the "history at T" subquery spliced in for a logical table.
func cteBody(name string, at time.Time) string {
	lit := pgquote.TimestampLiteral(at)
	return fmt.Sprintf(`SELECT %s.*, %s AS as_of_time FROM %s WHERE %s >= valid_from AND %s < valid_to`,
		pgquote.Ident(name), lit,
		pgquote.Ident(temporal.SchemaHistory, name),
		lit, lit)
}

// Scope is a relation pinned to an instant.
type Scope struct {
	engine   *temporal.Engine
	entity   *temporal.Entity
	at       time.Time
	relation *rel.Relation
}

// AsOf builds a read-only relation over entity as of at.
//
// The relation starts unscoped: the entity's default scopes may reference
// the public view, whose rewrite the CTE replaces, so they cannot be carried
// over as-is. When base is supplied only its WHERE and ORDER clauses are
// re-applied (join, group and having state is dropped; this mirrors the
// observed behavior of the scope merge, intentional or not). Without base,
// the entity's deferred default scopes are invoked and merged the same way.
func AsOf(engine *temporal.Engine, entity *temporal.Entity, at time.Time, base *rel.Relation) *Scope {
	at = at.UTC()
	r := rel.New(entity.Name, pgquote.Ident(entity.Name)).
		ReadOnly().
		SetTimestamp(at).
		With(entity.Name, cteBody(entity.Name, at))

	if base != nil {
		r.MergeScopes(base)
	} else {
		for _, scope := range entity.DefaultScopes {
			r.MergeScopes(scope())
		}
	}

	// The transitive rewrite: once the final join list is known, every
	// joined logical name present in the temporal cache gains its own
	// "history at T" CTE. Single pass; CTE names are unique per table.
	r.OnBuild(func(q *rel.Relation) {
		for _, name := range q.JoinSources() {
			if isTemporal, ok := engine.Cache.Lookup(name); ok && isTemporal {
				q.With(name, cteBody(name, at))
			}
		}
	})

	engine.Log.WithFields(logging.Fields{
		logging.TableFieldKey: entity.Name,
		logging.AsOfFieldKey:  timefmt.Format(at),
	}).Trace("rewrote relation to read history")

	return &Scope{engine: engine, entity: entity, at: at, relation: r}
}

// At returns the instant the scope reads at.
func (s *Scope) At() time.Time {
	return s.at
}

// Relation exposes the underlying relation for further composition.
func (s *Scope) Relation() *rel.Relation {
	return s.relation
}

// Join joins the named association of the entity. The joined source is the
// bare logical name: when the target is temporal the build hook resolves it
// to the CTE, otherwise it resolves to the public table.
func (s *Scope) Join(association string) *Scope {
	for _, assoc := range s.entity.Associations {
		if assoc.Name != association {
			continue
		}
		on := s.joinCondition(assoc)
		s.relation.Join(rel.InnerJoin, assoc.Target.Name, pgquote.Ident(assoc.Target.Name), on)
		return s
	}
	s.engine.Log.WithField("association", association).
		Warn("ignoring join on unknown association")
	return s
}

func (s *Scope) joinCondition(assoc temporal.Association) string {
	switch assoc.Kind {
	case temporal.BelongsTo:
		return fmt.Sprintf(`%s.%s = %s.%s`,
			pgquote.Ident(assoc.Target.Name), pgquote.Ident(assoc.Target.PK()),
			pgquote.Ident(s.entity.Name), pgquote.Ident(assoc.ForeignKey))
	default:
		return fmt.Sprintf(`%s.%s = %s.%s`,
			pgquote.Ident(assoc.Target.Name), pgquote.Ident(assoc.ForeignKey),
			pgquote.Ident(s.entity.Name), pgquote.Ident(s.entity.PK()))
	}
}

// Where narrows the scope with a raw condition.
func (s *Scope) Where(cond string) *Scope {
	s.relation.Where(cond)
	return s
}

// All executes the scope and returns every version valid at the instant.
func (s *Scope) All(ctx context.Context) ([]*history.Version, error) {
	rows, err := s.engine.DB.Query(ctx, s.relation.SQL())
	if err != nil {
		return nil, s.queryError(err)
	}
	return history.ScanVersions(rows, s.entity.PK())
}

// queryError forgets a table the schema no longer backs: a reader racing a
// concurrent DROP TABLE aborts here, and the stale cache entry must not
// outlive the relation.
func (s *Scope) queryError(err error) error {
	if db.IsUndefinedTable(err) {
		s.engine.Cache.Del(s.entity.Name)
	}
	return fmt.Errorf("as of %s: %w", s.at, err)
}

// Find returns the version of one logical record at the instant, or
// db.ErrNotFound when the record did not exist then.
func (s *Scope) Find(ctx context.Context, id int64) (*history.Version, error) {
	r := s.relation.Clone().
		Where(fmt.Sprintf(`%s.%s = %d`,
			pgquote.Ident(s.entity.Name), pgquote.Ident(s.entity.PK()), id)).
		Limit(1)
	rows, err := s.engine.DB.Query(ctx, r.SQL())
	if err != nil {
		return nil, s.queryError(err)
	}
	versions, err := history.ScanVersions(rows, s.entity.PK())
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, db.ErrNotFound
	}
	return versions[0], nil
}

// Count executes the scope as a COUNT(*).
func (s *Scope) Count(ctx context.Context) (int64, error) {
	inner := s.relation.Clone().ClearOrder()
	query := fmt.Sprintf(`SELECT COUNT(*) FROM ( %s ) AS scoped`, inner.SQL())
	var count int64
	if err := s.engine.DB.GetPrimitive(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("as of %s count: %w", s.at, err)
	}
	return count, nil
}
