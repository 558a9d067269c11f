// Package timeline enumerates the instants at which a record, together with
// its temporal associations, changed.
package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/pgquote"
	"github.com/Arkanys/chronomodel/pkg/rel"
	"github.com/Arkanys/chronomodel/pkg/temporal"
	"github.com/Arkanys/chronomodel/pkg/temporal/history"
	"github.com/Arkanys/chronomodel/pkg/timefmt"
)

// Timestamps returns the sorted distinct set of change instants of entity,
// or of one record of it when recordID is given. Instants of singular
// temporal associations are folded in, so the result is the full set of
// times at which the record's object graph looked different.
func Timestamps(ctx context.Context, engine *temporal.Engine, entity *temporal.Entity, recordID *int64) ([]time.Time, error) {
	selfTemporal, err := engine.IsTemporal(ctx, entity.Name)
	if err != nil {
		return nil, err
	}

	assocs, err := temporalAssociations(ctx, engine, entity)
	if err != nil {
		return nil, err
	}
	if !selfTemporal && len(assocs) == 0 {
		return nil, nil
	}

	// The query runs with search_path pointed at the history schema, so
	// bare names resolve to history tables. A non-temporal caller has no
	// history table: qualify it to public so the view is not picked up.
	source := pgquote.Ident(entity.Name)
	if !selfTemporal {
		source = pgquote.Ident(temporal.SchemaPublic, entity.Name)
	}

	var elems []string
	if selfTemporal {
		elems = appendBounds(elems, entity.Name)
	}
	inner := rel.New(entity.Name, source)
	for _, assoc := range assocs {
		inner.Join(rel.InnerJoin, assoc.Target.Name, pgquote.Ident(assoc.Target.Name),
			joinCondition(entity, assoc))
		elems = appendBounds(elems, assoc.Target.Name)
	}
	// Missing associated rows must not suppress the record's own instants.
	inner.RewriteJoins(rel.LeftOuterJoin)

	inner.Distinct().
		Select(fmt.Sprintf(`UNNEST(ARRAY[%s]) AS ts`, strings.Join(elems, ", ")))
	if recordID != nil {
		inner.Where(fmt.Sprintf(`%s.%s = %d`,
			pgquote.Ident(entity.Name), pgquote.Ident(entity.PK()), *recordID))
	}

	outer := rel.New("changes", fmt.Sprintf(`( %s ) AS changes`, inner.SQL())).
		Select(`ts::text`).
		Where(`ts IS NOT NULL`).
		Where(`ts < timezone('UTC', now())`).
		Order(`ts`)
	if recordID != nil && selfTemporal {
		// A record's timeline starts at its first version; association
		// instants before that are noise.
		first, err := history.New(engine, entity).First(ctx, *recordID)
		if err != nil {
			return nil, err
		}
		if first != nil {
			outer.Where(`ts >= ` + pgquote.TimestampLiteral(first.ValidFrom))
		}
	}

	var raw []string
	_, err = engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		router := db.NewSchemaRouter(engine.Log)
		return router.OnSchema(tx, temporal.SchemaHistory, func() error {
			return tx.Select(&raw, outer.SQL())
		})
	}), db.ReadOnly())
	if err != nil {
		return nil, fmt.Errorf("timestamps of %s: %w", entity.Name, err)
	}

	instants := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		t, err := timefmt.Parse(s)
		if err != nil {
			// Unparseable values are dropped, not fatal.
			engine.Log.WithField("value", s).Debug("skipping malformed timestamp")
			continue
		}
		instants = append(instants, t)
	}
	return instants, nil
}

func temporalAssociations(ctx context.Context, engine *temporal.Engine, entity *temporal.Entity) ([]temporal.Association, error) {
	var assocs []temporal.Association
	for _, assoc := range entity.Associations {
		if assoc.Polymorphic {
			continue
		}
		if assoc.Kind != temporal.BelongsTo && assoc.Kind != temporal.HasOne {
			continue
		}
		isTemporal, err := engine.IsTemporal(ctx, assoc.Target.Name)
		if err != nil {
			return nil, err
		}
		if isTemporal {
			assocs = append(assocs, assoc)
		}
	}
	return assocs, nil
}

func joinCondition(entity *temporal.Entity, assoc temporal.Association) string {
	if assoc.Kind == temporal.BelongsTo {
		return fmt.Sprintf(`%s.%s = %s.%s`,
			pgquote.Ident(assoc.Target.Name), pgquote.Ident(assoc.Target.PK()),
			pgquote.Ident(entity.Name), pgquote.Ident(assoc.ForeignKey))
	}
	return fmt.Sprintf(`%s.%s = %s.%s`,
		pgquote.Ident(assoc.Target.Name), pgquote.Ident(assoc.ForeignKey),
		pgquote.Ident(entity.Name), pgquote.Ident(entity.PK()))
}

func appendBounds(elems []string, table string) []string {
	return append(elems,
		pgquote.Ident(table)+".valid_from",
		pgquote.Ident(table)+".valid_to")
}
