// Package history synthesizes the companion "history entity" of a temporal
// entity: a read-only view over history.<table> whose rows are versions of
// the parent's records.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Arkanys/chronomodel/pkg/db"
	"github.com/Arkanys/chronomodel/pkg/pgquote"
	"github.com/Arkanys/chronomodel/pkg/rel"
	"github.com/Arkanys/chronomodel/pkg/temporal"
)

// Bounds of the representable timeline. A version touching either bound has
// no neighbor on that side.
var (
	TimeInfinity = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	TimeOrigin   = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
)

// asOfTimeExpr is the timestamp context attached to rows read without an
// explicit time: the instant the version stopped being current, or now for
// the open version.
const asOfTimeExpr = `LEAST(valid_to, timezone('UTC', now()))`

// History is the version-level companion of a temporal entity.
type History struct {
	engine *temporal.Engine
	entity *temporal.Entity

	quotedOnce   sync.Once
	quotedFields string
}

func New(engine *temporal.Engine, entity *temporal.Entity) *History {
	return &History{engine: engine, entity: entity}
}

// Entity returns the parent descriptor.
func (h *History) Entity() *temporal.Entity {
	return h.entity
}

// TableSource returns the backing relation, schema-qualified.
func (h *History) TableSource() string {
	return pgquote.Ident(temporal.SchemaHistory, h.entity.Name)
}

// Fields returns the quoted projection of the history table: the logical key
// exposed as rid alongside every entity column and the system columns.
// Memoized on first use.
func (h *History) Fields() string {
	h.quotedOnce.Do(func() {
		pk := h.entity.PK()
		parts := []string{
			"hid",
			pgquote.Ident(pk) + " AS rid",
			pgquote.Ident(pk),
		}
		for _, c := range h.entity.Columns {
			parts = append(parts, pgquote.Ident(c))
		}
		parts = append(parts, "valid_from", "valid_to", "recorded_at")
		h.quotedFields = strings.Join(parts, ", ")
	})
	return h.quotedFields
}

func (h *History) baseRelation() *rel.Relation {
	return rel.New(h.entity.Name, h.TableSource()).ReadOnly()
}

// Of returns the complete history of one logical record, oldest recording
// first. When the caller projects an aggregate, the implicit ordering and
// as_of_time projection are suppressed so the aggregate stands alone.
func (h *History) Of(ctx context.Context, id int64, selects ...string) ([]*Version, error) {
	r := h.baseRelation().
		Where(fmt.Sprintf(`%s = %d`, pgquote.Ident(h.entity.PK()), id))
	switch {
	case len(selects) == 0:
		r.Select(h.Fields(), asOfTimeExpr+" AS as_of_time").
			Order("recorded_at", "hid")
	case HasAggregate(selects):
		// An aggregate projection stands alone: implicit ordering and the
		// as_of_time column would break it.
		r.Select(selects...)
	default:
		r.Select(selects...).
			Select(asOfTimeExpr + " AS as_of_time").
			Order("recorded_at", "hid")
	}
	return h.query(ctx, r)
}

// All returns the entire history of the entity, ordered by recording time.
func (h *History) All(ctx context.Context) ([]*Version, error) {
	r := h.baseRelation().
		Select(h.Fields(), asOfTimeExpr+" AS as_of_time").
		Order("recorded_at", "hid")
	return h.query(ctx, r)
}

// Pred returns the version whose validity ends where v's begins, or nil when
// v is the first representable version.
func (h *History) Pred(ctx context.Context, v *Version) (*Version, error) {
	if !v.ValidFrom.After(TimeOrigin) {
		return nil, nil
	}
	r := h.adjacent(v.RID, fmt.Sprintf(`valid_to = %s`, pgquote.TimestampLiteral(v.ValidFrom)))
	return h.queryOne(ctx, r)
}

// Succ returns the version whose validity begins where v's ends, or nil when
// v is the open version.
func (h *History) Succ(ctx context.Context, v *Version) (*Version, error) {
	if !v.ValidTo.Before(TimeInfinity) {
		return nil, nil
	}
	r := h.adjacent(v.RID, fmt.Sprintf(`valid_from = %s`, pgquote.TimestampLiteral(v.ValidTo)))
	return h.queryOne(ctx, r)
}

func (h *History) adjacent(rid int64, cond string) *rel.Relation {
	return h.baseRelation().
		Select(h.Fields(), asOfTimeExpr+" AS as_of_time").
		Where(fmt.Sprintf(`%s = %d`, pgquote.Ident(h.entity.PK()), rid)).
		Where(cond).
		Limit(1)
}

// First returns the oldest version of a logical record.
func (h *History) First(ctx context.Context, id int64) (*Version, error) {
	r := h.boundary(id, "valid_from")
	return h.queryOne(ctx, r)
}

// Last returns the newest version of a logical record.
func (h *History) Last(ctx context.Context, id int64) (*Version, error) {
	r := h.boundary(id, "valid_from DESC")
	return h.queryOne(ctx, r)
}

func (h *History) boundary(id int64, order string) *rel.Relation {
	return h.baseRelation().
		Select(h.Fields(), asOfTimeExpr+" AS as_of_time").
		Where(fmt.Sprintf(`%s = %d`, pgquote.Ident(h.entity.PK()), id)).
		Order(order).
		Limit(1)
}

// Record returns the live row the version belongs to, read from the public
// view, or nil when the record was deleted.
func (h *History) Record(ctx context.Context, v *Version) (map[string]interface{}, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = %d`,
		pgquote.Ident(temporal.SchemaPublic, h.entity.Name),
		pgquote.Ident(h.entity.PK()), v.RID)
	rows, err := h.engine.DB.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("record of hid %d: %w", v.HID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	record := make(map[string]interface{}, len(values))
	for i, f := range rows.FieldDescriptions() {
		record[string(f.Name)] = values[i]
	}
	return record, nil
}

// Destroy always refuses: history rows are read-only from the application
// path. Deletes against the view close versions, they never remove them.
func (h *History) Destroy(*Version) error {
	return temporal.ErrReadOnlyRecord
}

func (h *History) query(ctx context.Context, r *rel.Relation) ([]*Version, error) {
	rows, err := h.engine.DB.Query(ctx, r.SQL())
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", h.entity.Name, err)
	}
	return ScanVersions(rows, h.entity.PK())
}

func (h *History) queryOne(ctx context.Context, r *rel.Relation) (*Version, error) {
	versions, err := h.query(ctx, r)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[0], nil
}

// AmendPeriod rewrites a history row's validity interval in place. Both
// endpoints must be UTC instants. Meant for data migration; PostgreSQL's own
// constraints are the only overlap validation applied.
func (h *History) AmendPeriod(ctx context.Context, hid int64, from, to time.Time) error {
	if from.Location() != time.UTC || to.Location() != time.UTC {
		return fmt.Errorf("amend period of hid %d: %w", hid, temporal.ErrNonUTCTimestamp)
	}
	_, err := h.engine.DB.Transact(ctx, db.Void(func(tx db.Tx) error {
		_, err := tx.Exec(fmt.Sprintf(
			`UPDATE %s SET valid_from = $1, valid_to = $2 WHERE hid = $3`,
			h.TableSource()), from, to, hid)
		return err
	}))
	if err != nil {
		return fmt.Errorf("amend period of hid %d: %w", hid, err)
	}
	return nil
}
