// Package rel is a small relational query builder: enough SELECT surface for
// the temporal query layer to compose CTEs, joins, filters and ordering, and
// a build-time rewrite hook that lets the temporal layer splice additional
// CTEs in after the query shape is known. It is deliberately not a general
// ORM; values are embedded as quoted literals by the callers.
package rel

import (
	"strconv"
	"strings"
	"time"
)

type JoinKind string

const (
	InnerJoin     JoinKind = "INNER JOIN"
	LeftOuterJoin JoinKind = "LEFT OUTER JOIN"
)

// Join is one join source. Name is the logical table name the rewrite hook
// matches against; Source is the SQL fragment joined in.
type Join struct {
	Kind   JoinKind
	Name   string
	Source string
	On     string
}

// CTE is one WITH member.
type CTE struct {
	Name string
	Body string
}

// Hook runs against the relation right before SQL emission; a hook may add
// CTEs based on the final join list.
type Hook func(*Relation)

// Relation accumulates a single SELECT statement.
type Relation struct {
	ctes       []CTE
	selectList []string
	distinct   bool
	fromName   string
	fromSource string
	joins      []Join
	wheres     []string
	orders     []string
	limit      int
	readOnly   bool
	timestamp  *time.Time
	hooks      []Hook
}

// New starts a relation reading from source, known logically as name.
func New(name, source string) *Relation {
	return &Relation{
		fromName:   name,
		fromSource: source,
		limit:      -1,
	}
}

func (r *Relation) Clone() *Relation {
	clone := *r
	clone.ctes = append([]CTE(nil), r.ctes...)
	clone.selectList = append([]string(nil), r.selectList...)
	clone.joins = append([]Join(nil), r.joins...)
	clone.wheres = append([]string(nil), r.wheres...)
	clone.orders = append([]string(nil), r.orders...)
	clone.hooks = append([]Hook(nil), r.hooks...)
	return &clone
}

// With adds a CTE unless one with the same name is already attached.
func (r *Relation) With(name, body string) *Relation {
	for _, cte := range r.ctes {
		if cte.Name == name {
			return r
		}
	}
	r.ctes = append(r.ctes, CTE{Name: name, Body: body})
	return r
}

// HasCTE reports whether a CTE named name is attached.
func (r *Relation) HasCTE(name string) bool {
	for _, cte := range r.ctes {
		if cte.Name == name {
			return true
		}
	}
	return false
}

func (r *Relation) Select(exprs ...string) *Relation {
	r.selectList = append(r.selectList, exprs...)
	return r
}

func (r *Relation) Distinct() *Relation {
	r.distinct = true
	return r
}

func (r *Relation) Join(kind JoinKind, name, source, on string) *Relation {
	r.joins = append(r.joins, Join{Kind: kind, Name: name, Source: source, On: on})
	return r
}

func (r *Relation) Where(cond string) *Relation {
	r.wheres = append(r.wheres, cond)
	return r
}

func (r *Relation) Order(exprs ...string) *Relation {
	r.orders = append(r.orders, exprs...)
	return r
}

// ClearOrder drops any ordering accumulated so far.
func (r *Relation) ClearOrder() *Relation {
	r.orders = nil
	return r
}

func (r *Relation) Limit(n int) *Relation {
	r.limit = n
	return r
}

// ReadOnly marks the relation as not writable by upper layers.
func (r *Relation) ReadOnly() *Relation {
	r.readOnly = true
	return r
}

func (r *Relation) IsReadOnly() bool {
	return r.readOnly
}

// SetTimestamp attaches a temporal context to the relation.
func (r *Relation) SetTimestamp(t time.Time) *Relation {
	r.timestamp = &t
	return r
}

// Timestamp returns the attached temporal context, if any.
func (r *Relation) Timestamp() (time.Time, bool) {
	if r.timestamp == nil {
		return time.Time{}, false
	}
	return *r.timestamp, true
}

// OnBuild registers a hook to run once when SQL is emitted.
func (r *Relation) OnBuild(hook Hook) *Relation {
	r.hooks = append(r.hooks, hook)
	return r
}

// FromName returns the logical name of the primary source.
func (r *Relation) FromName() string {
	return r.fromName
}

// JoinSources returns the logical names of every join source, in join order.
func (r *Relation) JoinSources() []string {
	names := make([]string, len(r.joins))
	for i, j := range r.joins {
		names[i] = j.Name
	}
	return names
}

// Joins returns the join list.
func (r *Relation) Joins() []Join {
	return r.joins
}

// RewriteJoins replaces every join's kind with kind, keeping sources and
// conditions.
func (r *Relation) RewriteJoins(kind JoinKind) *Relation {
	for i := range r.joins {
		r.joins[i].Kind = kind
	}
	return r
}

// MergeScopes copies the WHERE and ORDER clauses of other onto r. Join,
// group and having state of other is intentionally not carried over; see the
// as-of rewriter's documentation.
func (r *Relation) MergeScopes(other *Relation) *Relation {
	if other == nil {
		return r
	}
	r.wheres = append(r.wheres, other.wheres...)
	r.orders = append(r.orders, other.orders...)
	return r
}

// Wheres exposes the filter list for scope merging.
func (r *Relation) Wheres() []string {
	return r.wheres
}

// Orders exposes the order list for scope merging.
func (r *Relation) Orders() []string {
	return r.orders
}

// SelectList exposes the projection accumulated so far.
func (r *Relation) SelectList() []string {
	return r.selectList
}

// SQL emits the statement. Hooks run first, in registration order; a hook
// sees the final join list and may attach CTEs.
func (r *Relation) SQL() string {
	for _, hook := range r.hooks {
		hook(r)
	}

	var b strings.Builder
	if len(r.ctes) > 0 {
		b.WriteString("WITH ")
		for i, cte := range r.ctes {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(`"` + cte.Name + `"`)
			b.WriteString(" AS ( ")
			b.WriteString(cte.Body)
			b.WriteString(" )")
		}
		b.WriteString(" ")
	}
	b.WriteString("SELECT ")
	if r.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(r.selectList) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(r.selectList, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(r.fromSource)
	for _, j := range r.joins {
		b.WriteString(" ")
		b.WriteString(string(j.Kind))
		b.WriteString(" ")
		b.WriteString(j.Source)
		if j.On != "" {
			b.WriteString(" ON ")
			b.WriteString(j.On)
		}
	}
	if len(r.wheres) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(r.wheres, " AND "))
	}
	if len(r.orders) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(r.orders, ", "))
	}
	if r.limit >= 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(r.limit))
	}
	return b.String()
}
