package temporal

import "github.com/Arkanys/chronomodel/pkg/rel"

// AssociationKind mirrors the relational mapper's association taxonomy. Only
// singular, non-polymorphic associations participate in timestamp
// enumeration.
type AssociationKind string

const (
	BelongsTo AssociationKind = "belongs_to"
	HasOne    AssociationKind = "has_one"
	HasMany   AssociationKind = "has_many"
)

// Association links an entity to another logical table.
type Association struct {
	Name        string
	Kind        AssociationKind
	Target      *Entity
	ForeignKey  string
	Polymorphic bool
}

// Entity describes a logical table the engine operates on: its name, primary
// key, column list and associations. It is the engine-side stand-in for a
// mapped model class.
type Entity struct {
	Name         string
	PrimaryKey   string
	Columns      []string
	Associations []Association
	// DefaultScopes are deferred scope builders re-applied by the as-of
	// rewriter when the caller supplies no scope of their own. Deferred
	// because a default scope may reference the public view, whose rewrite
	// the as-of CTE replaces.
	DefaultScopes []func() *rel.Relation
}

// NewEntity returns a descriptor with the conventional "id" primary key.
func NewEntity(name string, columns ...string) *Entity {
	return &Entity{
		Name:       name,
		PrimaryKey: "id",
		Columns:    columns,
	}
}

// PK returns the primary key column, defaulting to "id".
func (e *Entity) PK() string {
	if e.PrimaryKey == "" {
		return "id"
	}
	return e.PrimaryKey
}

// BelongsTo registers a singular association to target keyed by fk on this
// entity's side.
func (e *Entity) BelongsTo(name string, target *Entity, fk string) *Entity {
	e.Associations = append(e.Associations, Association{
		Name:       name,
		Kind:       BelongsTo,
		Target:     target,
		ForeignKey: fk,
	})
	return e
}

// HasOne registers a singular association to target keyed by fk on the
// target's side.
func (e *Entity) HasOne(name string, target *Entity, fk string) *Entity {
	e.Associations = append(e.Associations, Association{
		Name:       name,
		Kind:       HasOne,
		Target:     target,
		ForeignKey: fk,
	})
	return e
}
