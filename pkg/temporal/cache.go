package temporal

import (
	"context"
	"fmt"

	"github.com/Arkanys/chronomodel/pkg/pgquote"
	"github.com/puzpuzpuz/xsync/v4"
)

// Cache is the process-wide map from logical table name to "this table is
// temporal". It is populated by DDL operations and lazily on lookup misses,
// and consulted on every query rewrite. Entries are monotone-stable between
// DDL events: a single writer (the DDL compiler, inside its transaction) may
// race any number of readers.
type Cache struct {
	m *xsync.Map[string, bool]
}

func NewCache() *Cache {
	return &Cache{m: xsync.NewMap[string, bool]()}
}

// Lookup returns the cached flag for name, if any.
func (c *Cache) Lookup(name string) (temporal, ok bool) {
	return c.m.Load(name)
}

// Add records name as temporal.
func (c *Cache) Add(name string) {
	c.m.Store(name, true)
}

// AddNegative records name as known non-temporal.
func (c *Cache) AddNegative(name string) {
	c.m.Store(name, false)
}

// Del forgets name entirely, forcing the next lookup to hit the database.
func (c *Cache) Del(name string) {
	c.m.Delete(name)
}

// Rename moves the cached flag from old to new in one logical step.
func (c *Cache) Rename(oldName, newName string) {
	if temporal, ok := c.m.Load(oldName); ok {
		c.m.Delete(oldName)
		c.m.Store(newName, temporal)
		return
	}
	c.m.Delete(newName)
}

// IsTemporal reports whether the logical table name is temporal, memoized.
// The miss path verifies that both backing tables exist. The probes are
// schema-qualified on purpose: a search_path-relative lookup would fall back
// to public and report a plain table as temporal.
func (e *Engine) IsTemporal(ctx context.Context, name string) (bool, error) {
	if temporal, ok := e.Cache.Lookup(name); ok {
		return temporal, nil
	}
	var isTemporal bool
	err := e.DB.GetPrimitive(ctx, &isTemporal,
		`SELECT to_regclass($1) IS NOT NULL AND to_regclass($2) IS NOT NULL`,
		pgquote.Ident(SchemaCurrent, name), pgquote.Ident(SchemaHistory, name))
	if err != nil {
		return false, fmt.Errorf("check temporal layout of %s: %w", name, err)
	}
	if isTemporal {
		e.Cache.Add(name)
	} else {
		e.Cache.AddNegative(name)
	}
	return isTemporal, nil
}
