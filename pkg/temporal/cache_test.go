package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheLookup(t *testing.T) {
	c := NewCache()

	_, ok := c.Lookup("foos")
	assert.False(t, ok)

	c.Add("foos")
	temporal, ok := c.Lookup("foos")
	assert.True(t, ok)
	assert.True(t, temporal)

	c.AddNegative("bars")
	temporal, ok = c.Lookup("bars")
	assert.True(t, ok)
	assert.False(t, temporal)
}

func TestCacheDel(t *testing.T) {
	c := NewCache()
	c.Add("foos")
	c.Del("foos")
	_, ok := c.Lookup("foos")
	assert.False(t, ok)
}

func TestCacheRename(t *testing.T) {
	c := NewCache()
	c.Add("foos")
	c.Rename("foos", "bars")

	_, ok := c.Lookup("foos")
	assert.False(t, ok)
	temporal, ok := c.Lookup("bars")
	assert.True(t, ok)
	assert.True(t, temporal)
}

func TestCacheRenameUnknown(t *testing.T) {
	c := NewCache()
	c.Add("bars")
	// Renaming an unknown table invalidates any stale flag under the new
	// name.
	c.Rename("foos", "bars")
	_, ok := c.Lookup("bars")
	assert.False(t, ok)
}
