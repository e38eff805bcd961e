package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

func summary(id string) *domain.SeriesExtrema {
	return &domain.SeriesExtrema{SeriesID: id}
}

func TestExtremaCache_GetPut(t *testing.T) {
	c := newExtremaCache(10)

	_, ok := c.get("missing")
	assert.False(t, ok)

	c.put("a", summary("a"))
	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.SeriesID)
}

func TestExtremaCache_Eviction(t *testing.T) {
	c := newExtremaCache(2)

	c.put("a", summary("a"))
	c.put("b", summary("b"))
	c.put("c", summary("c"))

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestExtremaCache_LRUOrder(t *testing.T) {
	c := newExtremaCache(2)

	c.put("a", summary("a"))
	c.put("b", summary("b"))
	c.get("a")
	c.put("c", summary("c"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was recently used")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestExtremaCache_UpdateExisting(t *testing.T) {
	c := newExtremaCache(10)

	c.put("a", &domain.SeriesExtrema{SeriesID: "a", Unit: "m"})
	c.put("a", &domain.SeriesExtrema{SeriesID: "a", Unit: "km"})

	got, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "km", got.Unit)
	assert.Equal(t, 1, c.len())
}

func TestExtremaCache_Invalidate(t *testing.T) {
	c := newExtremaCache(10)
	c.put("a", summary("a"))
	c.put("b", summary("b"))

	c.invalidate("a")
	c.invalidate("unknown")

	_, ok := c.get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.len())

	c.invalidate("b")
	assert.Zero(t, c.len())
	c.put("d", summary("d"))
	_, ok = c.get("d")
	assert.True(t, ok, "cache is usable after emptying")
}

func TestExtremaCache_Disabled(t *testing.T) {
	c := newExtremaCache(0)
	c.put("a", summary("a"))
	_, ok := c.get("a")
	assert.False(t, ok)
}

func TestExtremaCache_StoresCopies(t *testing.T) {
	c := newExtremaCache(10)
	s := &domain.SeriesExtrema{SeriesID: "a", Unit: "m"}
	c.put("a", s)
	s.Unit = "changed"

	got, _ := c.get("a")
	assert.Equal(t, "m", got.Unit)
}
