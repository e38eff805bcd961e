package series

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

// extremaCache is a thread-safe LRU of series summaries keyed by series ID.
// Values are cloned on the way in and out. A zero size disables it.
type extremaCache struct {
	entries *lru.Cache[string, *domain.SeriesExtrema]
}

func newExtremaCache(maxEntries int) *extremaCache {
	if maxEntries <= 0 {
		return &extremaCache{}
	}
	entries, err := lru.New[string, *domain.SeriesExtrema](maxEntries)
	if err != nil {
		// Only reachable with a non-positive size.
		return &extremaCache{}
	}
	return &extremaCache{entries: entries}
}

func (c *extremaCache) get(key string) (*domain.SeriesExtrema, bool) {
	if c.entries == nil {
		return nil, false
	}
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (c *extremaCache) put(key string, value *domain.SeriesExtrema) {
	if c.entries == nil || value == nil {
		return
	}
	c.entries.Add(key, value.Clone())
}

func (c *extremaCache) invalidate(key string) {
	if c.entries != nil {
		c.entries.Remove(key)
	}
}

func (c *extremaCache) len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
