package rates

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/warp/restitution-engine/core"
	"github.com/warp/restitution-engine/indexation"
)

const (
	// DefaultCacheSize bounds the number of cached (index, window) lookups.
	DefaultCacheSize = 256

	// DefaultCacheTTL bounds how long a window is served without re-reading
	// the inner repository. Writes that bypass the cache (the import CLI
	// against a live server's database) become visible after at most this.
	DefaultCacheTTL = 5 * time.Minute
)

// Writer persists monthly rates.
type Writer interface {
	UpsertRates(ctx context.Context, index indexation.Index, table indexation.RateTable) error
}

// Repository is a RateRepository that also accepts writes.
type Repository interface {
	indexation.RateRepository
	Writer
}

type cacheKey struct {
	index    indexation.Index
	from, to core.Month
}

// Cached memoises window lookups for at most ttl. Writes through the cache
// purge it immediately; writes made directly to the inner store are seen
// once the cached window expires.
type Cached struct {
	inner Repository
	cache *expirable.LRU[cacheKey, indexation.RateTable]
}

var _ Repository = (*Cached)(nil)

// NewCached wraps inner. Non-positive size and ttl select the defaults.
func NewCached(inner Repository, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		inner: inner,
		cache: expirable.NewLRU[cacheKey, indexation.RateTable](size, nil, ttl),
	}
}

// Rates returns a copy of the cached table, loading it on a miss. Empty
// results are not cached.
func (c *Cached) Rates(ctx context.Context, index indexation.Index, from, to core.Month) (indexation.RateTable, error) {
	key := cacheKey{index: index, from: from, to: to}
	if table, ok := c.cache.Get(key); ok {
		return clone(table), nil
	}

	table, err := c.inner.Rates(ctx, index, from, to)
	if err != nil {
		return nil, err
	}
	if len(table) > 0 {
		c.cache.Add(key, clone(table))
	}
	return table, nil
}

func (c *Cached) UpsertRates(ctx context.Context, index indexation.Index, table indexation.RateTable) error {
	if err := c.inner.UpsertRates(ctx, index, table); err != nil {
		return err
	}
	c.cache.Purge()
	return nil
}

// Len reports the number of cached windows, expired ones included until
// they are swept.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func clone(t indexation.RateTable) indexation.RateTable {
	out := make(indexation.RateTable, len(t))
	for m, r := range t {
		out[m] = r
	}
	return out
}
