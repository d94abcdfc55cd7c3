package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-critique/internal/domain"
)

// DefaultTTL is how long cached results stay valid when no TTL is
// configured. Review results age out rather than live forever so rule
// or model drift eventually forces recomputation.
const DefaultTTL = 24 * time.Hour

// sweepInterval bounds how often a write triggers an expiry sweep.
const sweepInterval = 5 * time.Minute

// ResultCache stores computed review results keyed by fingerprint.
// Absence is not an error; it routes the caller to full computation.
// Put is idempotent last-write-wins for a given fingerprint.
type ResultCache interface {
	// Get returns the cached result for a fingerprint, and whether one
	// was present and unexpired.
	Get(ctx context.Context, fp domain.Fingerprint) (*domain.ReviewResult, bool, error)

	// Put stores a result under its fingerprint, replacing any previous
	// entry for the same fingerprint.
	Put(ctx context.Context, fp domain.Fingerprint, result *domain.ReviewResult) error

	// Invalidate removes the entry for a fingerprint if present.
	Invalidate(ctx context.Context, fp domain.Fingerprint) error

	// Stats returns cumulative cache performance counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	// Hits is the number of lookups served from cache.
	Hits int64
	// Misses is the number of lookups that found no live entry.
	Misses int64
	// Evictions is the number of entries removed by TTL expiry or Invalidate.
	Evictions int64
	// Entries is the current number of live entries.
	Entries int
	// HitRate is Hits / (Hits + Misses), 0 when no lookups occurred.
	HitRate float64
}

type entry struct {
	result    *domain.ReviewResult
	expiresAt time.Time
}

// MemoryCache is a mutex-guarded in-process ResultCache with per-entry
// TTL. Expired entries are dropped lazily on read and opportunistically
// swept on write. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[domain.Fingerprint]entry

	ttl       time.Duration
	lastSweep time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// now is swappable for tests.
	now func() time.Time
}

// NewMemoryCache builds an empty cache. A non-positive ttl falls back
// to DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[domain.Fingerprint]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get implements ResultCache. Returned results are deep copies so
// callers (and post-hooks downstream) cannot mutate cached state.
func (c *MemoryCache) Get(_ context.Context, fp domain.Fingerprint) (*domain.ReviewResult, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[fp]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, still := c.entries[fp]; still && c.now().After(cur.expiresAt) {
			delete(c.entries, fp)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false, nil
	}

	c.hits.Add(1)
	return e.result.Clone(), true, nil
}

// Put implements ResultCache.
func (c *MemoryCache) Put(_ context.Context, fp domain.Fingerprint, result *domain.ReviewResult) error {
	if fp.IsZero() || result == nil {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	c.entries[fp] = entry{result: result.Clone(), expiresAt: now.Add(c.ttl)}
	if now.Sub(c.lastSweep) >= sweepInterval {
		c.sweepLocked(now)
		c.lastSweep = now
	}
	c.mu.Unlock()
	return nil
}

// Invalidate implements ResultCache.
func (c *MemoryCache) Invalidate(_ context.Context, fp domain.Fingerprint) error {
	c.mu.Lock()
	if _, ok := c.entries[fp]; ok {
		delete(c.entries, fp)
		c.evictions.Add(1)
	}
	c.mu.Unlock()
	return nil
}

// Stats implements ResultCache.
func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		Entries:   entries,
		HitRate:   hitRate,
	}
}

// sweepLocked removes expired entries. Caller holds the write lock.
func (c *MemoryCache) sweepLocked(now time.Time) {
	for fp, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, fp)
			c.evictions.Add(1)
		}
	}
}
