package store

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/i474232898/road-weather/internal/weather"
)

// MemoryCache is a concurrency-safe in-memory implementation of weather.CacheStore.
type MemoryCache struct {
	mu sync.RWMutex

	// key: cache key, value: entry
	data map[string]weather.CacheEntry

	// maxEntries bounds the map; expired entries are evicted first, then the
	// entry closest to expiry.
	maxEntries int
	clock      clockwork.Clock
}

// NewMemoryCache creates a new MemoryCache. If maxEntries is <= 0, it is
// treated as unlimited. A nil clock uses real time.
func NewMemoryCache(maxEntries int, clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryCache{
		data:       make(map[string]weather.CacheEntry),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns the entry for key, or weather.ErrCacheMiss if it is absent or
// expired. Expired entries are removed lazily.
func (c *MemoryCache) Get(_ context.Context, key string) (weather.CacheEntry, error) {
	now := c.clock.Now()

	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return weather.CacheEntry{}, weather.ErrCacheMiss
	}
	if entry.Expired(now) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have replaced it.
		if cur, ok := c.data[key]; ok && cur.Expired(now) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return weather.CacheEntry{}, weather.ErrCacheMiss
	}
	return entry, nil
}

// Set stores entry under entry.Key and enforces the size bound.
func (c *MemoryCache) Set(_ context.Context, entry weather.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[entry.Key] = entry

	if c.maxEntries > 0 && len(c.data) > c.maxEntries {
		c.purgeLocked()
	}
	for c.maxEntries > 0 && len(c.data) > c.maxEntries {
		c.evictSoonestLocked()
	}
	return nil
}

// Purge drops every expired entry and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *MemoryCache) purgeLocked() int {
	now := c.clock.Now()
	removed := 0
	for k, e := range c.data {
		if e.Expired(now) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) evictSoonestLocked() {
	var (
		victim string
		first  = true
		soon   weather.CacheEntry
	)
	for k, e := range c.data {
		if first || e.ExpiresAt.Before(soon.ExpiresAt) {
			victim, soon, first = k, e, false
		}
	}
	if !first {
		delete(c.data, victim)
	}
}
