package prices

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/pulse/internal/common"
)

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache is a TTL cache keyed by string. Entries are valid while
// now - fetchedAt < ttl; stale entries are overwritten on the next fetch.
// There is no eviction.
type Cache[T any] struct {
	mu      sync.Mutex
	name    string
	ttl     time.Duration
	clock   common.Clock
	entries map[string]cacheEntry[T]
}

// NewCache creates a cache. name is used in log fields only.
func NewCache[T any](name string, ttl time.Duration, clock common.Clock) *Cache[T] {
	if clock == nil {
		clock = common.SystemClock()
	}
	return &Cache[T]{
		name:    name,
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry[T]),
	}
}

// Name returns the cache namespace
func (c *Cache[T]) Name() string {
	return c.name
}

// Get returns a fresh value for key
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.clock.Now().Sub(entry.fetchedAt) >= c.ttl {
		var zero T
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key, stamped with the current time
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[T]{value: value, fetchedAt: c.clock.Now()}
}

// GetOrFetch returns the cached value or calls fetch and stores its result.
// Fetch errors are returned and not cached.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.Set(key, v)
	return v, nil
}

// Len returns the number of entries, fresh or stale
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[T])
}
