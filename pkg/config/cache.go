package config

import (
	"context"
	"sync"
	"time"
)

// TTLCache caches the result of a Load call for a fixed duration. Cache
// hits skip re-validation entirely (spec §4.2: "Cache hits skip validation").
type TTLCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	value   *T
	loadedAt time.Time
	loadFn  func(ctx context.Context) (*T, error)
}

// NewTTLCache builds a cache that calls loadFn on a miss and keeps the
// result for ttl.
func NewTTLCache[T any](ttl time.Duration, loadFn func(ctx context.Context) (*T, error)) *TTLCache[T] {
	return &TTLCache[T]{ttl: ttl, loadFn: loadFn}
}

// Get returns the cached value, reloading it if the TTL has elapsed or
// nothing has been loaded yet.
func (c *TTLCache[T]) Get(ctx context.Context) (*T, error) {
	c.mu.RLock()
	if c.value != nil && time.Since(c.loadedAt) < c.ttl {
		v := c.value
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under write lock: another goroutine may have refreshed while
	// we waited.
	if c.value != nil && time.Since(c.loadedAt) < c.ttl {
		return c.value, nil
	}

	v, err := c.loadFn(ctx)
	if err != nil {
		return nil, err
	}

	c.value = v
	c.loadedAt = time.Now()
	return v, nil
}

// Invalidate forces the next Get to reload, used by the fsnotify-driven
// file watcher for local-file sources.
func (c *TTLCache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
}

// DefaultCacheTTL is the default TTL applied when no env override is set
// (spec §4.2: "default 10 minutes").
const DefaultCacheTTL = 10 * time.Minute
