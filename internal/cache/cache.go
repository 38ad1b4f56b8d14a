// Package cache provides a TTL keyed store with single-flight compute
// semantics, used to guarantee at most one in-flight advisor call per
// (user, ticker) key.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache stores computed values until their expiry. Lookups for a live key
// return the stored value; concurrent misses on the same key share one
// compute call. Failed computes store nothing, so the next caller retries
// in full.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
	now     func() time.Time
}

// New returns an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// GetOrCompute returns the live value for key, or runs computeFn exactly
// once across concurrent callers and stores its result for ttl.
func (c *Cache[V]) GetOrCompute(key string, ttl time.Duration, computeFn func() (V, error)) (V, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A previous flight may have stored the value between our miss
		// and this call.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry[V]{value: v, expiresAt: c.now().Add(ttl)}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Get returns the live value for key without computing.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.get(key)
}

// Invalidate drops the entry for key, if any.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		var zero V
		return zero, false
	}
	return e.value, true
}
