// Package cache provides time-bounded memoization for computed metrics.
// Staleness up to the TTL window is an accepted tradeoff, not a correctness
// mechanism.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the expiry applied by callers that don't pick their own.
const DefaultTTL = 5 * time.Minute

// Cache is a key/value store with per-entry expiry.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	Delete(key string)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryCache is the in-process Cache implementation.
type MemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{entries: make(map[string]entry[V])}
}

// Get retrieves a value if present and not expired.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the given TTL.
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes a key.
func (c *MemoryCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *MemoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// CleanupExpired removes expired entries.
func (c *MemoryCache[V]) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
