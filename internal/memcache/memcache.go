// Package memcache is the process-local short TTL tier in front of the
// key/value store.
package memcache

import (
	"sync"
	"time"
)

// purgeFloor is the smallest size at which Set sweeps expired entries
const purgeFloor = 1024

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps keys to values that expire after a per-entry lifetime.
// Expired entries are swept whenever a Set grows the map past twice the
// size left by the previous sweep, and by Purge.
type Cache[V any] struct {
	mu      sync.RWMutex
	items   map[string]item[V]
	ttl     time.Duration
	now     func() time.Time
	purgeAt int
}

// New creates a cache whose Set uses ttl
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]item[V]),
		ttl:     ttl,
		now:     time.Now,
		purgeAt: purgeFloor,
	}
}

// WithClock replaces time.Now
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

// TTL returns the default lifetime
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get returns a live entry
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || !c.now().Before(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value with the default lifetime
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value for ttl. A non-positive ttl drops the key.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		delete(c.items, key)
		return
	}
	now := c.now()
	if _, ok := c.items[key]; !ok && len(c.items) >= c.purgeAt {
		c.purgeLocked(now)
		c.purgeAt = max(purgeFloor, 2*len(c.items))
	}
	c.items[key] = item[V]{value: value, expiresAt: now.Add(ttl)}
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Purge removes expired entries and returns how many were dropped
func (c *Cache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

func (c *Cache[V]) purgeLocked(now time.Time) int {
	removed := 0
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Clear drops every entry
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item[V])
}

// Len counts entries, expired ones included until purged
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
