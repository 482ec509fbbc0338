// Package fetchcache is the request-keyed cache the reconciliation view
// model reads through. Invalidation by key is the only write path back
// into it from the domain services.
package fetchcache

import (
	"sync"
	"time"
)

// TTLCache is a small expiring map. Entries past their deadline are
// dropped lazily on read.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]entry[V]
}

type entry[V any] struct {
	expiresAt time.Time
	value     V
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{items: make(map[K]entry[V])}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if time.Now().UTC().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.items[key] = entry[V]{
		expiresAt: time.Now().UTC().Add(ttl),
		value:     value,
	}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Invalidate(keys ...K) {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.items, key)
	}
	c.mu.Unlock()
}
