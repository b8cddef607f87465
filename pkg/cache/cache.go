// Package cache provides a bounded in-memory cache with per-entry TTL.
//
// The server keeps two instances: session master keys (UUID to 32-byte key)
// and proof-of-possession nonces. Both are small, hot, and must forget
// entries on a deadline, so the cache favors simplicity over throughput: a
// single mutex, expiry checked on every read, and capacity overflow resolved
// by evicting the entry closest to its deadline.
package cache

import (
	"sync"
	"time"
)

// Cache is a bounded TTL cache. The zero value is not usable; construct with
// New. All methods are safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	cap     int
	ttl     time.Duration
	now     func() time.Time
}

type entry[V any] struct {
	value    V
	deadline time.Time
}

// New creates a cache holding at most capacity entries, each expiring ttl
// after insertion. capacity must be positive.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	return &Cache[K, V]{
		entries: make(map[K]entry[V], capacity),
		cap:     capacity,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put inserts or replaces the value for key, resetting its TTL. If the cache
// is full, the live entry closest to expiry is evicted first.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.cap {
		c.evictNearest()
	}
	c.entries[key] = entry[V]{value: value, deadline: now.Add(c.ttl)}
}

// Get returns the live value for key. Expired entries are treated as absent
// and removed.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.deadline) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Contains reports whether key holds a live entry.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of live entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(c.now())
	return len(c.entries)
}

// sweep drops every expired entry. Caller holds the lock.
func (c *Cache[K, V]) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.deadline) {
			delete(c.entries, k)
		}
	}
}

// evictNearest removes the entry with the earliest deadline. Caller holds
// the lock and has already swept expired entries.
func (c *Cache[K, V]) evictNearest() {
	var victim K
	var nearest time.Time
	first := true
	for k, e := range c.entries {
		if first || e.deadline.Before(nearest) {
			victim, nearest = k, e.deadline
			first = false
		}
	}
	if !first {
		delete(c.entries, victim)
	}
}
