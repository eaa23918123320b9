// Package cache provides small in-memory caches used by the tree renderer.
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a bounded map that evicts the least recently used key when full.
// Safe for concurrent access.
type LRU[K comparable, V any] struct {
	cache  *lru.Cache[K, V]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewLRU creates an LRU holding at most maxSize entries. A maxSize below 1
// is treated as 1.
func NewLRU[K comparable, V any](maxSize int) *LRU[K, V] {
	c, err := lru.New[K, V](max(maxSize, 1))
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &LRU[K, V]{cache: c}
}

// Get returns the value stored for key and marks it as recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, evicting the least recently used entry if
// the cache is full.
func (c *LRU[K, V]) Set(key K, value V) {
	c.cache.Add(key, value)
}

// Contains reports whether key is cached without touching its recency.
func (c *LRU[K, V]) Contains(key K) bool {
	return c.cache.Contains(key)
}

// Delete drops key if present.
func (c *LRU[K, V]) Delete(key K) {
	c.cache.Remove(key)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.cache.Len()
}

// Clear empties the cache and resets its statistics.
func (c *LRU[K, V]) Clear() {
	c.cache.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Stats returns hit and miss counts since creation or the last Clear.
func (c *LRU[K, V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
