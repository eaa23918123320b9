package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// FIFO memoizes fn, forgetting the oldest computed key once more than
// maxSize keys have been seen. Lookups do not refresh an entry's age.
type FIFO[K comparable, V any] struct {
	mu     sync.Mutex
	fn     func(K) V
	values *simplelru.LRU[K, V] // read with Peek only, so eviction follows insertion order
}

// NewFIFO wraps fn in a FIFO memoizer. A maxSize below 1 is treated as 1.
func NewFIFO[K comparable, V any](maxSize int, fn func(K) V) *FIFO[K, V] {
	values, err := simplelru.NewLRU[K, V](max(maxSize, 1), nil)
	if err != nil {
		// NewLRU only fails for a non-positive size.
		panic(err)
	}
	return &FIFO[K, V]{fn: fn, values: values}
}

// Get returns fn(key), computing it only when key is not cached.
func (f *FIFO[K, V]) Get(key K) V {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v, ok := f.values.Peek(key); ok {
		return v
	}
	v := f.fn(key)
	f.values.Add(key, v)
	return v
}

// Len returns the number of memoized keys.
func (f *FIFO[K, V]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Len()
}
