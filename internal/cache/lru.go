package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 64

// EvictFunc is called with every entry that leaves the cache, whether by
// capacity eviction, Delete, or Purge.
type EvictFunc[K comparable, V any] func(key K, value V)

// LRU is a bounded least-recently-used cache.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*entry[K, V]
	order    list[K, V]
	capacity int
	onEvict  EvictFunc[K, V]

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates an LRU holding at most capacity entries. onEvict may be nil.
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LRU[K, V]{
		entries:  make(map[K]*entry[K, V]),
		capacity: capacity,
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.order.moveToFront(e)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Put stores value under key. Replacing an existing value evicts the old one.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	var out []*entry[K, V]
	if e, ok := c.entries[key]; ok {
		out = append(out, &entry[K, V]{key: key, value: e.value})
		e.value = value
		c.order.moveToFront(e)
	} else {
		out = c.insert(key, value)
	}
	c.mu.Unlock()
	c.evict(out)
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. A failed create caches nothing. create runs under the cache
// lock and must not call back into the cache.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.order.moveToFront(e)
		c.mu.Unlock()
		c.hits.Add(1)
		return e.value, nil
	}
	c.misses.Add(1)
	value, err := create()
	if err != nil {
		c.mu.Unlock()
		return value, err
	}
	out := c.insert(key, value)
	c.mu.Unlock()
	c.evict(out)
	return value, nil
}

// Delete removes key and reports whether it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.order.remove(e)
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if ok {
		c.evict([]*entry[K, V]{e})
	}
	return ok
}

// Keys returns the cached keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.entries))
	for e := c.order.head; e != nil; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Purge removes every entry.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	out := make([]*entry[K, V], 0, len(c.entries))
	for e := c.order.tail; e != nil; e = e.prev {
		out = append(out, e)
	}
	c.entries = make(map[K]*entry[K, V])
	c.order = list[K, V]{}
	c.mu.Unlock()
	c.evict(out)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *LRU[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
		Evictions: c.evictions.Load(),
	}
}

// insert adds a new entry and returns the entries pushed out by it.
// Caller must hold c.mu.
func (c *LRU[K, V]) insert(key K, value V) []*entry[K, V] {
	var out []*entry[K, V]
	for c.order.len >= c.capacity {
		old := c.order.tail
		c.order.remove(old)
		delete(c.entries, old.key)
		out = append(out, old)
	}
	e := &entry[K, V]{key: key, value: value}
	c.order.pushFront(e)
	c.entries[key] = e
	return out
}

func (c *LRU[K, V]) evict(out []*entry[K, V]) {
	if len(out) == 0 {
		return
	}
	c.evictions.Add(uint64(len(out)))
	if c.onEvict == nil {
		return
	}
	for _, e := range out {
		c.onEvict(e.key, e.value)
	}
}

// Stats contains cache counters.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}
