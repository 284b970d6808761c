// Package cache provides the bounded LRU used to hold GPU-side resources
// that are cheap to rebuild but expensive to rebuild every frame.
//
// Unlike a plain map, an LRU hands evicted values to a callback so the
// owner can release the GPU memory behind them:
//
//	c := cache.New[instanceKey, *Buffer](16, func(_ instanceKey, b *Buffer) {
//		b.Release()
//	})
//	buf, err := c.GetOrCreate(key, build)
//
// # Thread Safety
//
// LRU is safe for concurrent use. The eviction callback runs after the
// internal lock has been released, so it may call back into the cache.
package cache
