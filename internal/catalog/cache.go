package catalog

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache maps object ids to CacheEntry values.
//
// Writers are serialised, so each key has at most one writer at a time.
// Stored entries are never mutated in place: Update works on a copy and
// swaps it in, which lets readers proceed without taking the write lock.
// Least recently used entries are evicted once the size limit is reached.
//
// Remove and Purge advance a generation counter. A reader that loads data
// from the repository takes Generation first and fills through UpdateIf,
// which drops the fill when the id was invalidated in between.
type Cache struct {
	writeMu sync.Mutex
	entries *lru.Cache[int, *CacheEntry]

	// generation, removedAt and purgedAt are guarded by writeMu.
	generation uint64
	removedAt  map[int]uint64
	purgedAt   uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a cache holding at most size entries.
func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[int, *CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("creating catalog cache: %w", err)
	}
	return &Cache{entries: entries, removedAt: make(map[int]uint64)}, nil
}

// Get returns a copy of the entry for id.
func (c *Cache) Get(id int) (*CacheEntry, bool) {
	entry, ok := c.entries.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.clone(), true
}

// Generation returns the current invalidation generation. Take it before
// reading the repository and pass it to UpdateIf.
func (c *Cache) Generation() uint64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.generation
}

// Update applies fn to the entry for id, creating an empty entry first
// when none exists. fn must not retain the pointer it receives.
func (c *Cache) Update(id int, fn func(*CacheEntry)) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.apply(id, fn)
}

// UpdateIf applies fn like Update unless id was removed or the cache was
// purged after generation since. It reports whether fn was applied.
func (c *Cache) UpdateIf(id int, since uint64, fn func(*CacheEntry)) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.purgedAt > since || c.removedAt[id] > since {
		return false
	}
	c.apply(id, fn)
	return true
}

func (c *Cache) apply(id int, fn func(*CacheEntry)) {
	next := NewCacheEntry()
	if current, ok := c.entries.Peek(id); ok {
		next = current.clone()
	}
	fn(next)
	c.entries.Add(id, next)
}

// Remove drops the entry for id.
func (c *Cache) Remove(id int) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.generation++
	c.removedAt[id] = c.generation
	c.entries.Remove(id)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.generation++
	c.purgedAt = c.generation
	clear(c.removedAt)
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
