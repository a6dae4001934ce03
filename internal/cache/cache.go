// Package cache provides the generic LRU cache used by the tokenizer
// adapter's per-encoding encode cache.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a simple in-memory cache with LRU eviction and optional TTL
// expiry. A zero ttl disables expiry.
type Cache struct {
	capacity int
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	order    []string // oldest first

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheItem struct {
	value     interface{}
	expiresAt time.Time
}

// New creates a new cache with the specified capacity and TTL. ttl of zero
// means entries never expire on their own (only LRU eviction reclaims
// them).
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		order:    make([]string, 0, capacity),
	}
}

// Get retrieves an item from the cache, counting the lookup as a hit or
// miss for Stats.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	if c.ttl > 0 && time.Now().After(item.expiresAt) {
		c.Delete(key)
		c.misses.Add(1)
		return nil, false
	}

	c.mu.Lock()
	c.moveToEnd(key)
	c.mu.Unlock()

	c.hits.Add(1)
	return item.value, true
}

// Set stores an item in the cache, evicting the least-recently-used entry
// if the cache is at capacity.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if _, exists := c.items[key]; exists {
		c.items[key] = &cacheItem{value: value, expiresAt: expiresAt}
		c.moveToEnd(key)
		return
	}

	if c.capacity > 0 && len(c.items) >= c.capacity {
		c.evict()
	}

	c.items[key] = &cacheItem{value: value, expiresAt: expiresAt}
	c.order = append(c.order, key)
}

// Delete removes an item from the cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	c.removeFromOrder(key)
}

// Clear removes all items from the cache. Hit/miss counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*cacheItem)
	c.order = make([]string, 0, c.capacity)
}

// Size returns the number of items currently in the cache.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) evict() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.items, oldest)
}

func (c *Cache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *Cache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// CleanupExpired removes all TTL-expired items and returns the count
// removed.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	now := time.Now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			c.removeFromOrder(key)
			removed++
		}
	}
	return removed
}

// Stats reports cache occupancy and lifetime hit/miss counts.
type Stats struct {
	Size     int
	Capacity int
	Hits     int64
	Misses   int64
}

// Stats returns the current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return Stats{
		Size:     size,
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}
