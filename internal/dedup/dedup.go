// Package dedup remembers recently seen update identifiers so redelivered
// updates are processed at most once.
package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultSize = 10_000
	DefaultTTL  = 24 * time.Hour
)

// Cache is a bounded recent-identifier set. The oldest identifier is evicted
// once Size is reached; identifiers also expire after TTL.
type Cache struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, time.Time]
	now func() time.Time
}

// New creates a Cache holding at most size identifiers for ttl each.
// size <= 0 uses DefaultSize; ttl <= 0 keeps identifiers until evicted by size.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	return &Cache{
		lru: expirable.NewLRU[string, time.Time](size, nil, ttl),
		now: time.Now,
	}
}

// Seen records key and reports whether it had already been recorded.
// The check and the insert happen under one lock, so of N concurrent calls
// with the same key exactly one returns false.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Peek rather than Contains: Contains ignores expiry until the janitor runs.
	if _, ok := c.lru.Peek(key); ok {
		return true
	}
	c.lru.Add(key, c.now())
	return false
}

// Forget drops key so a later delivery is processed again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the number of identifiers currently remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
