package llm

import (
	"sync"
	"time"
)

// lruCache is a thread-safe LRU cache with TTL for model responses. Only
// text-only calls are cached; vision payloads are too large to be worth it.
type lruCache struct {
	maxSize int
	ttl     time.Duration
	data    map[string]*cacheEntry
	order   []string // LRU order, oldest first
	mu      sync.Mutex
}

type cacheEntry struct {
	response  []byte
	expiresAt time.Time
}

func newLRUCache(maxSize int, ttl time.Duration) *lruCache {
	return &lruCache{
		maxSize: maxSize,
		ttl:     ttl,
		data:    make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
	}
}

func (c *lruCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}

	c.moveToEndLocked(key)
	return entry.response, true
}

func (c *lruCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; exists {
		c.data[key] = &cacheEntry{response: value, expiresAt: time.Now().Add(c.ttl)}
		c.moveToEndLocked(key)
		return
	}

	for len(c.data) >= c.maxSize && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}

	c.data[key] = &cacheEntry{response: value, expiresAt: time.Now().Add(c.ttl)}
	c.order = append(c.order, key)
}

func (c *lruCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *lruCache) removeLocked(key string) {
	delete(c.data, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *lruCache) moveToEndLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			break
		}
	}
}
