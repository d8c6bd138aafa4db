package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultMaxEntries bounds a memory cache created without an explicit size
const DefaultMaxEntries = 10000

const cleanupInterval = 5 * time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is an in-process TTL store over an LRU. Once full, the least
// recently used entry is evicted to make room.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu        sync.Mutex
	items     *lru.Cache
	hits      int64
	misses    int64
	evictions int64

	done chan struct{}
	once sync.Once
}

// NewCache creates a cache holding up to DefaultMaxEntries items for ttl
func NewCache(ttl time.Duration) *Cache {
	return NewBoundedCache(ttl, DefaultMaxEntries)
}

// NewBoundedCache creates a cache holding at most maxEntries items;
// maxEntries <= 0 uses DefaultMaxEntries
func NewBoundedCache(ttl time.Duration, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// only fails on a non-positive size
	items, _ := lru.New(maxEntries)

	c := &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		items:      items,
		done:       make(chan struct{}),
	}

	go c.janitor()

	return c
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

// peek reads an entry without touching its recency
func (c *Cache) peek(key interface{}) (*entry, bool) {
	v, ok := c.items.Peek(key)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (c *Cache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.items.Keys() {
		if e, ok := c.peek(key); ok && e.expired(now) {
			c.items.Remove(key)
		}
	}
}

// Close stops the janitor goroutine
func (c *Cache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Get returns a live item and marks it recently used
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.items.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}

	e := v.(*entry)
	if e.expired(c.now()) {
		c.items.Remove(key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.data, true
}

// Set stores an item, evicting the least recently used one when full
func (c *Cache) Set(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if evicted := c.items.Add(key, &entry{data: data, expiresAt: c.now().Add(c.ttl)}); evicted {
		c.evictions++
	}
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Remove(key)
	return nil
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items.Purge()
	return nil
}

// Size returns the number of stored items, expired ones included
func (c *Cache) Size() int {
	return c.items.Len()
}

// Stats returns cache statistics
func (c *Cache) Stats(_ context.Context) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	total, expired := 0, 0
	for _, key := range c.items.Keys() {
		if e, ok := c.peek(key); ok {
			total++
			if e.expired(now) {
				expired++
			}
		}
	}

	return map[string]interface{}{
		"backend":       "memory",
		"total_items":   total,
		"expired_items": expired,
		"active_items":  total - expired,
		"max_entries":   c.maxEntries,
		"hits":          c.hits,
		"misses":        c.misses,
		"evictions":     c.evictions,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}
