package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryClient is a bounded in-process cache with per-entry TTL and
// least-recently-used eviction.
type MemoryClient struct {
	mu      sync.Mutex
	ll      *list.List
	items   map[string]*list.Element
	maxSize int
	now     func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryClient creates a new in-memory cache client.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &MemoryClient{
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	entry := el.Value.(*cacheEntry)
	if c.expired(entry) {
		c.remove(el)
		return nil, ErrCacheMiss
	}
	c.ll.MoveToFront(el)
	return entry.value, nil
}

// Set stores a value in cache with TTL. A zero TTL keeps the entry until
// it is evicted.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return nil
	}

	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	for c.ll.Len() > c.maxSize {
		c.remove(c.ll.Back())
	}
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// collected.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Close is a no-op for memory cache.
func (c *MemoryClient) Close() error {
	return nil
}

func (c *MemoryClient) expired(e *cacheEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *MemoryClient) remove(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).key)
}
