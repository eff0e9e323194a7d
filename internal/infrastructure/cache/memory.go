package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pillchecker/medlabel/pkg/errors"
)

// DefaultMaxEntries bounds the in-memory cache when no explicit limit is
// configured.
const DefaultMaxEntries = 1024

// memoryCache is a bounded LRU cache. Values are stored as marshaled JSON so
// Get/Set semantics match the Redis implementation exactly, including the
// copy-on-read behavior that keeps cached values immutable.
type memoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	payload   []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryOption configures the in-memory cache.
type MemoryOption func(*memoryCache)

// WithMaxEntries bounds the number of cached entries; the least recently
// used entry is evicted when the bound is exceeded.
func WithMaxEntries(n int) MemoryOption {
	return func(c *memoryCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithMemoryDefaultTTL sets the TTL applied when Set is called with zero.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(c *memoryCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// withClock overrides the time source; tests only.
func withClock(now func() time.Time) MemoryOption {
	return func(c *memoryCache) { c.now = now }
}

// NewMemoryCache creates a bounded in-memory LRU cache.
func NewMemoryCache(opts ...MemoryOption) Cache {
	c := &memoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return ErrCacheMiss
	}
	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.removeLocked(elem)
		c.mu.Unlock()
		return ErrCacheMiss
	}
	c.order.MoveToFront(elem)
	payload := entry.payload
	c.mu.Unlock()

	if err := json.Unmarshal(payload, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal cached value")
	}
	return nil
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal value for cache")
	}
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Last writer wins on racing Sets for the same key.
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.payload = payload
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&memoryEntry{key: key, payload: payload, expiresAt: expiresAt})
	c.entries[key] = elem

	for c.order.Len() > c.maxEntries {
		c.removeLocked(c.order.Back())
	}
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if elem, ok := c.entries[key]; ok {
			c.removeLocked(elem)
		}
	}
	return nil
}

func (c *memoryCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration,
	loader func(ctx context.Context) (interface{}, error)) error {

	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	} else if !errors.IsCode(err, errors.ErrCodeNotFound) {
		return err
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.Get(ctx, key, dest)
}

func (c *memoryCache) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	entry := elem.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.order.Remove(elem)
}

// Len reports the current number of entries; exposed for tests and metrics.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
