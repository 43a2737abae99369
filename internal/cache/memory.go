package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is the bounded in-memory result cache. Capacity is fixed
// at construction; inserting past it evicts the oldest entry.
type MemoryCache struct {
	cache *lru.Cache[string, []byte]
}

// NewMemoryCache creates a memory cache holding at most maxEntries
func NewMemoryCache(maxEntries int) (*MemoryCache, error) {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	c, err := lru.New[string, []byte](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: c}, nil
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	return c.cache.Get(key)
}

// Set stores a value in the cache. The TTL argument is ignored; the
// memory layer is size-bounded, not time-bounded.
func (c *MemoryCache) Set(key string, value []byte, _ time.Duration) error {
	c.cache.Add(key, value)
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.cache.Remove(key)
	return nil
}

// Clear removes all values from the cache
func (c *MemoryCache) Clear() error {
	c.cache.Purge()
	return nil
}
