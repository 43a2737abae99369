package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// PromptCache caches assisted-branch completions by prompt hash so
// re-running a case does not repeat identical external calls. Entries
// expire; a stale extraction is worse than a fresh one.
type PromptCache struct {
	cache *gocache.Cache
}

// NewPromptCache creates a prompt cache with the given default TTL
func NewPromptCache(defaultTTL time.Duration) *PromptCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &PromptCache{
		cache: gocache.New(defaultTTL, 10*time.Minute),
	}
}

// Get retrieves a cached completion
func (c *PromptCache) Get(key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true
	}
	return nil, false
}

// Set stores a completion with the given TTL
func (c *PromptCache) Set(key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

// Delete removes a cached completion
func (c *PromptCache) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear removes all cached completions
func (c *PromptCache) Clear() error {
	c.cache.Flush()
	return nil
}
