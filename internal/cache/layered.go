package cache

import "time"

// LayeredCache combines the bounded memory cache with the disk layer.
// Memory answers first; disk hits are promoted back into memory.
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayeredCache creates a layered cache. A memory construction
// failure falls back to disk-only.
func NewLayeredCache(maxEntries int, diskDir string, diskTTL time.Duration) *LayeredCache {
	disk := NewDiskCache(diskDir, diskTTL)
	// Sweep expired entries once per process; stale files otherwise
	// accumulate until their keys happen to be asked for again.
	_ = disk.Prune()

	mem, err := NewMemoryCache(maxEntries)
	if err != nil {
		return &LayeredCache{disk: disk}
	}
	return &LayeredCache{
		memory: mem,
		disk:   disk,
	}
}

// Get retrieves a value (memory first, then disk)
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if c.memory != nil {
		if val, found := c.memory.Get(key); found {
			return val, true
		}
	}

	if val, found := c.disk.Get(key); found {
		if c.memory != nil {
			_ = c.memory.Set(key, val, 0)
		}
		return val, true
	}

	return nil, false
}

// Set stores a value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if c.memory != nil {
		if err := c.memory.Set(key, value, ttl); err != nil {
			return err
		}
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(key string) error {
	if c.memory != nil {
		_ = c.memory.Delete(key)
	}
	return c.disk.Delete(key)
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear() error {
	if c.memory != nil {
		_ = c.memory.Clear()
	}
	return c.disk.Clear()
}
