// Package cache provides the read-through caches shared across runs:
// a bounded in-memory result cache, an optional disk layer, and a TTL
// cache for assisted-branch completions. Cached values are serialized
// bytes; runs never share mutable state through the cache.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jwyoon/anamna/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// ResultKey generates a cache key from the input content and the run
// options that affect the result
func ResultKey(blocks []model.TextBlock, reference time.Time, gate model.QualityGate, strategyHint string) string {
	h := sha256.New()
	for _, b := range blocks {
		h.Write([]byte(b.Text))
		h.Write([]byte{0})
	}
	h.Write([]byte(reference.Format("2006-01-02")))
	h.Write([]byte(gate))
	h.Write([]byte(strategyHint))
	return "anamna:v1:" + hex.EncodeToString(h.Sum(nil))
}

// PromptKey generates a cache key for an assisted-branch prompt
func PromptKey(prompt string) string {
	hash := sha256.Sum256([]byte(prompt))
	return "anamna:prompt:v1:" + hex.EncodeToString(hash[:])
}
