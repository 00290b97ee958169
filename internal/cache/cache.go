// Package cache is the Embedding Cache: a process-local, in-memory
// LRU+TTL cache over normalized query text, sitting between the Search
// Executor and the Embedding Gateway so repeated queries skip the network
// round-trip.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NormalizeQuery trims, collapses internal whitespace, and lowercases text
// to form the cache key shared by the query-embedding and query-result
// lookups.
func NormalizeQuery(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

type embeddingEntry struct {
	vector    []float32
	expiresAt time.Time
}

// EmbeddingCache is the query-embedding cache: normalized query text maps
// to its embedding vector, bounded by count with LRU eviction and an
// optional TTL. A zero TTL disables expiration checks (entries live until
// evicted by size).
type EmbeddingCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, embeddingEntry]
	ttl   time.Duration
}

// NewEmbeddingCache builds a cache bounded to size entries (size <= 0
// disables caching: Get always misses, Put is a no-op). ttl <= 0 means
// entries never expire by time.
func NewEmbeddingCache(size int, ttl time.Duration) *EmbeddingCache {
	if size <= 0 {
		return &EmbeddingCache{ttl: ttl}
	}
	inner, _ := lru.New[string, embeddingEntry](size)
	return &EmbeddingCache{inner: inner, ttl: ttl}
}

// Get returns the cached embedding for key, or (nil, false) on a miss or
// expired entry. An expired entry is removed when Get finds it; until then
// it still occupies an LRU slot.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	if c.inner == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.inner.Remove(key)
		return nil, false
	}
	return entry.vector, true
}

// Put inserts or refreshes key's embedding.
func (c *EmbeddingCache) Put(key string, vector []float32) {
	if c.inner == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	c.inner.Add(key, embeddingEntry{vector: vector, expiresAt: expiresAt})
}

// Len reports the current entry count, including expired entries that
// haven't been read since they expired.
func (c *EmbeddingCache) Len() int {
	if c.inner == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

type resultEntry struct {
	results   any
	expiresAt time.Time
}

// ResultCache is the optional query-result cache (§4.10): key is the
// normalized query text combined with its filters and pagination, value is
// the already-assembled search result set. Disabled by default; the Search
// Executor only consults it when config.CacheConfig.ResultCacheEnabled.
type ResultCache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, resultEntry]
	ttl   time.Duration
}

// NewResultCache mirrors NewEmbeddingCache's size/ttl semantics.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		return &ResultCache{ttl: ttl}
	}
	inner, _ := lru.New[string, resultEntry](size)
	return &ResultCache{inner: inner, ttl: ttl}
}

// Get returns the cached result set for key, or (nil, false) on a miss or
// expired entry. Callers type-assert the returned value to their concrete
// result-list type.
func (c *ResultCache) Get(key string) (any, bool) {
	if c.inner == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inner.Get(key)
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.inner.Remove(key)
		return nil, false
	}
	return entry.results, true
}

// Put inserts or refreshes key's result set.
func (c *ResultCache) Put(key string, results any) {
	if c.inner == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	c.inner.Add(key, resultEntry{results: results, expiresAt: expiresAt})
}

// ResultKey derives a stable key from the normalized query, a filter
// fingerprint, and pagination, so distinct filter/offset/limit combinations
// over the same text never collide.
func ResultKey(normalizedQuery, filterFingerprint string, maxResults, offset int) string {
	h := sha256.New()
	h.Write([]byte(normalizedQuery))
	h.Write([]byte{0})
	h.Write([]byte(filterFingerprint))
	h.Write([]byte{0})
	h.Write([]byte{byte(maxResults), byte(maxResults >> 8)})
	h.Write([]byte{0})
	h.Write([]byte{byte(offset), byte(offset >> 8), byte(offset >> 16), byte(offset >> 24)})
	return hex.EncodeToString(h.Sum(nil))
}
