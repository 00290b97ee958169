package cache

import (
	"time"

	"docbase/internal/config"
	"docbase/internal/kberrors"
)

// NewEmbeddingCacheFromConfig constructs the query-embedding cache the
// Search Executor depends on, selecting the in-memory LRU+TTL cache or the
// Redis-backed distributed cache per cfg.Backend.
func NewEmbeddingCacheFromConfig(cfg config.CacheConfig, redisCfg config.RedisConfig) (QueryEmbeddingCache, error) {
	ttl := time.Duration(cfg.QueryTTLSeconds) * time.Second
	switch cfg.Backend {
	case "", "memory":
		return NewEmbeddingCache(cfg.QuerySize, ttl), nil
	case "redis":
		return NewRedisEmbeddingCache(redisCfg, ttl)
	default:
		return nil, kberrors.NewValidation("cache.backend must be one of memory|redis, got %q", cfg.Backend)
	}
}
