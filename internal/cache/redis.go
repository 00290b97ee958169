package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"docbase/internal/config"
)

// QueryEmbeddingCache is the surface the Search Executor depends on for
// query-embedding lookups: a process-local in-memory cache by default, or a
// Redis-backed one when multiple processes should share query embeddings.
type QueryEmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Put(key string, vector []float32)
}

var (
	_ QueryEmbeddingCache = (*EmbeddingCache)(nil)
	_ QueryEmbeddingCache = (*RedisEmbeddingCache)(nil)
)

// RedisEmbeddingCache is the distributed variant of the query-embedding
// cache: a fixed key prefix, TTL-on-write instead of TTL-on-read (Redis
// expires keys itself), and a Scan-based Clear for tests and operator
// tooling. Bounding by entry count is left to Redis's own
// maxmemory/eviction policy rather than reimplemented here.
type RedisEmbeddingCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisEmbeddingCache connects to addr and pings it to fail fast on a
// misconfigured endpoint. ttl <= 0 means entries never expire (Redis
// default: no EX set).
func NewRedisEmbeddingCache(cfg config.RedisConfig, ttl time.Duration) (*RedisEmbeddingCache, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis embedding cache ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "kb:embed:"
	}
	return &RedisEmbeddingCache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisEmbeddingCache) key(normalizedQuery string) string {
	return c.prefix + normalizedQuery
}

// Get returns the cached embedding for key, or (nil, false) on a miss.
// Redis itself enforces the TTL deadline; a missing key and an expired key
// are indistinguishable here, so an expired entry is never served.
func (c *RedisEmbeddingCache) Get(key string) ([]float32, bool) {
	val, err := c.client.Get(context.Background(), c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("redis_embedding_cache_get_error")
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(val, &vec); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis_embedding_cache_unmarshal_error")
		return nil, false
	}
	return vec, true
}

// Put inserts or refreshes key's embedding, setting Redis's own expiry
// when a TTL is configured.
func (c *RedisEmbeddingCache) Put(key string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis_embedding_cache_marshal_error")
		return
	}
	if err := c.client.Set(context.Background(), c.key(key), data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis_embedding_cache_set_error")
	}
}

// Clear removes every entry this cache owns (its key prefix), scanning in
// batches rather than KEYS so it is safe against a large keyspace.
func (c *RedisEmbeddingCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the underlying Redis client.
func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}
