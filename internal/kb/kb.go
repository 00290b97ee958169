// Package kb is a thin facade over the knowledge-base pipeline's leaf
// packages. It re-exports the constructors and types a caller assembling
// the pipeline (a CLI, an HTTP server) needs most often, so that code
// doesn't have to import every leaf package individually.
package kb

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"docbase/internal/cache"
	"docbase/internal/categorize"
	"docbase/internal/chunker"
	"docbase/internal/config"
	"docbase/internal/embedclient"
	"docbase/internal/kberrors"
	"docbase/internal/loader"
	"docbase/internal/obs"
	"docbase/internal/search"
	"docbase/internal/store"
)

// Re-exported error taxonomy.
type (
	ValidationError        = kberrors.Validation
	NotFoundError          = kberrors.NotFound
	FileIOError            = kberrors.FileIO
	EmbeddingError         = kberrors.Embedding
	StorageError           = kberrors.Storage
	TimeoutError           = kberrors.Timeout
	DimensionMismatchError = kberrors.DimensionMismatch
	InvalidStateError      = kberrors.InvalidState
)

// Retryable reports whether err carries retry semantics.
func Retryable(err error) bool { return kberrors.Retryable(err) }

// Re-exported configuration and result types.
type (
	Config           = config.Config
	LoaderConfig     = config.LoaderConfig
	ChunkerConfig    = config.ChunkerConfig
	CacheConfig      = config.CacheConfig
	StoreConfig      = config.StoreConfig
	LoadStats        = loader.Stats
	FileError        = loader.FileError
	CategorizedFiles = categorize.Result
)

// DefaultConfig returns a Config with every documented default applied.
func DefaultConfig() config.Config { return config.Default() }

// LoadConfig reads and validates a YAML config document.
func LoadConfig(path string) (*config.Config, error) { return config.Load(path) }

// NewStore constructs the Chunk Store backend selected by cfg.
func NewStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	return store.New(ctx, cfg)
}

// NewGateway constructs the Embedding Gateway.
func NewGateway(cfg config.EmbeddingConfig) embedclient.Gateway { return embedclient.New(cfg) }

// NewChunker constructs the Semantic Chunker.
func NewChunker(cfg config.ChunkerConfig, gateway embedclient.Gateway, log zerolog.Logger) *chunker.Chunker {
	return chunker.New(cfg, gateway, log)
}

// NewEmbeddingCache constructs the Embedding Cache's query-embedding
// side, selecting memory or redis per cfg.Backend.
func NewEmbeddingCache(cfg config.CacheConfig, redisCfg config.RedisConfig) (cache.QueryEmbeddingCache, error) {
	return cache.NewEmbeddingCacheFromConfig(cfg, redisCfg)
}

// NewLoader constructs the Incremental Loader.
func NewLoader(cfg config.LoaderConfig, st store.Store, ch *chunker.Chunker, log zerolog.Logger, opts ...loader.Option) *loader.Loader {
	return loader.New(cfg, st, ch, log, opts...)
}

// NewSearchExecutor constructs the Search Executor. When
// cfg.ResultCacheEnabled, it also builds and wires the query-result cache
// in front of the kNN lookup.
func NewSearchExecutor(st store.Store, gateway embedclient.Gateway, embedCache cache.QueryEmbeddingCache, cfg config.CacheConfig, log zerolog.Logger, opts ...search.Option) *search.Executor {
	if cfg.ResultCacheEnabled {
		ttl := time.Duration(cfg.ResultTTLSeconds) * time.Second
		resultCache := cache.NewResultCache(cfg.ResultSize, ttl)
		opts = append([]search.Option{search.WithResultCache(resultCache)}, opts...)
	}
	return search.New(st, gateway, embedCache, log, opts...)
}

// NoopMetrics is the default ambient-metrics sink when no metrics backend
// is wired up.
var NoopMetrics = obs.NoopMetrics{}
