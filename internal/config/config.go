// Package config loads and validates the typed configuration surface for
// the knowledge-base pipeline: embedding gateway, chunker, loader, chunk
// store, embedding cache, and logging. Load decodes a document over
// Default(), so omitted keys keep their defaults; Validate checks the
// chunker, loader, cache, store and log values against their ranges.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"docbase/internal/kberrors"
)

// EmbeddingConfig configures the HTTP client used to reach the embedding
// oracle consumed by the Embedding Gateway.
type EmbeddingConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Path       string            `yaml:"path"`
	Model      string            `yaml:"model"`
	APIKey     string            `yaml:"api_key,omitempty"`
	APIHeader  string            `yaml:"api_header,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	TimeoutSec int               `yaml:"timeout_seconds"`
	MaxRetries int               `yaml:"max_retries"`
	BatchSize  int               `yaml:"batch_size"`
}

// ChunkerConfig is the Semantic Chunker's tunable surface.
type ChunkerConfig struct {
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	MinChunkSentences    int     `yaml:"min_chunk_sentences"`
	MaxChunkSentences    int     `yaml:"max_chunk_sentences"`
	SimilarityPercentile float64 `yaml:"similarity_percentile"`
	MinSentenceLength    int     `yaml:"min_sentence_length"`
	EmbeddingBatchSize   int     `yaml:"embedding_batch_size"`
}

// Document-type presets: technical material tolerates longer chunks with a
// higher boundary bar; narrative prose breaks earlier and shorter.
var (
	PresetTechnicalDocs = ChunkerConfig{SimilarityThreshold: 0.75, MinChunkSentences: 3, MaxChunkSentences: 40, SimilarityPercentile: 0.50, MinSentenceLength: 10, EmbeddingBatchSize: 32}
	PresetNarrative     = ChunkerConfig{SimilarityThreshold: 0.65, MinChunkSentences: 3, MaxChunkSentences: 20, SimilarityPercentile: 0.50, MinSentenceLength: 10, EmbeddingBatchSize: 32}
)

// LoaderConfig is the Incremental Loader's operating mode.
type LoaderConfig struct {
	Resume           bool     `yaml:"resume"`
	Update           bool     `yaml:"update"`
	Cleanup          bool     `yaml:"cleanup"`
	DryRun           bool     `yaml:"dry_run"`
	Force            bool     `yaml:"force"`
	MaxParallelFiles int      `yaml:"max_parallel_files"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// Repository tags every File record this Loader upserts, so searches
	// can filter by corpus. Left empty for a single-repository deployment.
	Repository string `yaml:"repository,omitempty"`
}

// CacheConfig is the Embedding Cache's bounds.
type CacheConfig struct {
	// Backend selects the query-embedding cache implementation: "memory"
	// (default, process-local LRU+TTL) or "redis" (shared across
	// processes).
	Backend            string `yaml:"backend"`
	QuerySize          int    `yaml:"query_cache_size"`
	QueryTTLSeconds    int    `yaml:"query_cache_ttl_seconds"`
	ResultCacheEnabled bool   `yaml:"result_cache_enabled"`
	ResultSize         int    `yaml:"result_cache_size"`
	ResultTTLSeconds   int    `yaml:"result_cache_ttl_seconds"`
}

// RedisConfig configures the optional Redis-backed embedding cache
// (CacheConfig.Backend == "redis").
type RedisConfig struct {
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password,omitempty"`
	DB                    int    `yaml:"db"`
	KeyPrefix             string `yaml:"key_prefix,omitempty"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify,omitempty"`
}

// StoreConfig selects and configures the Chunk Store's backend.
type StoreConfig struct {
	Backend          string `yaml:"backend"` // "postgres", "qdrant", or "memory"
	ConnectionString string `yaml:"connection_string,omitempty"`
	QdrantAddr       string `yaml:"qdrant_addr,omitempty"`
	Collection       string `yaml:"collection,omitempty"`
	// Dimension is required only by the qdrant backend when its collection
	// doesn't exist yet: Qdrant fixes the vector width at collection
	// creation, before the first insert can reveal it.
	Dimension int `yaml:"dimension,omitempty"`
}

// LogConfig configures ambient structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the root configuration document.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Loader    LoaderConfig    `yaml:"loader"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

var validLogLevels = []string{"trace", "debug", "info", "warn", "error"}

// IsValidLogLevel reports whether level is one of the recognized levels.
func IsValidLogLevel(level string) bool {
	for _, l := range validLogLevels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

// Default returns a Config with every documented default applied.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			Path:       "/embeddings",
			TimeoutSec: 300,
			MaxRetries: 3,
			BatchSize:  32,
		},
		Chunker: ChunkerConfig{
			SimilarityThreshold:  0.70,
			MinChunkSentences:    3,
			MaxChunkSentences:    30,
			SimilarityPercentile: 0.50,
			MinSentenceLength:    10,
			EmbeddingBatchSize:   32,
		},
		Loader: LoaderConfig{
			Resume:            true,
			Update:            true,
			MaxParallelFiles:  4,
			AllowedExtensions: []string{".md"},
		},
		Cache: CacheConfig{
			Backend:          "memory",
			QuerySize:        500,
			QueryTTLSeconds:  3600,
			ResultSize:       200,
			ResultTTLSeconds: 300,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config document at path and decodes it over Default(),
// rejecting unknown keys, then validates the result. Keys the document
// omits keep their defaults; a key set explicitly to a zero value keeps
// that zero value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kberrors.NewFileIO(path, "failed to read config file", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, kberrors.NewValidation("failed to parse config file %s: %s", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the chunker, loader, cache, store and log fields against
// their documented ranges, returning a
// *kberrors.Validation describing the first violation found.
func (c *Config) Validate() error {
	if c.Chunker.SimilarityThreshold < 0 || c.Chunker.SimilarityThreshold > 1 {
		return kberrors.NewValidation("chunker.similarity_threshold must be in [0,1], got %v", c.Chunker.SimilarityThreshold)
	}
	if c.Chunker.MinChunkSentences < 1 {
		return kberrors.NewValidation("chunker.min_chunk_sentences must be >= 1, got %d", c.Chunker.MinChunkSentences)
	}
	if c.Chunker.MaxChunkSentences < c.Chunker.MinChunkSentences {
		return kberrors.NewValidation("chunker.max_chunk_sentences (%d) must be >= min_chunk_sentences (%d)", c.Chunker.MaxChunkSentences, c.Chunker.MinChunkSentences)
	}
	if c.Chunker.SimilarityPercentile < 0 || c.Chunker.SimilarityPercentile > 1 {
		return kberrors.NewValidation("chunker.similarity_percentile must be in [0,1], got %v", c.Chunker.SimilarityPercentile)
	}
	if c.Chunker.MinSentenceLength < 1 {
		return kberrors.NewValidation("chunker.min_sentence_length must be >= 1, got %d", c.Chunker.MinSentenceLength)
	}
	if c.Chunker.EmbeddingBatchSize < 1 {
		return kberrors.NewValidation("chunker.embedding_batch_size must be >= 1, got %d", c.Chunker.EmbeddingBatchSize)
	}
	if c.Loader.MaxParallelFiles < 1 {
		return kberrors.NewValidation("loader.max_parallel_files must be >= 1, got %d", c.Loader.MaxParallelFiles)
	}
	if c.Cache.QuerySize < 1 {
		return kberrors.NewValidation("cache.query_cache_size must be >= 1, got %d", c.Cache.QuerySize)
	}
	if c.Cache.ResultCacheEnabled && c.Cache.ResultSize < 1 {
		return kberrors.NewValidation("cache.result_cache_size must be >= 1 when result_cache_enabled, got %d", c.Cache.ResultSize)
	}
	switch c.Cache.Backend {
	case "", "memory", "redis":
	default:
		return kberrors.NewValidation("cache.backend must be one of memory|redis, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		return kberrors.NewValidation("redis.addr is required when cache.backend is \"redis\"")
	}
	switch c.Store.Backend {
	case "postgres", "qdrant", "memory":
	default:
		return kberrors.NewValidation("store.backend must be one of postgres|qdrant|memory, got %q", c.Store.Backend)
	}
	if !IsValidLogLevel(c.Log.Level) {
		return kberrors.NewValidation("log.level %q is not one of %s", c.Log.Level, strings.Join(validLogLevels, ", "))
	}
	return nil
}

// String renders a human-readable summary, useful for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("store=%s chunker(threshold=%.2f,min=%d,max=%d) cache(size=%d,ttl=%ds)",
		c.Store.Backend, c.Chunker.SimilarityThreshold, c.Chunker.MinChunkSentences,
		c.Chunker.MaxChunkSentences, c.Cache.QuerySize, c.Cache.QueryTTLSeconds)
}
