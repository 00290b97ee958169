// Package search is the Search Executor: validates and normalizes
// a caller's query, resolves its embedding through the Embedding Cache and
// Gateway, runs a kNN lookup against the Chunk Store, and assembles
// paginated results.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docbase/internal/cache"
	"docbase/internal/embedclient"
	"docbase/internal/kberrors"
	"docbase/internal/obs"
	"docbase/internal/store"
)

// ValidCategories enumerates the Diátaxis categories the executor accepts
// in Filters.Categories; the tag is otherwise opaque, but unknown strings
// are rejected up front so a typo never silently matches nothing.
var ValidCategories = []string{"tutorial", "howto", "reference", "explanation"}

const maxResultsLimit = 100

// Query is the caller-facing request, covering both the "simple" surface
// (Text only) and the "advanced" surface (Filters, pagination,
// SimilarityMin).
type Query struct {
	Text          string
	Filters       store.Filters
	MaxResults    int
	Offset        int
	MinSimilarity float32
}

// ResolvedQuery is Query after validation and normalization.
type ResolvedQuery struct {
	NormalizedText string
	Filters        store.Filters
	MaxResults     int
	Offset         int
	MinSimilarity  float32
}

// Result is one scored chunk in a Response.
type Result struct {
	ChunkID       string
	FilePath      string
	Content       string
	Similarity    float32
	ChunkIndex    int
	TotalChunks   int
	Title         string
	Category      string
	StartSentence int
	EndSentence   int
	AvgSimilarity float32
}

// Response is a paginated result set.
type Response struct {
	Results []Result
	Offset  int
	Limit   int
	Total   int
	HasMore bool
}

// Executor runs validated queries against the chunk store.
type Executor struct {
	store       store.Store
	gateway     embedclient.Gateway
	embedCache  cache.QueryEmbeddingCache
	resultCache *cache.ResultCache
	metrics     obs.Metrics
	log         zerolog.Logger
}

// Option configures an Executor during construction.
type Option func(*Executor)

// WithResultCache enables the optional query-result cache.
func WithResultCache(c *cache.ResultCache) Option {
	return func(e *Executor) { e.resultCache = c }
}

// WithMetrics sets a custom metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New constructs an Executor. embedCache must not be nil; pass
// cache.NewEmbeddingCache(0, 0) to disable caching, or a
// *cache.RedisEmbeddingCache (via cache.NewEmbeddingCacheFromConfig) for
// the distributed option.
func New(st store.Store, gateway embedclient.Gateway, embedCache cache.QueryEmbeddingCache, log zerolog.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:      st,
		gateway:    gateway,
		embedCache: embedCache,
		metrics:    obs.NoopMetrics{},
		log:        log.With().Str("component", "search").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks the query against its documented bounds, returning a
// *kberrors.Validation on the first violation.
func Validate(q Query) (ResolvedQuery, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return ResolvedQuery{}, kberrors.NewValidation("query text must be non-empty")
	}
	maxResults := q.MaxResults
	if maxResults == 0 {
		maxResults = 10
	}
	if maxResults < 1 || maxResults > maxResultsLimit {
		return ResolvedQuery{}, kberrors.NewValidation("max_results must be in [1,%d], got %d", maxResultsLimit, maxResults)
	}
	if q.Offset < 0 {
		return ResolvedQuery{}, kberrors.NewValidation("offset must be >= 0, got %d", q.Offset)
	}
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return ResolvedQuery{}, kberrors.NewValidation("min_similarity must be in [0,1], got %f", q.MinSimilarity)
	}
	if q.Filters.SimilarityMin != nil && q.Filters.SimilarityMax != nil && *q.Filters.SimilarityMin > *q.Filters.SimilarityMax {
		return ResolvedQuery{}, kberrors.NewValidation("similarity_range min (%f) must be <= max (%f)", *q.Filters.SimilarityMin, *q.Filters.SimilarityMax)
	}
	for _, c := range q.Filters.Categories {
		if !isValidCategory(c) {
			return ResolvedQuery{}, kberrors.NewValidation("unknown category %q, expected one of %v", c, ValidCategories)
		}
	}
	return ResolvedQuery{
		NormalizedText: cache.NormalizeQuery(text),
		Filters:        q.Filters,
		MaxResults:     maxResults,
		Offset:         q.Offset,
		MinSimilarity:  q.MinSimilarity,
	}, nil
}

func isValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Search validates and normalizes q, resolves its embedding through the
// cache or the gateway, runs kNN against the store, and assembles the
// paginated, similarity-filtered response.
func (e *Executor) Search(ctx context.Context, q Query) (Response, error) {
	start := time.Now()
	resolved, err := Validate(q)
	if err != nil {
		return Response{}, err
	}

	var resultKey string
	if e.resultCache != nil {
		resultKey = cache.ResultKey(resolved.NormalizedText, filterFingerprint(resolved.Filters), resolved.MaxResults, resolved.Offset)
		if cached, ok := e.resultCache.Get(resultKey); ok {
			e.metrics.IncCounter("result_cache_hit", nil)
			return cached.(Response), nil
		}
		e.metrics.IncCounter("result_cache_miss", nil)
	}

	embedding, err := e.resolveEmbedding(ctx, resolved.NormalizedText)
	if err != nil {
		return Response{}, err
	}

	k := resolved.MaxResults + resolved.Offset
	scored, err := e.store.KNN(ctx, embedding, k, resolved.Filters, 0)
	if err != nil {
		return Response{}, err
	}

	if resolved.Offset < len(scored) {
		scored = scored[resolved.Offset:]
	} else {
		scored = nil
	}

	results := make([]Result, 0, len(scored))
	for _, s := range scored {
		if s.Similarity < resolved.MinSimilarity {
			continue
		}
		results = append(results, Result{
			ChunkID:       s.Chunk.ChunkID,
			FilePath:      s.Chunk.FilePath,
			Content:       s.Chunk.Content,
			Similarity:    s.Similarity,
			ChunkIndex:    s.Chunk.ChunkIndex,
			TotalChunks:   s.Chunk.TotalChunks,
			Title:         s.Chunk.Metadata.Title,
			Category:      s.Chunk.Metadata.Category,
			StartSentence: s.Chunk.StartSentence,
			EndSentence:   s.Chunk.EndSentence,
			AvgSimilarity: s.Chunk.AvgSimilarity,
		})
		if len(results) >= resolved.MaxResults {
			break
		}
	}

	e.metrics.ObserveHistogram("search_duration_ms", float64(time.Since(start).Milliseconds()), nil)
	e.log.Debug().Str("query", resolved.NormalizedText).Int("results", len(results)).Msg("search executed")

	resp := Response{
		Results: results,
		Offset:  resolved.Offset,
		Limit:   resolved.MaxResults,
		Total:   len(results),
		HasMore: len(scored) > len(results),
	}
	if e.resultCache != nil {
		e.resultCache.Put(resultKey, resp)
	}
	return resp, nil
}

// filterFingerprint renders f into a stable string so distinct filter
// combinations never collide in the result cache's key space.
func filterFingerprint(f store.Filters) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cat=%v;repo=%v;tags=%v", f.Categories, f.Repositories, f.Tags)
	if f.SimilarityMin != nil {
		fmt.Fprintf(&b, ";simmin=%f", *f.SimilarityMin)
	}
	if f.SimilarityMax != nil {
		fmt.Fprintf(&b, ";simmax=%f", *f.SimilarityMax)
	}
	if f.DateFrom != nil {
		fmt.Fprintf(&b, ";from=%d", f.DateFrom.UnixNano())
	}
	if f.DateTo != nil {
		fmt.Fprintf(&b, ";to=%d", f.DateTo.UnixNano())
	}
	return b.String()
}

func (e *Executor) resolveEmbedding(ctx context.Context, normalizedText string) ([]float32, error) {
	if vec, ok := e.embedCache.Get(normalizedText); ok {
		e.metrics.IncCounter("query_cache_hit", nil)
		return vec, nil
	}
	e.metrics.IncCounter("query_cache_miss", nil)

	vec, err := e.gateway.EmbedOne(ctx, normalizedText)
	if err != nil {
		return nil, err
	}
	e.embedCache.Put(normalizedText, vec)
	return vec, nil
}
