// Package chunker is the Semantic Chunker: it orchestrates the
// Sentence Splitter, Embedding Gateway, and Similarity Kernel to segment a
// document into topically coherent chunks.
package chunker

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"docbase/internal/config"
	"docbase/internal/embedclient"
	"docbase/internal/kberrors"
	"docbase/internal/similarity"
	"docbase/internal/splitter"
)

// ChunkMetadata carries derived and caller-supplied descriptive fields.
type ChunkMetadata struct {
	Title     string
	Category  string
	Keywords  []string
	WordCount int
	CharCount int
}

// DocumentMeta carries the document-level descriptive fields the caller
// derives once per file; every chunk produced from that file inherits
// them unchanged.
type DocumentMeta struct {
	Title    string
	Category string
	Keywords []string
}

// Chunk is a topically coherent span of a document.
type Chunk struct {
	ChunkIndex    int
	TotalChunks   int
	StartSentence int
	EndSentence   int
	Content       string
	Embedding     []float32
	AvgSimilarity float32
	Metadata      ChunkMetadata
}

// Chunker produces chunks from document text.
type Chunker struct {
	cfg      config.ChunkerConfig
	splitter *splitter.Splitter
	gateway  embedclient.Gateway
	log      zerolog.Logger
}

// New constructs a Chunker bound to the given embedding gateway and config.
func New(cfg config.ChunkerConfig, gateway embedclient.Gateway, log zerolog.Logger) *Chunker {
	return &Chunker{
		cfg:      cfg,
		splitter: splitter.New(cfg.MinSentenceLength),
		gateway:  gateway,
		log:      log.With().Str("component", "chunker").Logger(),
	}
}

// Chunk splits text into sentences, embeds them, finds similarity-dip
// boundaries, and assembles the resulting chunks with chunk-level
// embeddings and metadata.
func (c *Chunker) Chunk(ctx context.Context, text string, meta DocumentMeta) ([]Chunk, error) {
	sentences := c.splitter.Split(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	vectors, err := c.embedSentences(ctx, sentences)
	if err != nil {
		return nil, err
	}

	if len(sentences) == 1 {
		return c.assemble(ctx, sentences, []int{0, 0}, nil, meta)
	}

	sims, err := similarity.Pairwise(vectors)
	if err != nil {
		return nil, err
	}

	bounds := segmentBoundaries(sims, c.cfg)
	return c.assemble(ctx, sentences, bounds, sims, meta)
}

// embedSentences embeds all sentences in batches of cfg.EmbeddingBatchSize.
func (c *Chunker) embedSentences(ctx context.Context, sentences []string) ([][]float32, error) {
	batchSize := c.cfg.EmbeddingBatchSize
	if batchSize <= 0 {
		batchSize = len(sentences)
	}
	out := make([][]float32, 0, len(sentences))
	for start := 0; start < len(sentences); start += batchSize {
		end := start + batchSize
		if end > len(sentences) {
			end = len(sentences)
		}
		vecs, err := c.gateway.EmbedMany(ctx, sentences[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// segmentBoundaries runs the greedy segmentation over pairwise similarities
// and returns a flat [start0, end0, start1, end1, ...] list of inclusive
// sentence ranges. A chunk closes when the boundary score 1-sim crosses the
// adaptive cutoff and the chunk already holds MinChunkSentences, and always
// closes at MaxChunkSentences.
func segmentBoundaries(sims []float32, cfg config.ChunkerConfig) []int {
	n := len(sims) + 1 // number of sentences
	tau := adaptiveCutoff(sims, cfg)

	var bounds []int
	start := 0
	for i := 0; i < n; i++ {
		chunkLen := i - start + 1
		isLast := i == n-1
		atMax := chunkLen >= cfg.MaxChunkSentences
		crossesCutoff := !isLast && (1-sims[i]) >= tau && chunkLen >= cfg.MinChunkSentences

		if isLast || crossesCutoff || atMax {
			bounds = append(bounds, start, i)
			start = i + 1
		}
	}

	return mergeShortTail(bounds, cfg.MinChunkSentences)
}

func adaptiveCutoff(sims []float32, cfg config.ChunkerConfig) float32 {
	if len(sims) == 0 {
		return float32(1 - cfg.SimilarityThreshold)
	}
	floor := float32(1 - cfg.SimilarityThreshold)
	adaptive := similarity.Percentile(sims, float32(cfg.SimilarityPercentile))
	if floor > adaptive {
		return floor
	}
	return adaptive
}

// mergeShortTail merges the final chunk into the previous one if it has
// fewer than minChunkSentences.
func mergeShortTail(bounds []int, minChunkSentences int) []int {
	numChunks := len(bounds) / 2
	if numChunks < 2 {
		return bounds
	}
	lastStart := bounds[len(bounds)-2]
	lastEnd := bounds[len(bounds)-1]
	if lastEnd-lastStart+1 >= minChunkSentences {
		return bounds
	}
	merged := make([]int, len(bounds)-2)
	copy(merged, bounds[:len(bounds)-2])
	merged[len(merged)-1] = lastEnd
	return merged
}

// assemble builds Chunk values from sentence ranges, computing avg_similarity
// and a fresh chunk-level embedding for each.
func (c *Chunker) assemble(ctx context.Context, sentences []string, bounds []int, sims []float32, meta DocumentMeta) ([]Chunk, error) {
	numChunks := len(bounds) / 2
	contents := make([]string, numChunks)
	for i := 0; i < numChunks; i++ {
		start, end := bounds[i*2], bounds[i*2+1]
		contents[i] = strings.Join(sentences[start:end+1], " ")
	}

	embeddings, err := c.gateway.EmbedMany(ctx, contents)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, numChunks)
	for i := 0; i < numChunks; i++ {
		start, end := bounds[i*2], bounds[i*2+1]
		chunks[i] = Chunk{
			ChunkIndex:    i,
			TotalChunks:   numChunks,
			StartSentence: start,
			EndSentence:   end,
			Content:       contents[i],
			Embedding:     embeddings[i],
			AvgSimilarity: avgSimilarity(sims, start, end),
			Metadata:      deriveMetadata(contents[i], meta),
		}
	}
	c.log.Debug().Int("sentences", len(sentences)).Int("chunks", numChunks).Msg("chunked document")
	return chunks, nil
}

// avgSimilarity is the mean of sim[i] strictly internal to [start,end], or
// 1.0 for a single-sentence chunk.
func avgSimilarity(sims []float32, start, end int) float32 {
	if end <= start {
		return 1.0
	}
	var total float32
	var count int
	for i := start; i < end; i++ {
		total += sims[i]
		count++
	}
	if count == 0 {
		return 1.0
	}
	return total / float32(count)
}

// deriveMetadata computes word/char counts from chunk content and carries
// the document-level Title/Category/Keywords through unchanged.
func deriveMetadata(content string, meta DocumentMeta) ChunkMetadata {
	return ChunkMetadata{
		Title:     meta.Title,
		Category:  meta.Category,
		Keywords:  meta.Keywords,
		WordCount: len(strings.Fields(content)),
		CharCount: len([]rune(content)),
	}
}

// Validate checks chunker config bounds, mirroring config.Config.Validate
// for callers that construct a ChunkerConfig outside of config.Load.
func Validate(cfg config.ChunkerConfig) error {
	if cfg.MinChunkSentences < 1 {
		return kberrors.NewValidation("min_chunk_sentences must be >= 1, got %d", cfg.MinChunkSentences)
	}
	if cfg.MaxChunkSentences < cfg.MinChunkSentences {
		return kberrors.NewValidation("max_chunk_sentences (%d) must be >= min_chunk_sentences (%d)", cfg.MaxChunkSentences, cfg.MinChunkSentences)
	}
	return nil
}
