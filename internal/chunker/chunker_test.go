package chunker

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbase/internal/config"
)

// fakeGateway assigns each distinct text a fixed vector from a lookup table,
// so tests can control similarity between sentences precisely.
type fakeGateway struct {
	vectors map[string][]float32
	def     []float32
}

func (f *fakeGateway) EmbedOne(_ context.Context, text string) ([]float32, error) {
	out, err := f.EmbedMany(context.Background(), []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeGateway) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		if f.def != nil {
			out[i] = f.def
			continue
		}
		out[i] = hashVec(t)
	}
	return out, nil
}

// hashVec derives a pseudo-embedding from text length and content, so
// distinct strings without explicit lookup entries still get distinct but
// deterministic vectors.
func hashVec(t string) []float32 {
	var sum float32
	for _, r := range t {
		sum += float32(r)
	}
	return []float32{sum, float32(len(t))}
}

func newTestChunker(cfg config.ChunkerConfig, gw *fakeGateway) *Chunker {
	return New(cfg, gw, zerolog.Nop())
}

func TestChunk_EmptyText(t *testing.T) {
	gw := &fakeGateway{def: []float32{1, 0}}
	c := newTestChunker(config.PresetTechnicalDocs, gw)
	chunks, err := c.Chunk(context.Background(), "", DocumentMeta{})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_SingleSentence(t *testing.T) {
	gw := &fakeGateway{def: []float32{1, 0}}
	cfg := config.PresetTechnicalDocs
	c := newTestChunker(cfg, gw)
	chunks, err := c.Chunk(context.Background(), "This is one lone sentence with enough length.", DocumentMeta{Title: "Lone", Category: "reference"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, float32(1.0), chunks[0].AvgSimilarity)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[0].TotalChunks)
}

func TestChunk_SplitsAtSimilarityDip(t *testing.T) {
	topicA1 := "Cats are wonderful small mammals that purr softly."
	topicA2 := "Many cats enjoy long naps in sunny warm windows."
	topicB1 := "Quarterly revenue grew sharply across every region."
	topicB2 := "The board approved a new capital expenditure budget."

	vecs := map[string][]float32{
		topicA1: {1, 0},
		topicA2: {0.95, 0.05},
		topicB1: {0, 1},
		topicB2: {0.05, 0.95},
	}
	gw := &fakeGateway{vectors: vecs}

	cfg := config.ChunkerConfig{
		SimilarityThreshold:  0.70,
		MinChunkSentences:    1,
		MaxChunkSentences:    30,
		SimilarityPercentile: 0.0, // picks the minimum observed similarity as the adaptive floor
		MinSentenceLength:    10,
		EmbeddingBatchSize:   32,
	}
	c := newTestChunker(cfg, gw)

	text := strings.Join([]string{topicA1, topicA2, topicB1, topicB2}, " ")
	chunks, err := c.Chunk(context.Background(), text, DocumentMeta{Title: "Mixed Topics", Category: "explanation"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, "Cats")
	assert.Contains(t, chunks[1].Content, "revenue")
}

func TestChunk_ForcesSplitAtMaxChunkSentences(t *testing.T) {
	var sentences []string
	for i := 0; i < 10; i++ {
		sentences = append(sentences, "This sentence repeats identically every single time here.")
	}
	gw := &fakeGateway{def: []float32{1, 0}}

	cfg := config.ChunkerConfig{
		SimilarityThreshold:  0.70,
		MinChunkSentences:    1,
		MaxChunkSentences:    3,
		SimilarityPercentile: 0.50,
		MinSentenceLength:    10,
		EmbeddingBatchSize:   32,
	}
	c := newTestChunker(cfg, gw)
	text := strings.Join(sentences, " ")
	chunks, err := c.Chunk(context.Background(), text, DocumentMeta{})
	require.NoError(t, err)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.EndSentence-ch.StartSentence+1, 3)
	}
}

func TestChunk_MergesShortTailChunk(t *testing.T) {
	topicA1 := "Cats are wonderful small mammals that purr softly."
	topicA2 := "Many cats enjoy long naps in sunny warm windows."
	topicB1 := "Quarterly revenue grew sharply across every region."

	vecs := map[string][]float32{
		topicA1: {1, 0},
		topicA2: {0.95, 0.05},
		topicB1: {0, 1},
	}
	gw := &fakeGateway{vectors: vecs}

	cfg := config.ChunkerConfig{
		SimilarityThreshold:  0.70,
		MinChunkSentences:    2,
		MaxChunkSentences:    30,
		SimilarityPercentile: 0.0,
		MinSentenceLength:    10,
		EmbeddingBatchSize:   32,
	}
	c := newTestChunker(cfg, gw)
	text := strings.Join([]string{topicA1, topicA2, topicB1}, " ")
	chunks, err := c.Chunk(context.Background(), text, DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 1, "the short tail chunk produced by the dip must merge back into the previous one")
	assert.Contains(t, chunks[0].Content, "revenue")
}

func TestChunk_ThreeSentencesWithMaxTwoYieldsTwoOneSplit(t *testing.T) {
	gw := &fakeGateway{def: []float32{1, 0}}
	cfg := config.ChunkerConfig{
		SimilarityThreshold:  0.70,
		MinChunkSentences:    1,
		MaxChunkSentences:    2,
		SimilarityPercentile: 0.50,
		MinSentenceLength:    5,
		EmbeddingBatchSize:   32,
	}
	c := newTestChunker(cfg, gw)
	chunks, err := c.Chunk(context.Background(), "First sentence. Second sentence. Third sentence.", DocumentMeta{})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[0].EndSentence-chunks[0].StartSentence+1)
	assert.Equal(t, 1, chunks[1].EndSentence-chunks[1].StartSentence+1)
}

func TestChunk_ChunkIndexAndTotalChunksConsistent(t *testing.T) {
	gw := &fakeGateway{def: []float32{1, 0}}
	cfg := config.PresetNarrative
	c := newTestChunker(cfg, gw)
	text := "First sentence here now. Second sentence here now. Third sentence here now."
	chunks, err := c.Chunk(context.Background(), text, DocumentMeta{})
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Equal(t, len(chunks), ch.TotalChunks)
	}
}

func TestValidate_MaxLessThanMin(t *testing.T) {
	cfg := config.PresetTechnicalDocs
	cfg.MinChunkSentences = 10
	cfg.MaxChunkSentences = 5
	assert.Error(t, Validate(cfg))
}

func TestDeriveMetadata_WordAndCharCount(t *testing.T) {
	m := deriveMetadata("hello world", DocumentMeta{})
	assert.Equal(t, 2, m.WordCount)
	assert.Equal(t, 11, m.CharCount)
}

func TestDeriveMetadata_CarriesDocumentMetaThrough(t *testing.T) {
	m := deriveMetadata("hello world", DocumentMeta{Title: "Intro", Category: "tutorial", Keywords: []string{"hello"}})
	assert.Equal(t, "Intro", m.Title)
	assert.Equal(t, "tutorial", m.Category)
	assert.Equal(t, []string{"hello"}, m.Keywords)
}

func TestChunk_PropagatesDocumentMetaToEveryChunk(t *testing.T) {
	gw := &fakeGateway{def: []float32{1, 0}}
	cfg := config.PresetTechnicalDocs
	cfg.MaxChunkSentences = 1
	c := newTestChunker(cfg, gw)
	text := "First sentence here now. Second sentence here now."
	chunks, err := c.Chunk(context.Background(), text, DocumentMeta{Title: "Doc Title", Category: "howto", Keywords: []string{"alpha"}})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, "Doc Title", ch.Metadata.Title)
		assert.Equal(t, "howto", ch.Metadata.Category)
		assert.Equal(t, []string{"alpha"}, ch.Metadata.Keywords)
	}
}
