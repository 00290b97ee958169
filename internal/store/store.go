// Package store is the Chunk Store: durable, transactional persistence
// of File and Chunk records plus similarity retrieval, with pluggable
// Postgres (pgvector), Qdrant, and in-memory backends.
package store

import (
	"context"
	"time"
)

// FileRecord tracks a single ingested file's content hash and chunk count.
type FileRecord struct {
	FilePath     string
	ContentHash  string
	Title        string
	TotalChunks  int
	FirstSeenAt  time.Time
	LastLoadedAt time.Time
	Category     string
	// Repository groups files for multi-corpus filtering (e.g. a top-level
	// directory segment or configured repository name); it is supplied by
	// the caller, typically from LoaderConfig.Repository.
	Repository string
}

// ChunkMetadata mirrors chunker.ChunkMetadata for the persisted record.
type ChunkMetadata struct {
	Title     string
	Category  string
	Keywords  []string
	WordCount int
	CharCount int
}

// Chunk is a persisted chunk record, one row per (file_path, chunk_index).
type Chunk struct {
	ChunkID          string
	FilePath         string
	FileHashAtIngest string
	ChunkIndex       int
	TotalChunks      int
	StartSentence    int
	EndSentence      int
	Content          string
	Embedding        []float32
	AvgSimilarity    float32
	Metadata         ChunkMetadata
}

// Filters restricts knn results. Set members match any-of; nil/empty
// members are ignored.
type Filters struct {
	Categories    []string
	Repositories  []string
	Tags          []string
	SimilarityMin *float32
	SimilarityMax *float32
	DateFrom      *time.Time
	DateTo        *time.Time
}

// Scored pairs a Chunk with its similarity to a query vector.
type Scored struct {
	Chunk      Chunk
	Similarity float32
}

// Store is the Chunk Store's operation surface.
type Store interface {
	// UpsertFile creates or updates a File record. FirstSeenAt is set once,
	// on the record's first insert, and never overwritten by later calls.
	UpsertFile(ctx context.Context, filePath, hash, category, repository, title string) error
	GetFile(ctx context.Context, filePath string) (*FileRecord, error)
	// ListFiles returns every known File record, for incremental-load
	// delete detection.
	ListFiles(ctx context.Context) ([]FileRecord, error)
	// ReplaceChunks atomically deletes existing chunks for filePath and
	// inserts chunks, updating the File record's content hash. A reader
	// observing the store sees either the old set or the new set, never a
	// mix.
	ReplaceChunks(ctx context.Context, filePath, hash string, chunks []Chunk) error
	DeleteFile(ctx context.Context, filePath string) (int, error)
	GetChunksForFile(ctx context.Context, filePath string) ([]Chunk, error)
	KNN(ctx context.Context, queryEmbedding []float32, k int, filters Filters, offset int) ([]Scored, error)
	// Dimension reports the store-wide embedding dimension, or 0 if no
	// chunk has been inserted yet.
	Dimension() int
}

var (
	_ Store = (*memoryStore)(nil)
	_ Store = (*postgresStore)(nil)
	_ Store = (*qdrantStore)(nil)
)
