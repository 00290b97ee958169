package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docbase/internal/hashutil"
	"docbase/internal/kberrors"
	"docbase/internal/similarity"
)

// memoryStore is a brute-force, in-process Store: every knn query scans all
// chunks. It doubles as the reference implementation for the Store contract
// and needs no external service.
type memoryStore struct {
	mu        sync.RWMutex
	files     map[string]*FileRecord
	chunksBy  map[string][]Chunk // filePath -> chunks, ordered by chunk_index
	dimension int
}

// NewMemory constructs an in-process Store with no persistence.
func NewMemory() Store {
	return &memoryStore{
		files:    make(map[string]*FileRecord),
		chunksBy: make(map[string][]Chunk),
	}
}

func (m *memoryStore) UpsertFile(_ context.Context, filePath, hash, category, repository, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if rec, ok := m.files[filePath]; ok {
		rec.ContentHash = hash
		rec.Category = category
		rec.Repository = repository
		rec.Title = title
		rec.LastLoadedAt = now
		return nil
	}
	m.files[filePath] = &FileRecord{
		FilePath: filePath, ContentHash: hash, Category: category, Repository: repository, Title: title,
		FirstSeenAt: now, LastLoadedAt: now,
	}
	return nil
}

func (m *memoryStore) GetFile(_ context.Context, filePath string) (*FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.files[filePath]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// ReplaceChunks enforces the store-wide embedding dimension, derives each
// chunk_id deterministically from (file_path, chunk_index,
// file_hash_at_ingest), and replaces the file's chunk set as a single
// critical section so readers never observe a mixed old/new set.
func (m *memoryStore) ReplaceChunks(_ context.Context, filePath, hash string, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range chunks {
		dim := len(chunks[i].Embedding)
		if m.dimension == 0 {
			m.dimension = dim
		} else if dim != m.dimension {
			return kberrors.NewDimensionMismatch(m.dimension, dim)
		}
		chunks[i].FilePath = filePath
		chunks[i].FileHashAtIngest = hash
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
		chunks[i].ChunkID = deriveChunkID(filePath, i, hash)
	}

	now := time.Now()
	rec, ok := m.files[filePath]
	if !ok {
		rec = &FileRecord{FilePath: filePath, FirstSeenAt: now}
		m.files[filePath] = rec
	}
	rec.ContentHash = hash
	rec.TotalChunks = len(chunks)
	rec.LastLoadedAt = now

	replaced := make([]Chunk, len(chunks))
	copy(replaced, chunks)
	m.chunksBy[filePath] = replaced
	return nil
}

func deriveChunkID(filePath string, chunkIndex int, hash string) string {
	return hashutil.HashContent([]byte(fmt.Sprintf("%s\x00%d\x00%s", filePath, chunkIndex, hash)))
}

// ListFiles returns every known File record, for the incremental loader's
// delete-detection pass.
func (m *memoryStore) ListFiles(_ context.Context) ([]FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FileRecord, 0, len(m.files))
	for _, rec := range m.files {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (m *memoryStore) DeleteFile(_ context.Context, filePath string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[filePath]; !ok {
		return 0, nil
	}
	count := len(m.chunksBy[filePath])
	delete(m.files, filePath)
	delete(m.chunksBy, filePath)
	return count, nil
}

func (m *memoryStore) GetChunksForFile(_ context.Context, filePath string) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunks, ok := m.chunksBy[filePath]
	if !ok {
		return nil, nil
	}
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

func (m *memoryStore) KNN(_ context.Context, queryEmbedding []float32, k int, filters Filters, offset int) ([]Scored, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k < 0 {
		return nil, kberrors.NewValidation("k must be >= 0, got %d", k)
	}
	if m.dimension != 0 && len(queryEmbedding) != m.dimension {
		return nil, kberrors.NewDimensionMismatch(m.dimension, len(queryEmbedding))
	}

	var candidates []Scored
	for filePath, chunks := range m.chunksBy {
		rec := m.files[filePath]
		for _, c := range chunks {
			if !passesFilter(rec, c, filters) {
				continue
			}
			sim, err := similarity.Cosine(queryEmbedding, c.Embedding)
			if err != nil {
				continue
			}
			if filters.SimilarityMin != nil && sim < *filters.SimilarityMin {
				continue
			}
			if filters.SimilarityMax != nil && sim > *filters.SimilarityMax {
				continue
			}
			candidates = append(candidates, Scored{Chunk: c, Similarity: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		if candidates[i].Chunk.FilePath != candidates[j].Chunk.FilePath {
			return candidates[i].Chunk.FilePath < candidates[j].Chunk.FilePath
		}
		return candidates[i].Chunk.ChunkIndex < candidates[j].Chunk.ChunkIndex
	})

	if offset >= len(candidates) {
		return nil, nil
	}
	candidates = candidates[offset:]
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func passesFilter(rec *FileRecord, c Chunk, f Filters) bool {
	if len(f.Categories) > 0 {
		if rec == nil || !contains(f.Categories, rec.Category) {
			return false
		}
	}
	if len(f.Tags) > 0 && !anyIntersect(f.Tags, c.Metadata.Keywords) {
		return false
	}
	if len(f.Repositories) > 0 {
		if rec == nil || !contains(f.Repositories, rec.Repository) {
			return false
		}
	}
	if f.DateFrom != nil && rec != nil && rec.LastLoadedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && rec != nil && rec.LastLoadedAt.After(*f.DateTo) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func anyIntersect(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}

func (m *memoryStore) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}
