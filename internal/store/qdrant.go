package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"docbase/internal/kberrors"
)

// payloadChunkIDField preserves the real chunk_id in the point payload,
// since Qdrant point IDs must be UUIDs or positive integers.
const payloadChunkIDField = "_chunk_id"

// qdrantStore stores chunk vectors as Qdrant points (the payload carries
// every Chunk field except the embedding, with the metadata as a JSON
// string; chunks read back carry no Embedding) and keeps File records
// in-process, since Qdrant has no native notion of an owning file record.
type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int

	mu    sync.RWMutex
	files map[string]*FileRecord
}

// NewQdrant connects to a Qdrant instance over gRPC and ensures the
// collection exists with the given dimension and cosine distance.
func NewQdrant(ctx context.Context, dsn, collection string, dimension int) (Store, error) {
	if collection == "" {
		return nil, kberrors.NewValidation("qdrant collection name is required")
	}
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return nil, kberrors.NewValidation("invalid qdrant dsn %q: %s", dsn, err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsedURL.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, kberrors.NewValidation("invalid qdrant port in dsn %q: %s", dsn, err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsedURL.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsedURL.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, kberrors.NewStorage("failed to create qdrant client", false, err)
	}

	qs := &qdrantStore{client: client, collection: collection, dimension: dimension, files: make(map[string]*FileRecord)}
	if err := qs.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return qs, nil
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return kberrors.NewStorage("failed to check qdrant collection existence", true, err)
	}
	if exists {
		return nil
	}
	if q.dimension <= 0 {
		return kberrors.NewValidation("qdrant collection requires dimension > 0 on first creation")
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return kberrors.NewStorage("failed to create qdrant collection", true, err)
	}
	return nil
}

func (q *qdrantStore) UpsertFile(_ context.Context, filePath, hash, category, repository, title string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	rec, ok := q.files[filePath]
	if !ok {
		rec = &FileRecord{FilePath: filePath, FirstSeenAt: now}
		q.files[filePath] = rec
	}
	rec.ContentHash = hash
	rec.Category = category
	rec.Repository = repository
	rec.Title = title
	rec.LastLoadedAt = now
	return nil
}

func (q *qdrantStore) GetFile(_ context.Context, filePath string) (*FileRecord, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rec, ok := q.files[filePath]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// ListFiles returns every known File record, for the incremental loader's
// delete-detection pass. File records live in-process since Qdrant has no
// native file-ownership concept.
func (q *qdrantStore) ListFiles(_ context.Context) ([]FileRecord, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]FileRecord, 0, len(q.files))
	for _, rec := range q.files {
		out = append(out, *rec)
	}
	sortFileRecords(out)
	return out, nil
}

func sortFileRecords(recs []FileRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].FilePath < recs[j-1].FilePath; j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}

func pointUUID(chunkID string) string {
	if _, err := uuid.Parse(chunkID); err == nil {
		return chunkID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (q *qdrantStore) ReplaceChunks(ctx context.Context, filePath, hash string, chunks []Chunk) error {
	for _, c := range chunks {
		if q.dimension != 0 && len(c.Embedding) != q.dimension {
			return kberrors.NewDimensionMismatch(q.dimension, len(c.Embedding))
		}
	}

	existing, err := q.GetChunksForFile(ctx, filePath)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	newIDs := make(map[string]bool, len(chunks))
	for i := range chunks {
		chunks[i].FilePath = filePath
		chunks[i].FileHashAtIngest = hash
		chunks[i].ChunkIndex = i
		chunks[i].TotalChunks = len(chunks)
		chunks[i].ChunkID = deriveChunkID(filePath, i, hash)
		newIDs[chunks[i].ChunkID] = true

		payload, err := chunkPayload(chunks[i])
		if err != nil {
			return kberrors.NewStorage("failed to build chunk payload", false, err)
		}
		vec := make([]float32, len(chunks[i].Embedding))
		copy(vec, chunks[i].Embedding)
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(chunks[i].ChunkID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}
	}

	if len(points) > 0 {
		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points}); err != nil {
			return kberrors.NewStorage("failed to upsert qdrant points", true, err)
		}
	}

	var toDelete []*qdrant.PointId
	for _, c := range existing {
		if newIDs[c.ChunkID] {
			// Re-ingesting the same content yields the same id; that point
			// was just overwritten by the upsert and must survive.
			continue
		}
		toDelete = append(toDelete, qdrant.NewIDUUID(pointUUID(c.ChunkID)))
	}
	if len(toDelete) > 0 {
		if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Points:         qdrant.NewPointsSelector(toDelete...),
		}); err != nil {
			return kberrors.NewStorage("failed to delete stale qdrant points", true, err)
		}
	}

	q.mu.Lock()
	now := time.Now()
	rec, ok := q.files[filePath]
	if !ok {
		rec = &FileRecord{FilePath: filePath, FirstSeenAt: now}
		q.files[filePath] = rec
	}
	rec.ContentHash = hash
	rec.TotalChunks = len(chunks)
	rec.LastLoadedAt = now
	if q.dimension == 0 && len(chunks) > 0 {
		q.dimension = len(chunks[0].Embedding)
	}
	q.mu.Unlock()
	return nil
}

func (q *qdrantStore) DeleteFile(ctx context.Context, filePath string) (int, error) {
	existing, err := q.GetChunksForFile(ctx, filePath)
	if err != nil {
		return 0, err
	}
	var ids []*qdrant.PointId
	for _, c := range existing {
		ids = append(ids, qdrant.NewIDUUID(pointUUID(c.ChunkID)))
	}
	if len(ids) > 0 {
		if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: q.collection,
			Points:         qdrant.NewPointsSelector(ids...),
		}); err != nil {
			return 0, kberrors.NewStorage("failed to delete qdrant points", true, err)
		}
	}
	q.mu.Lock()
	delete(q.files, filePath)
	q.mu.Unlock()
	return len(existing), nil
}

func (q *qdrantStore) GetChunksForFile(ctx context.Context, filePath string) ([]Chunk, error) {
	must := []*qdrant.Condition{qdrant.NewMatch("file_path", filePath)}
	points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, kberrors.NewStorage("failed to scroll qdrant points", true, err)
	}
	out := make([]Chunk, 0, len(points))
	for _, p := range points {
		c, err := chunkFromPayload(p.Payload)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	sortChunksByIndex(out)
	return out, nil
}

func (q *qdrantStore) KNN(ctx context.Context, queryEmbedding []float32, k int, filters Filters, offset int) ([]Scored, error) {
	if q.dimension != 0 && len(queryEmbedding) != q.dimension {
		return nil, kberrors.NewDimensionMismatch(q.dimension, len(queryEmbedding))
	}
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(queryEmbedding))
	copy(vec, queryEmbedding)

	limit := uint64(k + offset)
	result, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, kberrors.NewStorage("failed to query qdrant", true, err)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []Scored
	for _, hit := range result {
		c, err := chunkFromPayload(hit.Payload)
		if err != nil {
			continue
		}
		rec := q.files[c.FilePath]
		if !passesFilter(rec, c, filters) {
			continue
		}
		sim := hit.Score
		if filters.SimilarityMin != nil && sim < *filters.SimilarityMin {
			continue
		}
		if filters.SimilarityMax != nil && sim > *filters.SimilarityMax {
			continue
		}
		out = append(out, Scored{Chunk: c, Similarity: sim})
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:], nil
}

func (q *qdrantStore) Dimension() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dimension
}

func chunkPayload(c Chunk) (map[string]*qdrant.Value, error) {
	md, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, err
	}
	return qdrant.NewValueMap(map[string]any{
		payloadChunkIDField:   c.ChunkID,
		"file_path":           c.FilePath,
		"file_hash_at_ingest": c.FileHashAtIngest,
		"chunk_index":         int64(c.ChunkIndex),
		"total_chunks":        int64(c.TotalChunks),
		"start_sentence":      int64(c.StartSentence),
		"end_sentence":        int64(c.EndSentence),
		"content":             c.Content,
		"avg_similarity":      float64(c.AvgSimilarity),
		"metadata":            string(md),
	}), nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) (Chunk, error) {
	get := func(k string) *qdrant.Value { return payload[k] }
	var c Chunk
	c.ChunkID = get(payloadChunkIDField).GetStringValue()
	c.FilePath = get("file_path").GetStringValue()
	c.FileHashAtIngest = get("file_hash_at_ingest").GetStringValue()
	c.ChunkIndex = int(get("chunk_index").GetIntegerValue())
	c.TotalChunks = int(get("total_chunks").GetIntegerValue())
	c.StartSentence = int(get("start_sentence").GetIntegerValue())
	c.EndSentence = int(get("end_sentence").GetIntegerValue())
	c.Content = get("content").GetStringValue()
	c.AvgSimilarity = float32(get("avg_similarity").GetDoubleValue())
	if mdRaw := get("metadata").GetStringValue(); mdRaw != "" {
		if err := json.Unmarshal([]byte(mdRaw), &c.Metadata); err != nil {
			return c, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
	}
	return c, nil
}

func sortChunksByIndex(chunks []Chunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j].ChunkIndex < chunks[j-1].ChunkIndex; j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
		}
	}
}
