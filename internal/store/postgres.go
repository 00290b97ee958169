package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docbase/internal/kberrors"
)

// postgresStore persists files and chunks via pgvector: one table per
// record kind, with ReplaceChunks executed inside a single transaction so
// readers never observe a torn chunk set.
type postgresStore struct {
	pool      *pgxpool.Pool
	dimension int
}

// NewPostgres connects to Postgres and ensures the pgvector extension and
// schema exist. The store-wide embedding dimension is fixed by the first
// inserted chunk and enforced on every write and query thereafter.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (Store, error) {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, kberrors.NewStorage("failed to create vector extension", true, err)
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS kb_files (
  file_path TEXT PRIMARY KEY,
  content_hash TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  repository TEXT NOT NULL DEFAULT '',
  total_chunks INT NOT NULL DEFAULT 0,
  first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
		return nil, kberrors.NewStorage("failed to create kb_files table", true, err)
	}
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS kb_chunks (
  chunk_id TEXT PRIMARY KEY,
  file_path TEXT NOT NULL REFERENCES kb_files(file_path) ON DELETE CASCADE,
  file_hash_at_ingest TEXT NOT NULL,
  chunk_index INT NOT NULL,
  total_chunks INT NOT NULL,
  start_sentence INT NOT NULL,
  end_sentence INT NOT NULL,
  content TEXT NOT NULL,
  embedding vector,
  avg_similarity REAL NOT NULL,
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
  UNIQUE(file_path, chunk_index)
)`); err != nil {
		return nil, kberrors.NewStorage("failed to create kb_chunks table", true, err)
	}

	dim, err := currentDimension(ctx, pool)
	if err != nil {
		return nil, err
	}
	return &postgresStore{pool: pool, dimension: dim}, nil
}

func currentDimension(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var dim int
	err := pool.QueryRow(ctx, `SELECT COALESCE(vector_dims(embedding), 0) FROM kb_chunks LIMIT 1`).Scan(&dim)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, kberrors.NewStorage("failed to determine embedding dimension", true, err)
	}
	return dim, nil
}

// UpsertFile inserts a new File record (setting first_seen_at to now) or
// updates an existing one in place, leaving first_seen_at untouched.
func (p *postgresStore) UpsertFile(ctx context.Context, filePath, hash, category, repository, title string) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO kb_files(file_path, content_hash, category, repository, title, first_seen_at, last_loaded_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (file_path) DO UPDATE SET content_hash=EXCLUDED.content_hash, category=EXCLUDED.category,
  repository=EXCLUDED.repository, title=EXCLUDED.title, last_loaded_at=now()
`, filePath, hash, category, repository, title)
	if err != nil {
		return kberrors.NewStorage("failed to upsert file", true, err)
	}
	return nil
}

func (p *postgresStore) GetFile(ctx context.Context, filePath string) (*FileRecord, error) {
	var rec FileRecord
	err := p.pool.QueryRow(ctx, `SELECT file_path, content_hash, title, category, repository, total_chunks, first_seen_at, last_loaded_at
FROM kb_files WHERE file_path=$1`, filePath).Scan(
		&rec.FilePath, &rec.ContentHash, &rec.Title, &rec.Category, &rec.Repository, &rec.TotalChunks, &rec.FirstSeenAt, &rec.LastLoadedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, kberrors.NewStorage("failed to get file", true, err)
	}
	return &rec, nil
}

// ReplaceChunks runs entirely inside one transaction: delete-then-insert,
// so a concurrent reader sees either the full old set or the full new set.
func (p *postgresStore) ReplaceChunks(ctx context.Context, filePath, hash string, chunks []Chunk) error {
	for _, c := range chunks {
		dim := len(c.Embedding)
		if p.dimension != 0 && dim != p.dimension {
			return kberrors.NewDimensionMismatch(p.dimension, dim)
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return kberrors.NewStorage("failed to begin transaction", true, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO kb_files(file_path, content_hash, total_chunks, first_seen_at, last_loaded_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (file_path) DO UPDATE SET content_hash=EXCLUDED.content_hash, total_chunks=EXCLUDED.total_chunks, last_loaded_at=now()
`, filePath, hash, len(chunks)); err != nil {
		return kberrors.NewStorage("failed to upsert file during replace", true, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM kb_chunks WHERE file_path=$1`, filePath); err != nil {
		return kberrors.NewStorage("failed to delete existing chunks", true, err)
	}

	for i, c := range chunks {
		chunkID := deriveChunkID(filePath, i, hash)
		md, err := json.Marshal(c.Metadata)
		if err != nil {
			return kberrors.NewStorage("failed to marshal chunk metadata", false, err)
		}
		vecLit := toVectorLiteral(c.Embedding)
		if _, err := tx.Exec(ctx, `
INSERT INTO kb_chunks(chunk_id, file_path, file_hash_at_ingest, chunk_index, total_chunks,
  start_sentence, end_sentence, content, embedding, avg_similarity, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::vector,$10,$11)
`, chunkID, filePath, hash, i, len(chunks), c.StartSentence, c.EndSentence, c.Content, vecLit, c.AvgSimilarity, md); err != nil {
			return kberrors.NewStorage("failed to insert chunk", true, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return kberrors.NewStorage("failed to commit replace_chunks transaction", true, err)
	}
	if p.dimension == 0 && len(chunks) > 0 {
		p.dimension = len(chunks[0].Embedding)
	}
	return nil
}

// ListFiles returns every known File record, for the incremental loader's
// delete-detection pass.
func (p *postgresStore) ListFiles(ctx context.Context) ([]FileRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT file_path, content_hash, title, category, repository, total_chunks, first_seen_at, last_loaded_at
FROM kb_files ORDER BY file_path ASC`)
	if err != nil {
		return nil, kberrors.NewStorage("failed to list files", true, err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.FilePath, &rec.ContentHash, &rec.Title, &rec.Category, &rec.Repository, &rec.TotalChunks, &rec.FirstSeenAt, &rec.LastLoadedAt); err != nil {
			return nil, kberrors.NewStorage("failed to scan file row", true, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *postgresStore) DeleteFile(ctx context.Context, filePath string) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks WHERE file_path=$1`, filePath).Scan(&count); err != nil {
		return 0, kberrors.NewStorage("failed to count chunks before delete", true, err)
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM kb_files WHERE file_path=$1`, filePath); err != nil {
		return 0, kberrors.NewStorage("failed to delete file", true, err)
	}
	return count, nil
}

func (p *postgresStore) GetChunksForFile(ctx context.Context, filePath string) ([]Chunk, error) {
	rows, err := p.pool.Query(ctx, `
SELECT chunk_id, file_path, file_hash_at_ingest, chunk_index, total_chunks, start_sentence, end_sentence,
  content, embedding::text, avg_similarity, metadata
FROM kb_chunks WHERE file_path=$1 ORDER BY chunk_index ASC`, filePath)
	if err != nil {
		return nil, kberrors.NewStorage("failed to query chunks for file", true, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (p *postgresStore) KNN(ctx context.Context, queryEmbedding []float32, k int, filters Filters, offset int) ([]Scored, error) {
	if p.dimension != 0 && len(queryEmbedding) != p.dimension {
		return nil, kberrors.NewDimensionMismatch(p.dimension, len(queryEmbedding))
	}
	if k <= 0 {
		k = 10
	}
	vecLit := toVectorLiteral(queryEmbedding)

	var where []string
	args := []any{vecLit}
	argN := func() string { return fmt.Sprintf("$%d", len(args)) }

	if len(filters.Categories) > 0 {
		args = append(args, filters.Categories)
		where = append(where, "f.category = ANY("+argN()+")")
	}
	if len(filters.Repositories) > 0 {
		args = append(args, filters.Repositories)
		where = append(where, "f.repository = ANY("+argN()+")")
	}
	if len(filters.Tags) > 0 {
		args = append(args, filters.Tags)
		where = append(where, "c.metadata->'Keywords' ?| "+argN())
	}
	if filters.DateFrom != nil {
		args = append(args, *filters.DateFrom)
		where = append(where, "f.last_loaded_at >= "+argN())
	}
	if filters.DateTo != nil {
		args = append(args, *filters.DateTo)
		where = append(where, "f.last_loaded_at <= "+argN())
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, k, offset)
	query := fmt.Sprintf(`
SELECT c.chunk_id, c.file_path, c.file_hash_at_ingest, c.chunk_index, c.total_chunks, c.start_sentence,
  c.end_sentence, c.content, c.embedding::text, c.avg_similarity, c.metadata,
  1 - (c.embedding <=> $1::vector) AS similarity
FROM kb_chunks c JOIN kb_files f ON f.file_path = c.file_path
%s
ORDER BY c.embedding <=> $1::vector ASC, f.file_path ASC, c.chunk_index ASC
LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, kberrors.NewStorage("failed to run knn query", true, err)
	}
	defer rows.Close()

	var out []Scored
	for rows.Next() {
		var c Chunk
		var mdRaw []byte
		var vecRaw string
		var sim float32
		if err := rows.Scan(&c.ChunkID, &c.FilePath, &c.FileHashAtIngest, &c.ChunkIndex, &c.TotalChunks,
			&c.StartSentence, &c.EndSentence, &c.Content, &vecRaw, &c.AvgSimilarity, &mdRaw, &sim); err != nil {
			return nil, kberrors.NewStorage("failed to scan knn row", true, err)
		}
		c.Embedding = fromVectorLiteral(vecRaw)
		_ = json.Unmarshal(mdRaw, &c.Metadata)
		if filters.SimilarityMin != nil && sim < *filters.SimilarityMin {
			continue
		}
		if filters.SimilarityMax != nil && sim > *filters.SimilarityMax {
			continue
		}
		out = append(out, Scored{Chunk: c, Similarity: sim})
	}
	return out, rows.Err()
}

func (p *postgresStore) Dimension() int { return p.dimension }

func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var mdRaw []byte
		var vecRaw string
		if err := rows.Scan(&c.ChunkID, &c.FilePath, &c.FileHashAtIngest, &c.ChunkIndex, &c.TotalChunks,
			&c.StartSentence, &c.EndSentence, &c.Content, &vecRaw, &c.AvgSimilarity, &mdRaw); err != nil {
			return nil, kberrors.NewStorage("failed to scan chunk row", true, err)
		}
		c.Embedding = fromVectorLiteral(vecRaw)
		_ = json.Unmarshal(mdRaw, &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

func toVectorLiteral(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", x)
	}
	b.WriteByte(']')
	return b.String()
}

// fromVectorLiteral parses pgvector's "[x,y,z]" text form back into floats.
func fromVectorLiteral(s string) []float32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
