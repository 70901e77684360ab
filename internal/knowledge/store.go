// Package knowledge stores document chunks with their embeddings in
// PostgreSQL + pgvector and serves similarity search over them.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/lylin/knowbase/internal/log"
)

// embedTimeout bounds a single embedding round-trip.
const embedTimeout = 30 * time.Second

// EmbedDim is the vector dimensionality of the chunks table. Every embed
// request pins the output to this size; without it, Gemini embedders
// return their native dimensionality and pgvector rejects the insert.
const EmbedDim = 768

func embedOptions() *genai.EmbedContentConfig {
	return &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr[int32](EmbedDim)}
}

// Chunk is one piece of a split document, ready for indexing.
type Chunk struct {
	Content    string
	SourceFile string
	ChunkIndex int
}

// Result is one similarity search hit.
type Result struct {
	Content    string  `json:"content"`
	SourceFile string  `json:"source_file"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
}

// Stats summarizes the index contents.
type Stats struct {
	ChunkCount  int64 `json:"chunk_count"`
	SourceCount int64 `json:"source_count"`
}

// Store indexes and searches chunks. Embeddings are produced by the
// configured Genkit embedder.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a knowledge store.
func New(pool *pgxpool.Pool, embedder ai.Embedder, logger log.Logger) *Store {
	return &Store{pool: pool, embedder: embedder, logger: logger}
}

const insertChunkSQL = `
INSERT INTO chunks (content, source_file, chunk_index, embedding)
VALUES ($1, $2, $3, $4)`

// Add embeds and indexes the given chunks in one transaction. Returns
// the number of chunks stored.
func (s *Store) Add(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := s.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, chunk := range chunks {
		if _, err := tx.Exec(ctx, insertChunkSQL, chunk.Content, chunk.SourceFile, chunk.ChunkIndex, vectors[i]); err != nil {
			return 0, fmt.Errorf("inserting chunk %d of %s: %w", chunk.ChunkIndex, chunk.SourceFile, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing chunks: %w", err)
	}

	s.logger.Debug("chunks indexed", "count", len(chunks), "source_file", chunks[0].SourceFile)
	return len(chunks), nil
}

func (s *Store) embed(ctx context.Context, chunks []Chunk) ([]pgvector.Vector, error) {
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	docs := make([]*ai.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = ai.DocumentFromText(chunk.Content, nil)
	}

	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{Input: docs, Options: embedOptions()})
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(resp.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d chunks", len(resp.Embeddings), len(chunks))
	}

	vectors := make([]pgvector.Vector, len(chunks))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("embedder returned empty vector for chunk %d", i)
		}
		vectors[i] = pgvector.NewVector(emb.Embedding)
	}
	return vectors, nil
}

const searchSQL = `
SELECT content, source_file, chunk_index, 1 - (embedding <=> $1) AS similarity
FROM chunks
ORDER BY embedding <=> $1
LIMIT $2`

// Search embeds the query and returns the topK most similar chunks by
// cosine similarity.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK < 1 {
		topK = 1
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(query, nil)},
		Options: embedOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}
	queryVec := pgvector.NewVector(resp.Embeddings[0].Embedding)

	rows, err := s.pool.Query(ctx, searchSQL, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, true)
}

const keywordSearchSQL = `
SELECT content, source_file, chunk_index
FROM chunks
WHERE content ILIKE '%' || $1 || '%'
ORDER BY source_file, chunk_index
LIMIT $2`

// SearchKeyword returns chunks containing the term, case-insensitively.
// No embeddings are involved; useful for exact-phrase lookups.
func (s *Store) SearchKeyword(ctx context.Context, term string, limit int) ([]Result, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, keywordSearchSQL, term, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows, false)
}

// DeleteBySource removes all chunks belonging to a source file. Returns
// the number of chunks removed.
func (s *Store) DeleteBySource(ctx context.Context, sourceFile string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE source_file = $1`, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %s: %w", sourceFile, err)
	}
	return tag.RowsAffected(), nil
}

const statsSQL = `
SELECT count(*), count(DISTINCT source_file) FROM chunks`

// Stats returns index-wide counts.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.pool.QueryRow(ctx, statsSQL).Scan(&st.ChunkCount, &st.SourceCount); err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}
	return &st, nil
}

func scanResults(rows pgx.Rows, withSimilarity bool) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var r Result
		var err error
		if withSimilarity {
			err = rows.Scan(&r.Content, &r.SourceFile, &r.ChunkIndex, &r.Similarity)
		} else {
			err = rows.Scan(&r.Content, &r.SourceFile, &r.ChunkIndex)
		}
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return out, nil
}
