package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/pkg/types"
)

// vectorSearchMaxCandidates caps the number of embeddings loaded into memory
// per search. The most recent chunks are preferred when the table exceeds
// the cap.
const vectorSearchMaxCandidates = 5000

// AddChunks stores the given chunks with their embeddings in one
// transaction, so an ingest is visible either whole or not at all.
func (s *Store) AddChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk ID is required", storage.ErrInvalidInput)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", storage.ErrInvalidInput, c.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, text, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			source = excluded.source,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.Source, serializeEmbedding(c.Embedding), createdAt); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// Search ranks stored chunks by cosine similarity to the query embedding.
// Embeddings are loaded into Go memory (candidate pool capped most-recent
// first) and ranked here; at this scale a linear scan beats maintaining an
// index. An empty store yields an empty slice.
func (s *Store) Search(ctx context.Context, embedding []float32, k int) ([]types.Chunk, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding is required", storage.ErrInvalidInput)
	}
	if k < 1 {
		return []types.Chunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, source, embedding, created_at
		FROM chunks
		ORDER BY created_at DESC
		LIMIT ?
	`, vectorSearchMaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	type scored struct {
		chunk types.Chunk
		score float64
	}

	var candidates []scored
	for rows.Next() {
		var c types.Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &blob, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		vec, err := deserializeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		if len(vec) != len(embedding) {
			// Dimension mismatch (embedding model changed); skip rather
			// than poisoning the ranking.
			continue
		}

		c.Embedding = vec
		candidates = append(candidates, scored{chunk: c, score: cosineSimilarity(embedding, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]types.Chunk, 0, k)
	for _, c := range candidates[:k] {
		results = append(results, c.chunk)
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// DeleteBySource removes all chunks derived from the given source document.
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	if source == "" {
		return fmt.Errorf("%w: source is required", storage.ErrInvalidInput)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to delete chunks for source %s: %w", source, err)
	}
	return nil
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
