package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/pkg/types"
)

// PutDocument stores a document (upsert semantics).
func (s *Store) PutDocument(ctx context.Context, doc *types.Document) error {
	if doc == nil {
		return storage.ErrInvalidInput
	}
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}
	if doc.Filename == "" {
		return fmt.Errorf("%w: document filename is required", storage.ErrInvalidInput)
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			content = excluded.content
	`, doc.ID, doc.Filename, doc.Content, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}

	var doc types.Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content, created_at FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns documents, most recently created first.
func (s *Store) ListDocuments(ctx context.Context, opts storage.ListOptions) ([]types.Document, error) {
	opts.Normalize()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, content, created_at
		FROM documents
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, opts.Limit, opts.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Content, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document by ID.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: document ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
