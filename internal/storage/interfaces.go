// Package storage provides composable storage interfaces for the
// PersonaForge backend.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed, so the SQLite and
// PostgreSQL backends stay interchangeable behind the same contracts.
package storage

import (
	"context"

	"github.com/personaforge/personaforge/pkg/types"
)

// VectorStore stores embedded text chunks and retrieves them by semantic
// similarity.
type VectorStore interface {
	// AddChunks stores the given chunks with their embeddings. Chunks without
	// an embedding are rejected with ErrInvalidInput.
	AddChunks(ctx context.Context, chunks []types.Chunk) error

	// Search returns up to k chunks ranked by similarity to the query
	// embedding, best first. An empty store yields an empty slice, not an
	// error.
	Search(ctx context.Context, embedding []float32, k int) ([]types.Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DeleteBySource removes all chunks that came from the given source
	// document.
	DeleteBySource(ctx context.Context, source string) error
}

// PersonaStore provides CRUD operations for generated personas.
type PersonaStore interface {
	// CreatePersona persists a new persona. The persona must have an ID.
	CreatePersona(ctx context.Context, persona *types.Persona) error

	// GetPersona retrieves a persona by ID.
	// Returns ErrNotFound if the persona doesn't exist.
	GetPersona(ctx context.Context, id string) (*types.Persona, error)

	// UpdatePersona applies a partial update: non-zero fields of update
	// overwrite the stored persona, everything else is preserved. Returns
	// the merged record, or ErrNotFound if the persona doesn't exist.
	UpdatePersona(ctx context.Context, id string, update *types.Persona) (*types.Persona, error)

	// ListPersonas returns persona summaries, most recently created first.
	ListPersonas(ctx context.Context, opts ListOptions) ([]types.PersonaSummary, error)

	// DeletePersona removes a persona by ID.
	// Returns ErrNotFound if the persona doesn't exist.
	DeletePersona(ctx context.Context, id string) error
}

// DocumentStore manages uploaded source documents.
type DocumentStore interface {
	// PutDocument stores a document. An existing document with the same ID
	// is replaced.
	PutDocument(ctx context.Context, doc *types.Document) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*types.Document, error)

	// ListDocuments returns documents, most recently created first.
	ListDocuments(ctx context.Context, opts ListOptions) ([]types.Document, error)

	// DeleteDocument removes a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error
}

// Store bundles the three stores a running backend needs, plus lifecycle.
type Store interface {
	VectorStore
	PersonaStore
	DocumentStore

	// Close releases any resources held by the store.
	Close() error
}
