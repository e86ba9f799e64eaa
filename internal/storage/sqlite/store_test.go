package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. NewStore
// initialises the full schema, so no additional DDL is required in tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPersonaCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &types.Persona{
		ID:                  "per-1",
		Name:                "Jordan Reyes",
		ProfessionalSummary: "Operations lead moving into product management.",
		Goals:               []string{"transition to product", "lead a team"},
		Skills:              []string{"stakeholder management", "SQL"},
		DevelopmentPlans:    []string{"complete a PM certification"},
		ParseTier:           types.ParseTierJSON,
	}

	if err := store.CreatePersona(ctx, p); err != nil {
		t.Fatalf("CreatePersona failed: %v", err)
	}

	got, err := store.GetPersona(ctx, "per-1")
	if err != nil {
		t.Fatalf("GetPersona failed: %v", err)
	}
	if got.Name != p.Name || got.ProfessionalSummary != p.ProfessionalSummary {
		t.Errorf("scalar fields did not round-trip: %+v", got)
	}
	if len(got.Goals) != 2 || got.Goals[0] != "transition to product" {
		t.Errorf("goals did not round-trip: %v", got.Goals)
	}
	if got.ParseTier != types.ParseTierJSON {
		t.Errorf("parse tier did not round-trip: %q", got.ParseTier)
	}
	if len(got.DevelopmentPlans) != 1 || got.DevelopmentPlans[0] != "complete a PM certification" {
		t.Errorf("development plans did not round-trip: %v", got.DevelopmentPlans)
	}

	// Partial update: only the name changes, list fields survive.
	updated, err := store.UpdatePersona(ctx, "per-1", &types.Persona{Name: "Jordan A. Reyes"})
	if err != nil {
		t.Fatalf("UpdatePersona failed: %v", err)
	}
	if updated.Name != "Jordan A. Reyes" {
		t.Errorf("name not updated: %q", updated.Name)
	}
	if len(updated.Skills) != 2 {
		t.Errorf("skills lost on partial update: %v", updated.Skills)
	}

	if err := store.DeletePersona(ctx, "per-1"); err != nil {
		t.Fatalf("DeletePersona failed: %v", err)
	}
	if _, err := store.GetPersona(ctx, "per-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPersonaNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetPersona(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.UpdatePersona(ctx, "missing", &types.Persona{Name: "x"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := store.DeletePersona(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestListPersonasRecencyOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := &types.Persona{ID: fmt.Sprintf("per-%d", i), Name: fmt.Sprintf("Persona %d", i)}
		if err := store.CreatePersona(ctx, p); err != nil {
			t.Fatalf("CreatePersona failed: %v", err)
		}
	}

	summaries, err := store.ListPersonas(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListPersonas failed: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	for i := 1; i < len(summaries); i++ {
		if summaries[i].CreatedAt.After(summaries[i-1].CreatedAt) {
			t.Errorf("summaries not in recency-descending order at index %d", i)
		}
	}
}

func TestDocumentCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := &types.Document{ID: "doc-1", Filename: "cv.txt", Content: "ten years of operations experience"}
	if err := store.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument failed: %v", err)
	}

	got, err := store.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Filename != "cv.txt" || got.Content != doc.Content {
		t.Errorf("document did not round-trip: %+v", got)
	}

	docs, err := store.ListDocuments(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}

	if err := store.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if err := store.DeleteDocument(ctx, "doc-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result set, got %d chunks", len(results))
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chunks := []types.Chunk{
		{ID: "c-exact", Text: "exact match", Source: "a.txt", Embedding: []float32{1, 0, 0}},
		{ID: "c-near", Text: "near match", Source: "a.txt", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "c-far", Text: "unrelated", Source: "b.txt", Embedding: []float32{0, 0, 1}},
	}
	if err := store.AddChunks(ctx, chunks); err != nil {
		t.Fatalf("AddChunks failed: %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "c-exact" || results[1].ID != "c-near" {
		t.Errorf("wrong ranking: %s, %s", results[0].ID, results[1].ID)
	}
}

func TestSearchReturnsAtMostK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddChunks(ctx, []types.Chunk{
		{ID: "c-1", Text: "one", Embedding: []float32{1, 0}},
		{ID: "c-2", Text: "two", Embedding: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("AddChunks failed: %v", err)
	}

	// k larger than the store: min(k, N) results.
	results, err := store.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestAddChunksRejectsMissingEmbedding(t *testing.T) {
	store := newTestStore(t)

	err := store.AddChunks(context.Background(), []types.Chunk{{ID: "c-1", Text: "no vector"}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteBySource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddChunks(ctx, []types.Chunk{
		{ID: "c-1", Text: "from a", Source: "a.txt", Embedding: []float32{1, 0}},
		{ID: "c-2", Text: "from a too", Source: "a.txt", Embedding: []float32{0, 1}},
		{ID: "c-3", Text: "from b", Source: "b.txt", Embedding: []float32{1, 1}},
	}); err != nil {
		t.Fatalf("AddChunks failed: %v", err)
	}

	if err := store.DeleteBySource(ctx, "a.txt"); err != nil {
		t.Fatalf("DeleteBySource failed: %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 remaining chunk, got %d", n)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 0, 3.14159}
	got, err := deserializeEmbedding(serializeEmbedding(vec))
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d: got %v, want %v", i, got[i], vec[i])
		}
	}

	if _, err := deserializeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
