// Package agent orchestrates the persona generation pipeline: document
// ingest, semantic retrieval, prompt assembly, LLM generation (buffered and
// streaming), response parsing, and persistence.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/personaforge/personaforge/internal/chunker"
	"github.com/personaforge/personaforge/internal/llm"
	"github.com/personaforge/personaforge/internal/persona"
	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/pkg/types"
)

// embedConcurrency bounds how many embedding calls run in parallel during
// document ingest.
const embedConcurrency = 4

// Config holds agent construction parameters. Zero values fall back to
// defaults.
type Config struct {
	// Name identifies the agent in logs.
	Name string

	// TopK is how many chunks retrieval returns (default: 5).
	TopK int

	// ChunkSize and ChunkOverlap configure document splitting.
	ChunkSize    int
	ChunkOverlap int

	// MemoryMaxTurns and MemoryMaxChars bound the conversation memory.
	MemoryMaxTurns int
	MemoryMaxChars int

	// DedupeRetrieved drops retrieved chunks whose text already appears in
	// the caller-selected documents (default: true).
	DedupeRetrieved *bool

	// Options are the generation sampling parameters applied to every call.
	Options llm.Options
}

// Agent ties the retrieval pipeline together. One agent serves one
// conversation; its memory accumulates across Generate calls.
type Agent struct {
	name            string
	text            llm.TextGenerator
	stream          llm.StreamGenerator
	embedder        llm.EmbeddingGenerator
	store           storage.Store
	memory          *ConversationMemory
	topK            int
	chunkOpts       chunker.Options
	dedupeRetrieved bool
	genOpts         llm.Options
}

// GenerationEvent is one fragment of a streaming generation as seen by
// transport consumers. Zero or more token events are followed by exactly one
// terminal event with Done set, carrying either the persisted persona or the
// error that stopped the generation.
type GenerationEvent struct {
	Token   string
	Persona *types.Persona
	Err     error
	Done    bool
}

// New creates an agent over the given backends and store.
func New(cfg Config, text llm.TextGenerator, stream llm.StreamGenerator, embedder llm.EmbeddingGenerator, store storage.Store) *Agent {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	dedupe := true
	if cfg.DedupeRetrieved != nil {
		dedupe = *cfg.DedupeRetrieved
	}

	return &Agent{
		name:            cfg.Name,
		text:            text,
		stream:          stream,
		embedder:        embedder,
		store:           store,
		memory:          NewConversationMemory(cfg.MemoryMaxTurns, cfg.MemoryMaxChars),
		topK:            cfg.TopK,
		chunkOpts:       chunker.Options{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		dedupeRetrieved: dedupe,
		genOpts:         cfg.Options,
	}
}

// Memory exposes the agent's conversation memory.
func (a *Agent) Memory() *ConversationMemory {
	return a.memory
}

// Generate runs one buffered generation: retrieve context, build the prompt,
// complete, parse, persist. Conversation memory is appended only after the
// persona is persisted, so memory never references a record that was not
// stored.
func (a *Agent) Generate(ctx context.Context, instruction string, selectedDocs []string) (*types.Persona, error) {
	prompt, err := a.buildPrompt(ctx, instruction, selectedDocs)
	if err != nil {
		return nil, err
	}

	log.Printf("agent[%s]: generating (model=%s)", a.name, a.text.GetModel())
	raw, err := a.text.Complete(ctx, prompt, a.genOpts)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return a.finishGeneration(ctx, instruction, raw)
}

// GenerateStream runs one streaming generation. Fragments are forwarded in
// production order to exactly one consumer; the terminal event carries the
// persisted persona, or the error that ended the stream. The returned
// channel is always closed after the terminal event.
func (a *Agent) GenerateStream(ctx context.Context, instruction string, selectedDocs []string) (<-chan GenerationEvent, error) {
	prompt, err := a.buildPrompt(ctx, instruction, selectedDocs)
	if err != nil {
		return nil, err
	}

	log.Printf("agent[%s]: streaming generation (model=%s)", a.name, a.stream.GetModel())
	upstream, err := a.stream.Stream(ctx, prompt, a.genOpts)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	events := make(chan GenerationEvent, 16)
	go func() {
		defer close(events)

		var full []byte
		for ev := range upstream {
			if ev.Token != "" {
				full = append(full, ev.Token...)
				select {
				case events <- GenerationEvent{Token: ev.Token}:
				case <-ctx.Done():
					// The consumer is gone. Release the backend by draining
					// what it still produces, and never block on the
					// terminal send: close is the end marker either way.
					go drainStream(upstream)
					sendTerminal(ctx, events, GenerationEvent{Done: true, Err: ctx.Err()})
					return
				}
			}
			if !ev.Done {
				continue
			}
			if ev.Err != nil {
				log.Printf("agent[%s]: stream failed: %v", a.name, ev.Err)
				sendTerminal(ctx, events, GenerationEvent{Done: true, Err: ev.Err})
				return
			}

			p, err := a.finishGeneration(ctx, instruction, string(full))
			if err != nil {
				sendTerminal(ctx, events, GenerationEvent{Done: true, Err: err})
				return
			}
			sendTerminal(ctx, events, GenerationEvent{Done: true, Persona: p})
			return
		}

		// Upstream closed without a terminal event. Treat as failure so the
		// consumer still terminates deterministically.
		sendTerminal(ctx, events, GenerationEvent{Done: true, Err: llm.ErrGenerationFailed})
	}()

	return events, nil
}

// sendTerminal delivers the terminal event unless the consumer abandoned
// the stream with a full buffer; the channel close that follows is the
// authoritative end marker.
func sendTerminal(ctx context.Context, events chan<- GenerationEvent, ev GenerationEvent) {
	select {
	case events <- ev:
		return
	default:
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// drainStream consumes an abandoned upstream so its producer can deliver
// its terminal event and release the underlying response.
func drainStream(upstream <-chan llm.StreamEvent) {
	for range upstream {
	}
}

// buildPrompt retrieves relevant chunks and assembles the generation prompt
// from instruction, memory, history, and documents.
func (a *Agent) buildPrompt(ctx context.Context, instruction string, selectedDocs []string) (string, error) {
	if instruction == "" {
		return "", fmt.Errorf("%w: instruction is required", storage.ErrInvalidInput)
	}

	log.Printf("agent[%s]: retrieving context (top_k=%d)", a.name, a.topK)
	retrieved, err := a.GetRelevantDocuments(ctx, instruction, a.topK)
	if err != nil {
		return "", fmt.Errorf("retrieval failed: %w", err)
	}

	docs := selectedDocs
	if a.dedupeRetrieved {
		docs = append(docs, dedupe(retrieved, selectedDocs)...)
	} else {
		docs = append(docs, retrieved...)
	}

	return persona.BuildPrompt(instruction, a.memory.Memory(), a.memory.History(), docs), nil
}

// finishGeneration parses the raw response, persists the persona, and only
// then appends the conversation memory.
func (a *Agent) finishGeneration(ctx context.Context, instruction, raw string) (*types.Persona, error) {
	result := persona.Parse(raw)
	p := result.Persona
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()

	log.Printf("agent[%s]: parsed response (tier=%s), persisting persona %s", a.name, result.Tier, p.ID)
	if err := a.store.CreatePersona(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist persona: %w", err)
	}

	a.memory.AppendGeneration(raw)
	a.memory.AppendExchange(instruction, raw)
	return p, nil
}

// AddDocument stores a document, splits it into chunks, embeds the chunks,
// and adds them to the vector store. Re-ingesting the same filename replaces
// its previous chunks. Safe to call while a generation is in flight.
func (a *Agent) AddDocument(ctx context.Context, content, filename string) (*types.Document, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: document content is required", storage.ErrInvalidInput)
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: document filename is required", storage.ErrInvalidInput)
	}

	doc := &types.Document{
		ID:       uuid.New().String(),
		Filename: filename,
		Content:  content,
	}
	if err := a.store.PutDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	spans := chunker.Split(content, a.chunkOpts)
	log.Printf("agent[%s]: ingesting %s (%d chunks)", a.name, filename, len(spans))

	chunks := make([]types.Chunk, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, span := range spans {
		g.Go(func() error {
			vec, err := a.embedder.Embed(gctx, span)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %d of %s: %w", i, filename, err)
			}
			chunks[i] = types.Chunk{
				ID:        uuid.New().String(),
				Text:      span,
				Source:    filename,
				Embedding: vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := a.store.DeleteBySource(ctx, filename); err != nil {
		return nil, fmt.Errorf("failed to clear previous chunks for %s: %w", filename, err)
	}
	if err := a.store.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks for %s: %w", filename, err)
	}
	return doc, nil
}

// RemoveDocument deletes a document and all chunks derived from it.
func (a *Agent) RemoveDocument(ctx context.Context, id string) error {
	doc, err := a.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteBySource(ctx, doc.Filename); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", doc.Filename, err)
	}
	return a.store.DeleteDocument(ctx, id)
}

// GetRelevantDocuments embeds the query and returns the text of the k most
// similar chunks, best first. An empty store yields an empty slice.
func (a *Agent) GetRelevantDocuments(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = a.topK
	}

	vec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := a.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return texts, nil
}

// dedupe returns the entries of retrieved whose text does not already appear
// in selected.
func dedupe(retrieved, selected []string) []string {
	if len(selected) == 0 {
		return retrieved
	}
	seen := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		seen[s] = struct{}{}
	}
	var out []string
	for _, r := range retrieved {
		if _, ok := seen[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}
