// Package llm provides clients for language-model completion, streaming
// generation, and text embedding. All HTTP calls are wrapped with circuit
// breaker protection to prevent cascading failures when a backend degrades.
package llm

import "context"

// Options carries per-call generation parameters. The zero value lets the
// backend apply its own defaults.
type Options struct {
	// Temperature controls sampling randomness (the UI exposes it as
	// "creativity"). Range 0.0-2.0 for most backends.
	Temperature float64

	// TopP is the nucleus-sampling threshold (exposed as "realism").
	TopP float64

	// MaxTokens caps the length of the generated response.
	MaxTokens int
}

// StreamEvent is one fragment of a streaming generation.
//
// A stream delivers zero or more events carrying Token, followed by exactly
// one terminal event with Done set (and Err set if the backend failed
// mid-stream). The channel is closed after the terminal event, so a
// consumer ranging over it always terminates.
type StreamEvent struct {
	Token string
	Err   error
	Done  bool
}

// TextGenerator is the interface for buffered LLM completion.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	GetModel() string
}

// StreamGenerator is the interface for token-streaming LLM completion.
// Fragments are delivered in production order to exactly one consumer;
// the first fragment is sent as soon as the backend produces it.
type StreamGenerator interface {
	Stream(ctx context.Context, prompt string, opts Options) (<-chan StreamEvent, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
