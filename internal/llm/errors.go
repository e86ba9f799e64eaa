package llm

import "errors"

var (
	// ErrEmbeddingUnavailable indicates the embedding backend is unreachable
	// or misconfigured. Fatal for the call; not retried automatically.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrGenerationFailed indicates the completion backend failed or
	// returned a malformed response.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrGenerationTimeout indicates the completion backend did not respond
	// within the configured timeout.
	ErrGenerationTimeout = errors.New("generation timed out")
)
