package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient handles communication with the Ollama API for local LLM
// inference and embedding. Buffered completion and embedding calls are
// wrapped with circuit breaker protection; streaming calls are not, since a
// stream that has begun producing tokens must run to its terminal event.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	model          string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name used for completions or embeddings
	// (default: llama3)
	Model string

	// Timeout is the request timeout for buffered calls and the maximum
	// idle time for streaming calls (default: 120s)
	Timeout time.Duration
}

// generateRequest is the request body for /api/generate.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is one JSON object from /api/generate. In streaming mode
// Ollama writes a sequence of these, the last with Done=true.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// embedRequest is the request body for /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the response from /api/embed. The embeddings field is a
// 2D array; single-input requests use the first row.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "llama3"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL: config.BaseURL,
		// No client-level timeout: streaming responses stay open for the
		// duration of the generation. Per-call deadlines come from contexts.
		client:         &http.Client{},
		circuitBreaker: NewCircuitBreaker("ollama"),
		model:          config.Model,
		timeout:        config.Timeout,
	}
}

// toBackendOptions converts generation Options to Ollama's options map.
func toBackendOptions(opts Options) map[string]any {
	m := map[string]any{}
	if opts.Temperature > 0 {
		m["temperature"] = opts.Temperature
	}
	if opts.TopP > 0 {
		m["top_p"] = opts.TopP
	}
	if opts.MaxTokens > 0 {
		m["num_predict"] = opts.MaxTokens
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Complete sends a buffered completion request to Ollama and returns the
// full response text. A deadline expiry surfaces as ErrGenerationTimeout,
// any other backend failure as ErrGenerationFailed.
func (c *OllamaClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt, opts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: toBackendOptions(opts),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", wrapGenerationError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: ollama returned status %d: %s", ErrGenerationFailed, resp.StatusCode, string(body))
	}

	var respData generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrGenerationFailed, err)
	}

	return respData.Response, nil
}

// Stream sends a streaming completion request to Ollama and returns a
// channel of fragments. Ollama writes newline-delimited JSON objects as the
// model produces tokens; each object's response text is forwarded as soon
// as it is decoded. The channel always ends with a terminal Done event
// (Err set on mid-stream failure) and is then closed, so a consumer's range
// loop terminates even when the backend dies mid-generation.
//
// Cancelling ctx aborts the underlying request; the terminal event then
// carries the context error.
func (c *OllamaClient) Stream(ctx context.Context, prompt string, opts Options) (<-chan StreamEvent, error) {
	reqBody := generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  true,
		Options: toBackendOptions(opts),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, wrapGenerationError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", ErrGenerationFailed, resp.StatusCode, string(body))
	}

	events := make(chan StreamEvent, streamBufferSize)

	go func() {
		defer close(events)
		defer cancel()
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk generateResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					// Stream ended without an explicit done object; still
					// deliver the end marker so the consumer terminates.
					sendTerminal(ctx, events, StreamEvent{Done: true})
					return
				}
				sendTerminal(ctx, events, StreamEvent{Done: true, Err: wrapGenerationError(ctx, err)})
				return
			}

			if chunk.Response != "" {
				select {
				case events <- StreamEvent{Token: chunk.Response}:
				case <-ctx.Done():
					sendTerminal(ctx, events, StreamEvent{Done: true, Err: wrapGenerationError(ctx, ctx.Err())})
					return
				}
			}

			if chunk.Done {
				sendTerminal(ctx, events, StreamEvent{Done: true})
				return
			}
		}
	}()

	return events, nil
}

// Embed generates an embedding for the given text. Backend unreachability
// (including an open circuit) surfaces as ErrEmbeddingUnavailable.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: ollama circuit breaker open", ErrEmbeddingUnavailable)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := embedRequest{
		Model: c.model,
		Input: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", ErrEmbeddingUnavailable, resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrEmbeddingUnavailable, err)
	}

	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: ollama returned empty embedding vector", ErrEmbeddingUnavailable)
	}

	return respData.Embeddings[0], nil
}

// HealthCheck verifies that Ollama is reachable via /api/version.
// It bypasses the circuit breaker since it is itself a health probe.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetModel returns the configured model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

// streamBufferSize is the fragment channel capacity. A small buffer absorbs
// bursts from the backend without letting a slow consumer force the whole
// response into memory.
const streamBufferSize = 16

// sendTerminal delivers the terminal event without risking a permanent
// block. A consumer that abandoned the stream after cancellation may have
// left the buffer full; the event is then dropped and the subsequent
// channel close remains the unambiguous end marker.
func sendTerminal(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) {
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

// wrapGenerationError classifies a transport error as timeout or generic
// generation failure.
func wrapGenerationError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGenerationTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
}

// Compile-time assertions that OllamaClient satisfies the LLM interfaces.
var _ TextGenerator = (*OllamaClient)(nil)
var _ StreamGenerator = (*OllamaClient)(nil)
var _ EmbeddingGenerator = (*OllamaClient)(nil)
