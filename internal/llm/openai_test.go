package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
)

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Temperature != 0.9 || req.TopP != 0.85 || req.MaxTokens != 7000 {
			t.Errorf("sampling options not forwarded: %+v", req)
		}

		fmt.Fprint(w, `{"choices": [{"message": {"content": "a persona summary"}}]}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	got, err := client.Complete(context.Background(), "prompt", Options{Temperature: 0.9, TopP: 0.85, MaxTokens: 7000})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "a persona summary" {
		t.Errorf("got %q", got)
	}
}

func TestOpenAICompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})

	_, err := client.Complete(context.Background(), "prompt", Options{})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestOpenAIStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream=true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", tok)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})

	events, err := client.Stream(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var got string
	var sawDone bool
	for ev := range events {
		if ev.Done {
			sawDone = true
			if ev.Err != nil {
				t.Errorf("unexpected stream error: %v", ev.Err)
			}
			continue
		}
		got += ev.Token
	}
	if !sawDone {
		t.Error("stream ended without a terminal done event")
	}
	if got != "Hello" {
		t.Errorf("assembled %q, want %q", got, "Hello")
	}
}

func TestOpenAIStreamTerminatesWithoutDoneFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n")
		flusher.Flush()
		// Body ends without a [DONE] frame.
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})

	events, err := client.Stream(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var sawDone bool
	for ev := range events {
		if ev.Done {
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("stream ended without a terminal done event")
	}
}

func TestOpenAIEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data": [{"embedding": [0.5, 0.25]}]}`)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})

	vec, err := client.Embed(context.Background(), "chunk text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("expected 2 dimensions, got %d", len(vec))
	}
}

func TestOpenAIEmbedServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL})

	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestFactorySelectsProvider(t *testing.T) {
	tests := []struct {
		provider  string
		wantModel string
	}{
		{provider: "ollama", wantModel: "llama3"},
		{provider: "", wantModel: "llama3"},
		{provider: "openai", wantModel: "gpt-4o-mini"},
	}
	for _, tt := range tests {
		gen, err := NewTextGenerator(ProviderConfig{Provider: tt.provider})
		if err != nil {
			t.Fatalf("provider %q: %v", tt.provider, err)
		}
		if gen.GetModel() != tt.wantModel {
			t.Errorf("provider %q: model %q, want %q", tt.provider, gen.GetModel(), tt.wantModel)
		}
	}

	if _, err := NewTextGenerator(ProviderConfig{Provider: "bard"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
	if _, err := NewStreamGenerator(ProviderConfig{Provider: "bard"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
	if _, err := NewEmbeddingGenerator(ProviderConfig{Provider: "bard"}, ""); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestOpenAIStreamAbandonedConsumer(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		// Far more frames than the event buffer holds.
		for i := 0; i < 200; i++ {
			fmt.Fprint(w, `data: {"choices": [{"delta": {"content": "tok"}}]}`+"\n\n")
			flusher.Flush()
			if i == 0 {
				close(started)
			}
		}
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})

	baseline := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := client.Stream(ctx, "prompt", Options{})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	<-started

	// Abandon the stream: cancel without reading a single event. The
	// producer goroutine must still finish and release the response body.
	cancel()
	waitForGoroutines(t, baseline)
	_ = events
}
