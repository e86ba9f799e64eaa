package server_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personaforge/personaforge/internal/agent"
	"github.com/personaforge/personaforge/internal/config"
	"github.com/personaforge/personaforge/internal/llm"
	"github.com/personaforge/personaforge/internal/server"
	"github.com/personaforge/personaforge/internal/storage/sqlite"
)

// fakeBackend satisfies the completion, streaming, and embedding interfaces
// so server tests never reach a real model.
type fakeBackend struct{}

func (fakeBackend) Complete(_ context.Context, _ string, _ llm.Options) (string, error) {
	return `{"name": "Test", "professional_summary": "Summary."}`, nil
}

func (fakeBackend) Stream(_ context.Context, _ string, _ llm.Options) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 2)
	ch <- llm.StreamEvent{Token: `{"name": "Test"}`}
	ch <- llm.StreamEvent{Done: true}
	close(ch)
	return ch, nil
}

func (fakeBackend) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	for i, b := range []byte(text) {
		vec[i%4] += float32(b)
	}
	return vec, nil
}

func (fakeBackend) GetModel() string { return "fake" }

func testConfig(mode, token string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Security.Mode = mode
	cfg.Security.APIToken = token
	return cfg
}

// startTestServer starts a server on a random port over an in-memory store
// and returns its base URL. Shutdown is registered with t.Cleanup.
func startTestServer(t *testing.T, cfg *config.Config) string {
	t.Helper()

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)

	backend := fakeBackend{}
	ag := agent.New(agent.Config{Name: "test"}, backend, backend, backend, store)

	ctx, cancel := context.WithCancel(context.Background())
	addr, _, err := server.Start(ctx, cfg, ag, store)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		time.Sleep(100 * time.Millisecond)
		_ = store.Close()
	})

	return "http://" + addr
}

func TestServerStartsOnRandomPort(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	addr := strings.TrimPrefix(baseURL, "http://")
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.NotEqual(t, "0", port)
}

func TestHealthEndpoint(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
}

func TestSecurityHeaders(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for name, want := range expected {
		assert.Equal(t, want, resp.Header.Get(name), "header %q", name)
	}
}

func TestRouteRegistration(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	paths := []string{
		"/api/personas",
		"/api/documents",
		"/api/health",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(baseURL + path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestGenerateOverHTTP(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Post(baseURL+"/api/personas/generate", "application/json",
		strings.NewReader(`{"instruction": "persona for a tester"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var persona map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&persona))
	assert.Equal(t, "Test", persona["name"])
	assert.NotEmpty(t, persona["id"])
}

func TestStreamOverHTTP(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Post(baseURL+"/api/personas/generate/stream", "application/json",
		strings.NewReader(`{"instruction": "persona"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var body strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		body.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, body.String(), `data: {"token"`)
	assert.Contains(t, body.String(), `"done":true`)
}

func TestDevelopmentModeNoAuth(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	resp, err := http.Get(baseURL + "/api/personas")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProductionModeRequiresAuth(t *testing.T) {
	const token = "test-secret-token-xyz123"
	baseURL := startTestServer(t, testConfig("production", token))

	t.Run("without_auth_header", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/personas")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("with_valid_auth_header", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/personas", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health_stays_open", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/health")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	baseURL := startTestServer(t, testConfig("development", ""))

	req, err := http.NewRequest(http.MethodDelete, baseURL+"/api/personas", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGracefulShutdown(t *testing.T) {
	cfg := testConfig("development", "")

	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	backend := fakeBackend{}
	ag := agent.New(agent.Config{Name: "test"}, backend, backend, backend, store)

	ctx, cancel := context.WithCancel(context.Background())
	addr, _, err := server.Start(ctx, cfg, ag, store)
	require.NoError(t, err)
	baseURL := "http://" + addr

	resp, err := http.Get(baseURL + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	time.Sleep(200 * time.Millisecond)

	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer checkCancel()
	req, _ := http.NewRequestWithContext(checkCtx, http.MethodGet, baseURL+"/api/health", nil)
	_, err = http.DefaultClient.Do(req)
	assert.Error(t, err, "server should stop responding after shutdown")
}
