package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/personaforge/personaforge/web/handlers"
)

func TestEventHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewEventHub("localhost:8787", "127.0.0.1:8787")
	defer hub.Stop()

	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestEventHub_Broadcast(t *testing.T) {
	hub := handlers.NewEventHub()
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	mockClient := &handlers.MockClient{SendChan: received}

	hub.Register(mockClient)

	// Give the hub time to register the client.
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(handlers.EventDocumentIngested, map[string]string{
		"id":       "doc-1",
		"filename": "cv.txt",
	})

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), handlers.EventDocumentIngested)
		assert.Contains(t, string(msg), "cv.txt")
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for broadcast message")
	}
}

func TestEventHub_SlowClientDropped(t *testing.T) {
	hub := handlers.NewEventHub()
	go hub.Run()
	defer hub.Stop()

	// Unbuffered channel with no reader: the first broadcast cannot be
	// delivered and the hub must disconnect the client instead of blocking.
	stuck := &handlers.MockClient{SendChan: make(chan []byte)}
	hub.Register(stuck)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(handlers.EventPersonaCreated, map[string]string{"id": "p-1"})
	time.Sleep(10 * time.Millisecond)

	// The hub loop must still serve healthy clients afterwards.
	healthy := &handlers.MockClient{SendChan: make(chan []byte, 1)}
	hub.Register(healthy)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(handlers.EventPersonaCreated, map[string]string{"id": "p-2"})

	select {
	case msg := <-healthy.SendChan:
		assert.Contains(t, string(msg), "p-2")
	case <-time.After(1 * time.Second):
		t.Fatal("hub stopped delivering after dropping a slow client")
	}
}
