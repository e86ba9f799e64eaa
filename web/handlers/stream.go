package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/personaforge/personaforge/internal/storage"
)

// StreamPersona handles POST /api/personas/generate/stream. Tokens are
// forwarded as server-sent events as they arrive from the model:
//
//	data: {"token": "..."}
//
// followed by exactly one terminal frame, either
//
//	data: {"done": true, "persona_id": "..."}
//
// on success or
//
//	data: {"error": "..."}
//
// on failure. The persona is already persisted when the done frame is
// written.
func (h *APIHandlers) StreamPersona(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		respondError(w, http.StatusBadRequest, "instruction is required", nil)
		return
	}

	events, err := h.agent.GenerateStream(r.Context(), req.Instruction, req.SelectedDocs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		respondError(w, status, "generation failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		switch {
		case ev.Err != nil:
			writeSSE(w, map[string]interface{}{"error": ev.Err.Error()})
			flusher.Flush()
			return
		case ev.Done:
			h.hub.Broadcast(EventPersonaCreated, map[string]interface{}{
				"id":         ev.Persona.ID,
				"name":       ev.Persona.Name,
				"parse_tier": ev.Persona.ParseTier,
			})
			writeSSE(w, map[string]interface{}{"done": true, "persona_id": ev.Persona.ID})
			flusher.Flush()
			return
		case ev.Token != "":
			writeSSE(w, map[string]interface{}{"token": ev.Token})
			flusher.Flush()
		}
	}
}

// writeSSE writes one server-sent event data frame.
func writeSSE(w http.ResponseWriter, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
