package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/personaforge/personaforge/internal/agent"
	"github.com/personaforge/personaforge/internal/config"
	"github.com/personaforge/personaforge/internal/storage"
	"github.com/personaforge/personaforge/pkg/types"
)

// maxUploadBytes caps document uploads at 10 MB.
const maxUploadBytes = 10 << 20

// APIHandlers holds the dependencies of the JSON API.
type APIHandlers struct {
	agent *agent.Agent
	store storage.Store
	cfg   *config.Config
	hub   *EventHub
}

// NewAPIHandlers creates the API handler set.
func NewAPIHandlers(ag *agent.Agent, store storage.Store, cfg *config.Config, hub *EventHub) *APIHandlers {
	return &APIHandlers{agent: ag, store: store, cfg: cfg, hub: hub}
}

// generateRequest is the body of POST /api/personas/generate (and its
// streaming variant).
type generateRequest struct {
	Instruction  string   `json:"instruction"`
	SelectedDocs []string `json:"selected_docs,omitempty"`
}

// GeneratePersona handles POST /api/personas/generate: one buffered
// generation returning the persisted persona.
func (h *APIHandlers) GeneratePersona(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		respondError(w, http.StatusBadRequest, "instruction is required", nil)
		return
	}

	p, err := h.agent.Generate(r.Context(), req.Instruction, req.SelectedDocs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		respondError(w, status, "generation failed", err)
		return
	}

	h.hub.Broadcast(EventPersonaCreated, map[string]interface{}{
		"id":         p.ID,
		"name":       p.Name,
		"parse_tier": p.ParseTier,
	})
	respondJSON(w, http.StatusCreated, p)
}

// ListPersonas handles GET /api/personas with optional page and limit
// query parameters.
func (h *APIHandlers) ListPersonas(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Page:  parseInt(r.URL.Query().Get("page"), 1),
		Limit: parseInt(r.URL.Query().Get("limit"), 50),
	}
	opts.Normalize()

	personas, err := h.store.ListPersonas(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list personas", err)
		return
	}
	if personas == nil {
		personas = []types.PersonaSummary{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"personas": personas,
		"page":     opts.Page,
		"limit":    opts.Limit,
	})
}

// GetPersona handles GET /api/personas/{id}.
func (h *APIHandlers) GetPersona(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetPersona(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "persona not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load persona", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// UpdatePersona handles PATCH /api/personas/{id}: a partial update where
// only the fields present in the body overwrite the stored record.
func (h *APIHandlers) UpdatePersona(w http.ResponseWriter, r *http.Request) {
	var update types.Persona
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	p, err := h.store.UpdatePersona(r.Context(), r.PathValue("id"), &update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "persona not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update persona", err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// DeletePersona handles DELETE /api/personas/{id}.
func (h *APIHandlers) DeletePersona(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.DeletePersona(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "persona not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete persona", err)
		return
	}

	h.hub.Broadcast(EventPersonaDeleted, map[string]interface{}{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// uploadRequest is the JSON body variant of POST /api/documents.
type uploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// UploadDocument handles POST /api/documents. The document arrives either
// as a multipart form with a "file" part, or as a JSON body with filename
// and content. The document is stored, chunked, embedded, and indexed
// before the response is written.
func (h *APIHandlers) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	filename, content, err := readUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid upload", err)
		return
	}

	doc, err := h.agent.AddDocument(r.Context(), content, filename)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		respondError(w, status, "failed to ingest document", err)
		return
	}

	h.hub.Broadcast(EventDocumentIngested, map[string]interface{}{
		"id":       doc.ID,
		"filename": doc.Filename,
	})
	respondJSON(w, http.StatusCreated, doc)
}

// readUpload extracts filename and content from either encoding.
func readUpload(r *http.Request) (filename, content string, err error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", "", err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", err
		}
		defer func(f multipart.File) { _ = f.Close() }(file)

		data, err := io.ReadAll(file)
		if err != nil {
			return "", "", err
		}
		return header.Filename, string(data), nil
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", "", err
	}
	return req.Filename, req.Content, nil
}

// ListDocuments handles GET /api/documents.
func (h *APIHandlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Page:  parseInt(r.URL.Query().Get("page"), 1),
		Limit: parseInt(r.URL.Query().Get("limit"), 50),
	}
	opts.Normalize()

	docs, err := h.store.ListDocuments(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list documents", err)
		return
	}
	if docs == nil {
		docs = []types.Document{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"page":      opts.Page,
		"limit":     opts.Limit,
	})
}

// DeleteDocument handles DELETE /api/documents/{id}, removing the document
// and every chunk derived from it.
func (h *APIHandlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.agent.RemoveDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "document not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete document", err)
		return
	}

	h.hub.Broadcast(EventDocumentDeleted, map[string]interface{}{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

// SearchDocuments handles GET /api/documents/search?q=...&k=N, returning
// the k chunk texts most similar to the query.
func (h *APIHandlers) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}
	k := parseInt(r.URL.Query().Get("k"), 0)

	results, err := h.agent.GetRelevantDocuments(r.Context(), query, k)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed", err)
		return
	}
	if results == nil {
		results = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": results,
	})
}
