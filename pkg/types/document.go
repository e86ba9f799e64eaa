package types

import "time"

// Document is an uploaded or inline source document. Documents are stored
// whole for listing and re-ingest; the retrieval pipeline operates on the
// chunks derived from them.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is a bounded-length substring of a document, the unit of embedding
// and retrieval. Source carries the originating filename; every chunk of one
// ingest shares the same Source.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
