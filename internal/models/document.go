package models

import "time"

// Document is the product of the upload/extraction step: the raw text of one
// uploaded file plus the identity the rest of the pipeline keys on.
type Document struct {
	ID        string
	Name      string
	Text      string
	PageCount int
}

// ChunkMeta describes one chunk's position within its source document.
type ChunkMeta struct {
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunkIndex"`
	Page       int    `json:"pageNumber,omitempty"`
}

// IndexEntry is the persisted unit for one document. The three slices are
// parallel: Embeddings[i] was computed from Chunks[i], described by
// Metadata[i].
type IndexEntry struct {
	Chunks     []string    `json:"chunks"`
	Embeddings [][]float32 `json:"embeddings"`
	Metadata   []ChunkMeta `json:"metadata"`
}

// IndexInfo is the side record kept next to an IndexEntry so that listing
// and inspection never have to deserialize the vector payload.
type IndexInfo struct {
	FileName   string    `json:"fileName"`
	CreatedAt  time.Time `json:"createdAt"`
	ChunkCount int       `json:"chunkCount"`
	PageCount  int       `json:"pageCount"`
	TextLength int       `json:"textLength"`
}

// SearchResult is one retrieved chunk with its similarity to the query.
type SearchResult struct {
	Text  string    `json:"text"`
	Meta  ChunkMeta `json:"meta"`
	Score float64   `json:"score"`
}

// Citation links part of an answer back to a specific source chunk.
type Citation struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunkIndex"`
}

// Confidence labels attached to an Answer.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Answer is the structured response returned for a question.
type Answer struct {
	Answer     string     `json:"answer"`
	Citations  []Citation `json:"citations"`
	Confidence string     `json:"confidence"`
}
