package types

import (
	"context"

	"github.com/askdoc/askdoc/internal/models"
)

// Embedder turns text into fixed-dimension vectors. Output order mirrors
// input order and all vectors from one configuration share one dimension.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is the language-model boundary: one system instruction, one user
// message, one completion. Temperature is passed per call because answer
// synthesis and topic suggestion want different settings.
type Generator interface {
	Generate(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Searcher ranks stored chunks against a query. Kept as an interface so the
// exhaustive scan behind it can be swapped for a real ANN index without
// touching callers.
type Searcher interface {
	Retrieve(ctx context.Context, docID, query string, topK int) ([]models.SearchResult, error)
	RetrieveDefault(ctx context.Context, query string, topK int) ([]models.SearchResult, error)
}
