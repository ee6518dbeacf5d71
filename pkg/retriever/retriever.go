package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/askdoc/askdoc/internal/models"
	"github.com/askdoc/askdoc/internal/types"
	"github.com/askdoc/askdoc/pkg/store"
)

// ErrStoreNotFound is returned when retrieval targets a document ID with no
// persisted index.
var ErrStoreNotFound = errors.New("no such document")

// DefaultTopK is the number of chunks returned when the caller does not ask
// for a specific count. Tunable; higher-recall deployments raise it.
const DefaultTopK = 4

// similarityEpsilon guards the cosine denominator against all-zero vectors.
const similarityEpsilon = 1e-10

// RetrieverConfig represents the configuration for the retriever.
type RetrieverConfig struct {
	TopK int
}

// Retriever embeds a query and ranks a document's stored chunks by cosine
// similarity with an exhaustive scan. That is O(n·d) per query, fine for
// per-document chunk counts in the tens to low thousands; anything larger
// should swap in a real index behind the types.Searcher interface.
type Retriever struct {
	store    *store.Store
	embedder types.Embedder
	topK     int

	// Fallback corpus for general-chat mode, injected explicitly at
	// construction and embedded lazily on first use.
	fallbackTexts []string
	fallbackOnce  sync.Once
	fallbackVecs  [][]float32
	fallbackErr   error
}

// New creates a Retriever. fallbackCorpus is the small static document set
// scored when no document ID is supplied; it may be nil.
func New(st *store.Store, embedder types.Embedder, fallbackCorpus []string, config RetrieverConfig) *Retriever {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	return &Retriever{
		store:         st,
		embedder:      embedder,
		topK:          config.TopK,
		fallbackTexts: fallbackCorpus,
	}
}

// Retrieve returns the topK chunks of one document most similar to the
// query, ordered by descending score with ties broken by ascending chunk
// index.
func (r *Retriever) Retrieve(ctx context.Context, docID, query string, topK int) ([]models.SearchResult, error) {
	entry, err := r.store.Load(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, docID)
		}
		return nil, err
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return rank(entry.Chunks, entry.Metadata, entry.Embeddings, queryVec, r.clamp(topK)), nil
}

// RetrieveDefault scores the injected fallback corpus instead of a stored
// document. The corpus is embedded once, on first call.
func (r *Retriever) RetrieveDefault(ctx context.Context, query string, topK int) ([]models.SearchResult, error) {
	if len(r.fallbackTexts) == 0 {
		return nil, nil
	}
	r.fallbackOnce.Do(func() {
		r.fallbackVecs, r.fallbackErr = r.embedder.EmbedDocuments(ctx, r.fallbackTexts)
	})
	if r.fallbackErr != nil {
		return nil, fmt.Errorf("embedding fallback corpus: %w", r.fallbackErr)
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	metas := make([]models.ChunkMeta, len(r.fallbackTexts))
	for i := range metas {
		metas[i] = models.ChunkMeta{Source: "general knowledge", ChunkIndex: i}
	}
	return rank(r.fallbackTexts, metas, r.fallbackVecs, queryVec, r.clamp(topK)), nil
}

func (r *Retriever) clamp(topK int) int {
	if topK <= 0 {
		return r.topK
	}
	return topK
}

func rank(chunks []string, metas []models.ChunkMeta, vectors [][]float32, query []float32, topK int) []models.SearchResult {
	results := make([]models.SearchResult, len(chunks))
	for i := range chunks {
		results[i] = models.SearchResult{
			Text:  chunks[i],
			Meta:  metas[i],
			Score: CosineSimilarity(vectors[i], query),
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Meta.ChunkIndex < results[j].Meta.ChunkIndex
	})
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK]
}

// CosineSimilarity computes dot(a,b) / (|a|*|b| + eps). The epsilon keeps
// degenerate all-zero vectors at score zero instead of dividing by zero.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + similarityEpsilon)
}

// DefaultCorpus is the built-in document set used in general-chat mode when
// no document has been selected.
func DefaultCorpus() []string {
	return []string{
		"This assistant answers questions about documents you upload. Upload a text, markdown, or HTML file and it will be split into passages, indexed, and made searchable.",
		"Once a document is indexed you can ask natural-language questions about it. Answers cite the passages they were drawn from, with a confidence level of high, medium, or low.",
		"If no document is selected, the assistant can only describe its own capabilities. Upload a document to ask about its contents.",
		"Documents can be removed at any time; deleting a document removes its entire index. The suggested-topics feature proposes follow-up questions based on a sample of the document.",
	}
}
