package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/askdoc/askdoc/internal/models"
	"github.com/askdoc/askdoc/internal/types"
	"github.com/askdoc/askdoc/pkg/chunker"
)

var (
	// ErrNotFound is returned when no persisted entry exists for a document.
	ErrNotFound = errors.New("no index found for document")
	// ErrEmptyDocument is returned when chunking yields zero chunks, before
	// any embedding call is made.
	ErrEmptyDocument = errors.New("document text is empty")
)

// Backend is the durable-storage half of the vector store. Implementations
// must return ErrNotFound for unknown document IDs and make Put/Delete
// all-or-nothing for a single document.
type Backend interface {
	Put(ctx context.Context, docID string, entry *models.IndexEntry, info *models.IndexInfo) error
	Get(ctx context.Context, docID string) (*models.IndexEntry, error)
	GetInfo(ctx context.Context, docID string) (*models.IndexInfo, error)
	PutInfo(ctx context.Context, docID string, info *models.IndexInfo) error
	Delete(ctx context.Context, docID string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// StoreConfig represents the configuration for the vector store.
type StoreConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Store owns the per-document mapping from ID to chunks, vectors, and
// metadata. It persists entries through a Backend and keeps a
// process-lifetime cache in front of it. The cache never evicts, so memory
// grows with the number of distinct documents loaded; acceptable for a
// single-node service at this scale.
type Store struct {
	backend  Backend
	embedder types.Embedder
	chunker  chunker.Chunker

	cacheMu sync.RWMutex
	cache   map[string]*models.IndexEntry

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex
}

// New creates a Store in front of the given backend. The embedder is invoked
// once per CreateIndex with the full chunk batch.
func New(backend Backend, embedder types.Embedder, config StoreConfig) *Store {
	return &Store{
		backend:  backend,
		embedder: embedder,
		chunker:  chunker.NewWithConfig(chunker.ChunkerConfig(config)),
		cache:    make(map[string]*models.IndexEntry),
		locks:    make(map[string]*sync.RWMutex),
	}
}

// lockFor returns the lock guarding one document ID. Create, delete, and
// cache population for the same ID serialize on it; readers share it.
func (s *Store) lockFor(docID string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[docID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[docID] = l
	}
	return l
}

// CreateIndex chunks and embeds the document text, then persists the
// assembled entry and its info record. Either a complete entry exists
// afterwards or none does.
func (s *Store) CreateIndex(ctx context.Context, docID string, doc models.Document) (*models.IndexInfo, error) {
	chunks := s.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	metas := s.chunker.Process(doc)

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("indexing document %s: %w", docID, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("indexing document %s: got %d vectors for %d chunks", docID, len(vectors), len(chunks))
	}

	entry := &models.IndexEntry{
		Chunks:     chunks,
		Embeddings: vectors,
		Metadata:   metas,
	}
	info := &models.IndexInfo{
		FileName:   doc.Name,
		CreatedAt:  time.Now().UTC(),
		ChunkCount: len(chunks),
		PageCount:  doc.PageCount,
		TextLength: utf8.RuneCountInString(doc.Text),
	}

	l := s.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	if err := s.backend.Put(ctx, docID, entry, info); err != nil {
		return nil, fmt.Errorf("persisting index for %s: %w", docID, err)
	}
	s.cacheMu.Lock()
	s.cache[docID] = entry
	s.cacheMu.Unlock()

	return info, nil
}

// Load returns the entry for a document, from cache when present, otherwise
// from the backend (populating the cache). Returns ErrNotFound when no
// persisted entry exists.
func (s *Store) Load(ctx context.Context, docID string) (*models.IndexEntry, error) {
	s.cacheMu.RLock()
	entry, ok := s.cache[docID]
	s.cacheMu.RUnlock()
	if ok {
		return entry, nil
	}

	l := s.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	// Another task may have populated the cache while we waited.
	s.cacheMu.RLock()
	entry, ok = s.cache[docID]
	s.cacheMu.RUnlock()
	if ok {
		return entry, nil
	}

	entry, err := s.backend.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	s.cache[docID] = entry
	s.cacheMu.Unlock()
	return entry, nil
}

// Delete removes the cached and durable entry together. It reports whether a
// durable entry existed.
func (s *Store) Delete(ctx context.Context, docID string) (bool, error) {
	l := s.lockFor(docID)
	l.Lock()
	defer l.Unlock()

	s.cacheMu.Lock()
	delete(s.cache, docID)
	s.cacheMu.Unlock()

	return s.backend.Delete(ctx, docID)
}

// List enumerates all durably persisted document IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.backend.List(ctx)
}

// Info returns the side record for one document without touching the vector
// payload.
func (s *Store) Info(ctx context.Context, docID string) (*models.IndexInfo, error) {
	return s.backend.GetInfo(ctx, docID)
}

// SaveInfo writes or replaces the side record for one document.
func (s *Store) SaveInfo(ctx context.Context, docID string, info *models.IndexInfo) error {
	return s.backend.PutInfo(ctx, docID, info)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
