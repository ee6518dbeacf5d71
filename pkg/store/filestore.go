package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/askdoc/askdoc/internal/models"
)

const (
	entryFile = "index.json"
	infoFile  = "meta.json"
)

// FileBackend persists one directory per document under a root directory:
// index.json holds the chunks/embeddings/metadata payload, meta.json the
// cheap-to-read info record.
type FileBackend struct {
	root string
}

// NewFileBackend creates the root directory if needed.
func NewFileBackend(root string) (*FileBackend, error) {
	if root == "" {
		root = "data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating index root %s: %w", root, err)
	}
	return &FileBackend{root: root}, nil
}

func (b *FileBackend) dir(docID string) string {
	// Document IDs are UUIDs, but flatten anything path-like just in case.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(docID)
	return filepath.Join(b.root, safe)
}

func (b *FileBackend) Put(_ context.Context, docID string, entry *models.IndexEntry, info *models.IndexInfo) error {
	dir := b.dir(docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entryPath := filepath.Join(dir, entryFile)
	if err := writeJSONAtomic(entryPath, entry); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(dir, infoFile), info); err != nil {
		// Without its info record the document must not stay listable.
		os.Remove(entryPath)
		return err
	}
	return nil
}

func (b *FileBackend) Get(_ context.Context, docID string) (*models.IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(b.dir(docID), entryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return nil, err
	}
	var entry models.IndexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("corrupt index for %s: %w", docID, err)
	}
	return &entry, nil
}

func (b *FileBackend) GetInfo(_ context.Context, docID string) (*models.IndexInfo, error) {
	data, err := os.ReadFile(filepath.Join(b.dir(docID), infoFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return nil, err
	}
	var info models.IndexInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", docID, err)
	}
	return &info, nil
}

func (b *FileBackend) PutInfo(_ context.Context, docID string, info *models.IndexInfo) error {
	dir := b.dir(docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, infoFile), info)
}

func (b *FileBackend) Delete(_ context.Context, docID string) (bool, error) {
	dir := b.dir(docID)
	if _, err := os.Stat(filepath.Join(dir, entryFile)); err != nil {
		if os.IsNotExist(err) {
			// Still clean up a stray metadata-only directory.
			_ = os.RemoveAll(dir)
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}

func (b *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(b.root, e.Name(), entryFile)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *FileBackend) Close() error { return nil }

// writeJSONAtomic writes to a temp file in the same directory and renames it
// over the target, so readers never observe a half-written record.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
