package chunker

import (
	"unicode/utf8"

	"github.com/askdoc/askdoc/internal/models"
)

type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits raw document text into overlapping fixed-size passages.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = 200
		if config.ChunkOverlap >= config.ChunkSize {
			config.ChunkOverlap = config.ChunkSize / 5
		}
	}
	return Chunker{config: config}
}

// Split walks text with a sliding window of the configured size, advancing
// by size-overlap after each window. The final window is truncated to the
// remaining text. Empty input yields no chunks.
func (c Chunker) Split(text string) []string {
	return Split(text, c.config.ChunkSize, c.config.ChunkOverlap)
}

// Process turns a document into ordered chunks carrying source metadata.
// When the document has a known page count, each chunk gets a page number
// estimated from its character offset.
func (c Chunker) Process(doc models.Document) []models.ChunkMeta {
	chunks := c.Split(doc.Text)
	stride := c.config.ChunkSize - c.config.ChunkOverlap
	textLen := utf8.RuneCountInString(doc.Text)
	metas := make([]models.ChunkMeta, len(chunks))
	for i := range chunks {
		metas[i] = models.ChunkMeta{
			Source:     doc.Name,
			ChunkIndex: i,
			Page:       pageAt(i*stride, textLen, doc.PageCount),
		}
	}
	return metas
}

// Split is the pure form of the sliding-window chunker. It requires
// size > overlap >= 0; out-of-range arguments yield nil rather than an
// infinite walk.
func Split(text string, size, overlap int) []string {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	stride := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func pageAt(offset, textLen, pageCount int) int {
	if pageCount <= 0 || textLen == 0 {
		return 0
	}
	charsPerPage := (textLen + pageCount - 1) / pageCount
	if charsPerPage == 0 {
		return 1
	}
	page := offset/charsPerPage + 1
	if page > pageCount {
		page = pageCount
	}
	return page
}
