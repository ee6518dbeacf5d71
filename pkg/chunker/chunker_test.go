package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/models"
	"github.com/askdoc/askdoc/pkg/chunker"
)

func TestSplit_Coverage(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 60)

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"default shape", 1000, 200},
		{"small windows", 50, 10},
		{"no overlap", 100, 0},
		{"text shorter than window", 10000, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunker.Split(text, tt.size, tt.overlap)
			require.NotEmpty(t, chunks)

			// Dropping each chunk's leading overlap reconstructs the text.
			var rebuilt strings.Builder
			rebuilt.WriteString(chunks[0])
			for _, ch := range chunks[1:] {
				runes := []rune(ch)
				if len(runes) > tt.overlap {
					rebuilt.WriteString(string(runes[tt.overlap:]))
				}
			}
			assert.Equal(t, text, rebuilt.String())

			// The final chunk always ends exactly at the text end.
			assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("abcdefghij", 123)
	first := chunker.Split(text, 100, 25)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, chunker.Split(text, 100, 25))
	}
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Empty(t, chunker.Split("", 1000, 200))
}

func TestSplit_InvalidArguments(t *testing.T) {
	text := strings.Repeat("x", 500)
	assert.Nil(t, chunker.Split(text, 0, 0))
	assert.Nil(t, chunker.Split(text, 100, 100), "overlap equal to size must not loop")
	assert.Nil(t, chunker.Split(text, 100, 150))
	assert.Nil(t, chunker.Split(text, -5, -1))
}

func TestSplit_WindowSizes(t *testing.T) {
	text := strings.Repeat("y", 250)
	chunks := chunker.Split(text, 100, 20)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	// 250 - 2*80 = 90 characters remain for the truncated final window.
	assert.Len(t, chunks[2], 90)
}

func TestChunker_Process(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 20})
	doc := models.Document{
		ID:        "doc-1",
		Name:      "guide.txt",
		Text:      strings.Repeat("z", 400),
		PageCount: 4,
	}

	metas := c.Process(doc)
	require.Len(t, metas, len(c.Split(doc.Text)))
	for i, m := range metas {
		assert.Equal(t, "guide.txt", m.Source)
		assert.Equal(t, i, m.ChunkIndex)
		assert.GreaterOrEqual(t, m.Page, 1)
		assert.LessOrEqual(t, m.Page, 4)
	}
	// Pages never decrease along the document.
	for i := 1; i < len(metas); i++ {
		assert.GreaterOrEqual(t, metas[i].Page, metas[i-1].Page)
	}
}

func TestNewWithConfig_Defaults(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{})
	chunks := c.Split(strings.Repeat("a", 1500))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 1000)
	// Second window starts at 800 and is truncated to the remaining 700.
	assert.Len(t, chunks[1], 700)
}
