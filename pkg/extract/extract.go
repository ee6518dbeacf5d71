package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/askdoc/askdoc/internal/models"
)

// ErrEmptyDocument is returned when a file yields no text after trimming
// whitespace. Rejected here, before any indexing is attempted.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// charsPerPage approximates one printed page of plain text, used to estimate
// a page count for formats that have no page structure of their own.
const charsPerPage = 3000

// FromFile extracts a document from a file on disk. Supported extensions:
// .txt, .md, .html, .htm; anything else is read as plain text.
func FromFile(path string) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return FromReader(filepath.Base(path), f)
}

// FromReader extracts a document from an uploaded stream. The returned
// document carries a fresh ID, the extracted text, and an estimated page
// count.
func FromReader(name string, r io.Reader) (*models.Document, error) {
	var text string
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		text, err = htmlToText(r)
	default:
		text, err = plainText(r)
	}
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", name, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	pages := (len(text) + charsPerPage - 1) / charsPerPage
	if pages < 1 {
		pages = 1
	}

	return &models.Document{
		ID:        uuid.NewString(),
		Name:      name,
		Text:      text,
		PageCount: pages,
	}, nil
}

func plainText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// htmlToText strips markup and returns the page's readable text, preferring
// a main content region over the whole body.
func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	selectors := []string{"main", "article", ".content", "#content"}
	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	// Collapse runs of whitespace left behind by removed markup.
	return strings.Join(strings.Fields(content), " "), nil
}
