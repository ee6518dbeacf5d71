package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/askdoc/askdoc/internal/models"
	"github.com/askdoc/askdoc/internal/types"
)

const (
	answerTemperature = 0.2

	// citationSnippetLen bounds the quoted text of every citation.
	citationSnippetLen = 200

	// fallbackCitations is how many retrieved chunks back a response when
	// the model's output could not be parsed.
	fallbackCitations = 3

	unanswerableMessage = "I could not find relevant information in the provided document to answer this question."
)

const answerSystemTemplate = `You are a document question-answering assistant. Answer the user's question using ONLY the context below. If the context does not contain the answer, say so.

Context:
%s

Respond with a single JSON object, and nothing else, in exactly this shape:
{"answer": "<your answer>", "citations": [{"text": "<verbatim snippet from a source>", "source": "<source file name>", "chunkIndex": <number>}], "confidence": "high" | "medium" | "low"}`

// SynthesizerConfig represents the configuration for the answer synthesizer.
type SynthesizerConfig struct {
	TopK int
}

// Synthesizer turns a question plus retrieved passages into a structured,
// citation-bearing answer. It always returns a well-formed response for a
// completed model call; only the model call itself failing is an error.
type Synthesizer struct {
	search types.Searcher
	llm    types.Generator
	topK   int
}

// NewSynthesizer wires the retriever and language-model gateway together.
func NewSynthesizer(search types.Searcher, llm types.Generator, config SynthesizerConfig) *Synthesizer {
	return &Synthesizer{
		search: search,
		llm:    llm,
		topK:   config.TopK,
	}
}

// Answer runs the full retrieve-generate-parse pipeline for one question.
// docID may be empty, in which case the default corpus is used.
func (s *Synthesizer) Answer(ctx context.Context, docID, question string) (*models.Answer, error) {
	results := s.retrieve(ctx, docID, question)
	if len(results) == 0 {
		return unanswerable(), nil
	}

	system := fmt.Sprintf(answerSystemTemplate, buildContext(results))
	raw, err := s.llm.Generate(ctx, system, question, answerTemperature)
	if err != nil {
		return nil, err
	}

	return parseAnswer(raw, results), nil
}

// retrieve prefers the named document and degrades to the default corpus
// when no document is named or its retrieval fails. A failing fallback is
// treated as an empty result, not an error.
func (s *Synthesizer) retrieve(ctx context.Context, docID, question string) []models.SearchResult {
	if docID != "" {
		results, err := s.search.Retrieve(ctx, docID, question, s.topK)
		if err == nil {
			return results
		}
	}
	results, err := s.search.RetrieveDefault(ctx, question, s.topK)
	if err != nil {
		return nil
	}
	return results
}

// buildContext labels each retrieved chunk with its rank and source so the
// model can cite it, keeping the retriever's descending-score order.
func buildContext(results []models.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[Source %d: %s]\n%s\n---\n", i+1, r.Meta.Source, r.Text)
	}
	return b.String()
}

// modelAnswer mirrors the JSON shape the system prompt mandates.
type modelAnswer struct {
	Answer     string            `json:"answer"`
	Citations  []models.Citation `json:"citations"`
	Confidence string            `json:"confidence"`
}

// parseAnswer extracts and validates the model's JSON, enriching citations
// against the actually retrieved chunks. Malformed output is an expected
// case and falls through to a deterministic response built from the raw text.
func parseAnswer(raw string, results []models.SearchResult) *models.Answer {
	obj, ok := firstJSONObject(raw)
	if !ok {
		return fallbackAnswer(raw, results)
	}

	var parsed modelAnswer
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil || strings.TrimSpace(parsed.Answer) == "" {
		return fallbackAnswer(raw, results)
	}

	citations := make([]models.Citation, 0, len(parsed.Citations))
	for _, c := range parsed.Citations {
		citations = append(citations, enrichCitation(c, results))
	}

	return &models.Answer{
		Answer:     strings.TrimSpace(parsed.Answer),
		Citations:  citations,
		Confidence: normalizeConfidence(parsed.Confidence),
	}
}

// enrichCitation replaces a model-declared quote with a bounded prefix of
// the real chunk whose source it names, so the model cannot invent or
// truncate quotes. Unmatched citations are kept verbatim.
func enrichCitation(c models.Citation, results []models.SearchResult) models.Citation {
	var match *models.SearchResult
	for i := range results {
		if results[i].Meta.Source != c.Source {
			continue
		}
		if results[i].Meta.ChunkIndex == c.ChunkIndex {
			match = &results[i]
			break
		}
		if match == nil {
			match = &results[i]
		}
	}
	if match != nil {
		c.Text = snippet(match.Text)
		c.ChunkIndex = match.Meta.ChunkIndex
	}
	return c
}

// fallbackAnswer is the parse-failure path: the raw model text becomes the
// answer and the top retrieved chunks become the citations.
func fallbackAnswer(raw string, results []models.SearchResult) *models.Answer {
	n := fallbackCitations
	if n > len(results) {
		n = len(results)
	}
	citations := make([]models.Citation, 0, n)
	for _, r := range results[:n] {
		citations = append(citations, models.Citation{
			Text:       snippet(r.Text),
			Source:     r.Meta.Source,
			ChunkIndex: r.Meta.ChunkIndex,
		})
	}
	return &models.Answer{
		Answer:     strings.TrimSpace(raw),
		Citations:  citations,
		Confidence: models.ConfidenceMedium,
	}
}

func unanswerable() *models.Answer {
	return &models.Answer{
		Answer:     unanswerableMessage,
		Citations:  []models.Citation{},
		Confidence: models.ConfidenceLow,
	}
}

func normalizeConfidence(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case models.ConfidenceHigh:
		return models.ConfidenceHigh
	case models.ConfidenceLow:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= citationSnippetLen {
		return text
	}
	return string(runes[:citationSnippetLen])
}
