package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	topicTemperature = 0.3
	topicSampleQuery = "overview summary"
	topicSampleTopK  = 2
	maxTopics        = 5
)

const topicSystemTemplate = `You suggest questions a reader might ask about a document. Based on the excerpts below, propose up to %d short, specific questions.

Excerpts:
%s

Respond with a JSON array of strings, and nothing else. Example: ["What is X?", "How does Y work?"]`

// defaultTopics is returned whenever sampling, generation, or parsing fails.
// Topic suggestion never fails its caller.
var defaultTopics = []string{
	"What is the main subject of this document?",
	"Can you summarize the key points?",
	"What conclusions does the document reach?",
	"Are there any important dates or figures mentioned?",
	"What questions does this document leave open?",
}

// SuggestTopics samples the document's index and asks the model for
// follow-up questions. Any failure along the way yields the default list.
func (s *Synthesizer) SuggestTopics(ctx context.Context, docID string) []string {
	results, err := s.search.Retrieve(ctx, docID, topicSampleQuery, topicSampleTopK)
	if err != nil || len(results) == 0 {
		return defaultTopics
	}

	system := fmt.Sprintf(topicSystemTemplate, maxTopics, buildContext(results))
	raw, err := s.llm.Generate(ctx, system, "Suggest questions about this document.", topicTemperature)
	if err != nil {
		return defaultTopics
	}

	arr, ok := firstJSONArray(raw)
	if !ok {
		return defaultTopics
	}
	var topics []string
	if err := json.Unmarshal([]byte(arr), &topics); err != nil {
		return defaultTopics
	}

	out := make([]string, 0, maxTopics)
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == maxTopics {
			break
		}
	}
	if len(out) == 0 {
		return defaultTopics
	}
	return out
}
