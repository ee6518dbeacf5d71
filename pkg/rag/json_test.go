package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{
			"bare object",
			`{"a": 1}`,
			`{"a": 1}`,
			true,
		},
		{
			"object surrounded by prose",
			`Sure! Here is the answer: {"a": {"b": 2}} Hope that helps.`,
			`{"a": {"b": 2}}`,
			true,
		},
		{
			"braces inside string values",
			`{"answer": "use {curly} braces", "n": 1}`,
			`{"answer": "use {curly} braces", "n": 1}`,
			true,
		},
		{
			"escaped quotes inside strings",
			`{"answer": "she said \"hi {there}\""}`,
			`{"answer": "she said \"hi {there}\""}`,
			true,
		},
		{
			"unbalanced object",
			`{"answer": "truncated...`,
			"",
			false,
		},
		{
			"no object at all",
			`plain prose, nothing structured`,
			"",
			false,
		},
		{
			"only the first object",
			`{"a": 1} {"b": 2}`,
			`{"a": 1}`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := firstJSONObject(tt.input)
			require.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstJSONArray(t *testing.T) {
	got, found := firstJSONArray(`Some questions: ["a?", "b?"] done`)
	require.True(t, found)
	assert.Equal(t, `["a?", "b?"]`, got)

	_, found = firstJSONArray("no array here")
	assert.False(t, found)
}
