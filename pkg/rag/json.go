package rag

// The model is not trusted to emit only JSON, so both extractors scan for
// the first balanced bracket pair, honoring string literals and escapes.

// firstJSONObject returns the first balanced {...} substring of s.
func firstJSONObject(s string) (string, bool) {
	return firstBalanced(s, '{', '}')
}

// firstJSONArray returns the first balanced [...] substring of s.
func firstJSONArray(s string) (string, bool) {
	return firstBalanced(s, '[', ']')
}

func firstBalanced(s string, open, closer byte) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case open:
			if start < 0 {
				start = i
			}
			depth++
		case closer:
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
