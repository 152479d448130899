package llm

import (
	"encoding/json"
	"strings"
)

// StripCodeFences removes a markdown code fence around structured output.
// A ```json fence wins over a generic one; text without fences is returned
// trimmed.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
	}

	if start := strings.Index(text, "```"); start != -1 {
		start += 3
		// Skip a language identifier on the opening line.
		if nl := strings.Index(text[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(text[start:], "```"); end != -1 {
			return strings.TrimSpace(text[start : start+end])
		}
	}

	return text
}

// DecodeStructured unwraps fenced output and decodes it as a JSON object.
// Anything that is not a JSON object is returned as {"content": text} so
// the caller can decide whether unstructured output is acceptable.
func DecodeStructured(text string) map[string]any {
	candidate := StripCodeFences(text)

	var data map[string]any
	if err := json.Unmarshal([]byte(candidate), &data); err == nil && data != nil {
		return data
	}

	// Models sometimes wrap the object in prose.
	if obj := extractObject(candidate); obj != "" {
		if err := json.Unmarshal([]byte(obj), &data); err == nil && data != nil {
			return data
		}
	}

	return map[string]any{"content": text}
}

// extractObject returns the first balanced {...} span, honouring strings
// and escapes, or "" if there is none.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
