package grading

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// promptFuncMap returns the functions available to the prompt templates.
//
// Every function is pure so a given input always renders the same prompt.
func promptFuncMap() template.FuncMap {
	return template.FuncMap{
		// add performs integer addition.
		// Template usage: {{if lt (add $i 1) (len $.Criteria)}},{{end}}
		"add": func(a, b int) int {
			return a + b
		},

		// join concatenates elements with sep between them.
		// Template usage: {{join .Submission.Files ", "}}
		"join": func(elems []string, sep string) string {
			return strings.Join(elems, sep)
		},

		// joinIDs renders criterion identifiers as a comma separated list.
		// Template usage: {{joinIDs .IDs}}
		"joinIDs": func(ids []int64) string {
			parts := make([]string, len(ids))
			for i, id := range ids {
				parts[i] = strconv.FormatInt(id, 10)
			}
			return strings.Join(parts, ", ")
		},

		// score renders a point value with at most two decimals and no
		// trailing zeros.
		// Template usage: {{score .MaxScore}}
		"score": FormatScore,
	}
}

// FormatScore renders v rounded to two decimals without trailing zeros:
// 20 -> "20", 15.01 -> "15.01", 7.5 -> "7.5".
func FormatScore(v float64) string {
	return strconv.FormatFloat(domain.RoundTo(v, 2), 'f', -1, 64)
}
