package grading

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// strictPolicy removes every tag and keeps only text content.
var strictPolicy = bluemonday.StrictPolicy()

// StripTags converts instructor-authored HTML into plain prompt text.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	out := html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.TrimSpace(norm.NFC.String(out))
}

// NormalizeText puts free text into NFC form so visually identical
// submissions produce identical prompts.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

// PlainText renders feedback HTML as plain text for notifications.
func PlainText(feedbackHTML string) string {
	s := strings.NewReplacer("<br />", "\n", "<br>", "\n", "</li>", "\n").Replace(feedbackHTML)
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
