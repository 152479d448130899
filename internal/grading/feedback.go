package grading

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// CriterionBlockHeader starts the per-criterion section of the feedback.
const CriterionBlockHeader = "<br><br><strong>Criterion Scores:</strong><br>"

var boldRe = regexp.MustCompile(`\*\*(.*?)\*\*`)

var newlineReplacer = strings.NewReplacer("\r\n", "<br />\r\n", "\n", "<br />\n", "\r", "<br />\r")

// FormatFeedbackHTML escapes model feedback and applies the little markup
// models use: newlines become <br /> and **text** becomes bold.
func FormatFeedbackHTML(text string) string {
	out := newlineReplacer.Replace(html.EscapeString(text))
	return boldRe.ReplaceAllString(out, "<strong>$1</strong>")
}

// FormatLists renders strengths and improvements as HTML lists. Empty
// slices render nothing.
func FormatLists(strengths, improvements []string) string {
	var b strings.Builder
	if len(strengths) > 0 {
		b.WriteString("<br><br><strong>Strengths:</strong><br>")
		writeList(&b, strengths)
	}
	if len(improvements) > 0 {
		b.WriteString("<br><strong>Areas for Improvement:</strong><br>")
		writeList(&b, improvements)
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	b.WriteString("<ul>")
	for _, item := range items {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(item))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

// CriterionBlock renders one line per criterion from the given scores. It
// returns "" when there are no scores.
func CriterionBlock(scores []domain.CriterionScore) string {
	if len(scores) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(CriterionBlockHeader)
	for _, s := range scores {
		fmt.Fprintf(&b, "- %s (Score: %s)<br>", html.EscapeString(s.Feedback), FormatScore(s.Score))
	}
	return b.String()
}
