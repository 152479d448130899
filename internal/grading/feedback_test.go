package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kcay/local-ai-grader/internal/domain"
)

func TestFormatFeedbackHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"escapes", `<b>x</b> & "y"`, "&lt;b&gt;x&lt;/b&gt; &amp; &#34;y&#34;"},
		{"newlines", "one\ntwo", "one<br />\ntwo"},
		{"bold", "a **strong** point", "a <strong>strong</strong> point"},
		{"bold is non greedy", "**a** and **b**", "<strong>a</strong> and <strong>b</strong>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFeedbackHTML(tt.in))
		})
	}
}

func TestFormatLists(t *testing.T) {
	assert.Empty(t, FormatLists(nil, nil))
	assert.Equal(t,
		"<br><br><strong>Strengths:</strong><br><ul><li>Clear</li></ul>"+
			"<br><strong>Areas for Improvement:</strong><br><ul><li>Cite &lt;sources&gt;</li></ul>",
		FormatLists([]string{"Clear"}, []string{"Cite <sources>"}))
	assert.Equal(t, "<br><strong>Areas for Improvement:</strong><br><ul><li>x</li></ul>", FormatLists(nil, []string{"x"}))
}

func TestCriterionBlock(t *testing.T) {
	assert.Empty(t, CriterionBlock(nil))

	got := CriterionBlock([]domain.CriterionScore{
		{CriterionID: 1, Score: 17, Feedback: "Strong thesis"},
		{CriterionID: 2, Score: 7.5, Feedback: "Use <cite>"},
	})
	assert.Equal(t, CriterionBlockHeader+
		"- Strong thesis (Score: 17)<br>"+
		"- Use &lt;cite&gt; (Score: 7.5)<br>", got)
}
