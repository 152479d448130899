package grading

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
)

const essayText = "This is my essay about photosynthesis and light."

func TestBuildSimplePrompt_Golden(t *testing.T) {
	req := domain.GradingRequest{
		Instructions:   "<p>Write an essay &amp; cite</p>",
		SubmissionText: essayText,
		Mode:           domain.ModeSimple,
		MaxGrade:       20,
	}

	want := `You are grading a student submission for an assignment.

**Assignment Details:**
- Maximum Grade: 20
- Assignment Instructions: Write an essay & cite

**Submission Information:**
- Submission Type: Text Content
- Content Status: Successfully extracted and readable

**Student Submission Content:**
The following content was extracted from the student's submission file(s):

This is my essay about photosynthesis and light.

**Grading Requirements:**
Please grade this submission based on the assignment instructions above.

**Required JSON Response Format:**
{
  "score": <numeric score out of 20>,
  "feedback": "<detailed constructive feedback>",
  "strengths": ["strength 1", "strength 2"],
  "improvements": ["area 1", "area 2"]
}

Provide objective, constructive feedback. Be specific about strengths and areas for improvement.`

	got, err := BuildSimplePrompt(req)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBuildSimplePrompt_OptionalSections(t *testing.T) {
	req := domain.GradingRequest{
		Instructions:       "Solve it",
		SubmissionText:     "--- File: answer.txt ---\nThe answer is forty two because of reasons.",
		CourseContext:      "Week 3 covered recursion.",
		CustomInstructions: "<b>Be kind</b>",
		ReferenceText:      "42",
		Mode:               domain.ModeSimple,
		MaxGrade:           10.5,
	}

	got, err := BuildSimplePrompt(req)
	require.NoError(t, err)

	assert.Contains(t, got, "- Maximum Grade: 10.5\n")
	assert.Contains(t, got, "**Course Context (Transcript/Syllabus):**\nWeek 3 covered recursion.\n\n")
	assert.Contains(t, got, "**Custom Grading Instructions:**\nBe kind\n\n")
	assert.Contains(t, got, "**Reference/Answer Key:**\n42\n\n")
	assert.Contains(t, got, "- Submission Type: File Upload\n- Files Submitted: answer.txt\n")

	ctx := strings.Index(got, "**Course Context")
	custom := strings.Index(got, "**Custom Grading")
	ref := strings.Index(got, "**Reference/Answer")
	sub := strings.Index(got, "**Student Submission Content")
	assert.True(t, ctx < custom && custom < ref && ref < sub, "sections are in order")
}

func TestBuildSimplePrompt_NoSubmission(t *testing.T) {
	req := domain.GradingRequest{
		Instructions:   "Write",
		SubmissionText: domain.MissingContentMarker,
		Mode:           domain.ModeSimple,
		MaxGrade:       20,
	}

	got, err := BuildSimplePrompt(req)
	require.NoError(t, err)

	assert.Contains(t, got, "- Submission Type: No Submission\n")
	assert.Contains(t, got, "- Content Status: No readable content found or extraction failed\n")
	assert.Contains(t, got, "**Student Submission Status:**\nThe student appears to have not submitted any readable content.")
	assert.Contains(t, got, "typically with a score of 0")
	assert.Contains(t, got, "Since no readable content was found, consider whether:\n")
	assert.True(t, strings.HasSuffix(got, "suggest the student resubmit in a supported format."))
	assert.NotContains(t, got, domain.MissingContentMarker, "the marker is replaced by guidance")
}

func TestBuildRubricPrompt(t *testing.T) {
	req := domain.GradingRequest{
		Instructions:   "Write",
		SubmissionText: essayText,
		Mode:           domain.ModeRubric,
		Schema:         essaySchema(),
		MaxGrade:       30,
	}

	got, err := BuildRubricPrompt(req)
	require.NoError(t, err)

	assert.Contains(t, got, "**Rubric Criteria:**\n\n**Criterion ID 501: Thesis**\n"+
		"- Level ID 11: Excellent (20 points)\n"+
		"- Level ID 12: Good (15 points)\n"+
		"- Level ID 13: Fair (10 points)\n"+
		"- Level ID 14: Missing (0 points)\n\n"+
		"**Criterion ID 502: Evidence**\n")
	assert.Contains(t, got, "**Student Submission:**\n"+essayText+"\n\n")
	assert.Contains(t, got, `    {"criterion_id": 501, "level_id": 11, "score": <points>, "feedback": "<specific feedback>"},`+"\n    ...\n")
	assert.True(t, strings.HasSuffix(got, "Use the EXACT criterion IDs (501, 502) and the level IDs shown above."))
}

func TestBuildRangedPrompt(t *testing.T) {
	req := domain.GradingRequest{
		Instructions:   "Write",
		SubmissionText: essayText,
		Mode:           domain.ModeRangedRubric,
		Schema:         essaySchema(),
		MaxGrade:       30,
	}

	got, err := BuildRangedPrompt(req)
	require.NoError(t, err)

	assert.Contains(t, got, "**IMPORTANT: This is a RANGED RUBRIC**")
	assert.Contains(t, got, "**Criterion ID 501: Thesis**\n"+
		"Score Range: 0 to 20 points\n"+
		"Performance Levels:\n"+
		"- Excellent (Range: 15.01 - 20 points)\n"+
		"- Good (Range: 10.01 - 15 points)\n"+
		"- Fair (Range: 0.01 - 10 points)\n"+
		"- Missing (Range: 0 - 0 points)\n\n")
	assert.Contains(t, got, "- Strong (Range: 5.01 - 10 points)\n- Weak (Range: 0 - 5 points)\n")
	assert.Contains(t, got, "4. You can assign ANY integer score within the range (e.g., 13, 16, 18, etc.). No decimals\n")
	assert.Contains(t, got, "      \"criterion_id\": 501,\n")
	assert.Contains(t, got, "**Example Response Structure:**\n{\n  \"criteria_scores\": [\n"+
		`    {"criterion_id": 501, "score": <score>, "feedback": "<feedback>"},`+"\n"+
		`    {"criterion_id": 502, "score": <score>, "feedback": "<feedback>"}`+"\n  ],\n")
	assert.True(t, strings.HasSuffix(got, "Remember: Use the EXACT criterion IDs (501, 502) in your response."))
}

func TestBuildRangedPrompt_NoReadableContent(t *testing.T) {
	req := domain.GradingRequest{
		Instructions:   "Write",
		SubmissionText: "--- File: scan.png ---\n[Unsupported file type: png]",
		Mode:           domain.ModeRangedRubric,
		Schema:         essaySchema(),
		MaxGrade:       30,
	}

	got, err := BuildRangedPrompt(req)
	require.NoError(t, err)

	assert.Contains(t, got, "**Student Submission Status:**\n- Submission Type: File Upload\n"+
		"- Content Status: No readable content found or extraction failed\n\n"+
		"--- File: scan.png ---\n[Unsupported file type: png]\n\n")
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	for _, mode := range []domain.GradingMode{domain.ModeSimple, domain.ModeRubric, domain.ModeRangedRubric} {
		t.Run(string(mode), func(t *testing.T) {
			req := domain.GradingRequest{
				Instructions:   "<p>Write</p>",
				SubmissionText: essayText,
				CourseContext:  "ctx",
				Mode:           mode,
				Schema:         essaySchema(),
				MaxGrade:       30,
			}
			first, err := BuildPrompt(req)
			require.NoError(t, err)
			for range 5 {
				again, err := BuildPrompt(req)
				require.NoError(t, err)
				assert.Equal(t, first, again)
			}
		})
	}
}

func TestBuildPrompt_Errors(t *testing.T) {
	_, err := BuildPrompt(domain.GradingRequest{Mode: "guide"})
	assert.True(t, errors.Is(err, domain.ErrUnknownGradingMode))

	_, err = BuildPrompt(domain.GradingRequest{Mode: domain.ModeRubric})
	assert.True(t, errors.Is(err, domain.ErrEmptyRubric))

	_, err = BuildPrompt(domain.GradingRequest{Mode: domain.ModeRangedRubric, Schema: &domain.RubricSchema{}})
	assert.True(t, errors.Is(err, domain.ErrEmptyRubric))
}

func TestFormatScore(t *testing.T) {
	tests := map[float64]string{
		20:      "20",
		15.01:   "15.01",
		7.5:     "7.5",
		0:       "0",
		3.14159: "3.14",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatScore(in), "%v", in)
	}
}
