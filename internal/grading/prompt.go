// Package grading holds the pure grading pipeline: prompt construction,
// interpretation of AI payloads, feedback rendering and leniency
// adjustment. Nothing in this package performs I/O.
package grading

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/kcay/local-ai-grader/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var promptTemplates = template.Must(
	template.New("prompts").Funcs(promptFuncMap()).ParseFS(templateFS, "templates/*.tmpl"),
)

// promptCriterion is a criterion flattened for the templates.
type promptCriterion struct {
	ID           int64
	Description  string
	Levels       []domain.Level
	Ranges       []domain.ScoreRange
	Max          float64
	FirstLevelID int64
}

// promptData is the template input shared by every mode.
type promptData struct {
	Instructions       string
	CourseContext      string
	CustomInstructions string
	ReferenceText      string
	MaxGrade           float64
	Submission         SubmissionInfo
	SubmissionText     string
	Criteria           []promptCriterion
	First              *promptCriterion
	IDs                []int64
}

// BuildPrompt renders the prompt for the request's grading mode.
func BuildPrompt(req domain.GradingRequest) (string, error) {
	switch req.Mode {
	case domain.ModeSimple:
		return BuildSimplePrompt(req)
	case domain.ModeRubric:
		return BuildRubricPrompt(req)
	case domain.ModeRangedRubric:
		return BuildRangedPrompt(req)
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownGradingMode, req.Mode)
	}
}

// BuildSimplePrompt renders a prompt asking for a single overall score.
func BuildSimplePrompt(req domain.GradingRequest) (string, error) {
	return render("simple.tmpl", newPromptData(req, nil))
}

// BuildRubricPrompt renders a discrete rubric prompt. Criteria and levels
// are listed with their real identifiers.
func BuildRubricPrompt(req domain.GradingRequest) (string, error) {
	if err := checkSchema(req.Schema); err != nil {
		return "", err
	}
	return render("rubric.tmpl", newPromptData(req, req.Schema))
}

// BuildRangedPrompt renders a ranged rubric prompt. A discrete schema is
// converted to ranges first.
func BuildRangedPrompt(req domain.GradingRequest) (string, error) {
	if err := checkSchema(req.Schema); err != nil {
		return "", err
	}
	schema := req.Schema
	if schema.Kind != domain.KindRanged {
		schema = domain.ToRanged(schema)
	}
	return render("ranged.tmpl", newPromptData(req, schema))
}

func checkSchema(s *domain.RubricSchema) error {
	if s == nil || len(s.Criteria) == 0 {
		return fmt.Errorf("rubric prompt: %w", domain.ErrEmptyRubric)
	}
	return nil
}

func newPromptData(req domain.GradingRequest, schema *domain.RubricSchema) promptData {
	text := NormalizeText(req.SubmissionText)
	data := promptData{
		Instructions:       StripTags(req.Instructions),
		CourseContext:      strings.TrimSpace(NormalizeText(req.CourseContext)),
		CustomInstructions: StripTags(req.CustomInstructions),
		ReferenceText:      strings.TrimSpace(NormalizeText(req.ReferenceText)),
		MaxGrade:           req.MaxGrade,
		Submission:         AnalyzeSubmission(text),
		SubmissionText:     text,
	}
	if schema == nil {
		return data
	}

	for _, c := range schema.Criteria {
		pc := promptCriterion{
			ID:          c.ID,
			Description: StripTags(c.Description),
			Levels:      c.Levels,
			Ranges:      c.Ranges,
			Max:         c.MaxScore(),
		}
		if len(c.Levels) > 0 {
			pc.FirstLevelID = c.Levels[0].ID
		}
		data.Criteria = append(data.Criteria, pc)
		data.IDs = append(data.IDs, c.ID)
	}
	data.First = &data.Criteria[0]
	return data
}

func render(name string, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
