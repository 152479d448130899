// Package rubricfile serves assignments, rubrics and submissions from a YAML
// file so grading can run without a database.
package rubricfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// File is the YAML document layout.
type File struct {
	Assignment  AssignmentSpec   `yaml:"assignment" validate:"required"`
	Rubric      *RubricSpec      `yaml:"rubric,omitempty" validate:"omitempty"`
	Submissions []SubmissionSpec `yaml:"submissions" validate:"required,min=1,dive"`
}

// AssignmentSpec holds assignment settings.
type AssignmentSpec struct {
	ID                 int64                `yaml:"id" validate:"required"`
	Name               string               `yaml:"name" validate:"required"`
	Instructions       string               `yaml:"instructions"`
	MaxGrade           float64              `yaml:"max_grade" validate:"gt=0"`
	Mode               domain.GradingMode   `yaml:"mode" validate:"omitempty,grading_mode"`
	Provider           string               `yaml:"provider" validate:"omitempty,oneof=openai gemini claude"`
	Leniency           domain.LeniencyLevel `yaml:"leniency" validate:"omitempty,leniency_level"`
	CustomInstructions string               `yaml:"custom_instructions"`
	ReferenceText      string               `yaml:"reference_text"`
	CourseContext      string               `yaml:"course_context"`
}

// RubricSpec is a rubric definition. Criteria with ranges form a ranged
// rubric; otherwise ranges are derived from levels when needed.
type RubricSpec struct {
	Name     string          `yaml:"name"`
	Criteria []CriterionSpec `yaml:"criteria" validate:"required,min=1,dive"`
}

// CriterionSpec is one rubric criterion.
type CriterionSpec struct {
	ID          int64       `yaml:"id" validate:"required"`
	Description string      `yaml:"description" validate:"required"`
	SortOrder   int         `yaml:"sort_order"`
	Levels      []LevelSpec `yaml:"levels" validate:"required_without=Ranges,dive"`
	Ranges      []RangeSpec `yaml:"ranges" validate:"omitempty,dive"`
}

// LevelSpec is one discrete level.
type LevelSpec struct {
	ID         int64   `yaml:"id" validate:"required"`
	Definition string  `yaml:"definition"`
	Score      float64 `yaml:"score" validate:"gte=0"`
}

// RangeSpec is one explicit score range.
type RangeSpec struct {
	ID         int64   `yaml:"id" validate:"required"`
	Definition string  `yaml:"definition"`
	MinScore   float64 `yaml:"min_score" validate:"gte=0"`
	MaxScore   float64 `yaml:"max_score" validate:"gtefield=MinScore"`
}

// SubmissionSpec is one submission with its extracted text.
type SubmissionSpec struct {
	ID     int64  `yaml:"id" validate:"required"`
	UserID int64  `yaml:"user_id"`
	Text   string `yaml:"text"`
}

// Store answers the grading collaborator ports from a parsed File.
// It is read-only after construction and safe for concurrent use.
type Store struct {
	file        *File
	submissions map[int64]SubmissionSpec
}

var (
	_ ports.RubricStore         = (*Store)(nil)
	_ ports.AssignmentSource    = (*Store)(nil)
	_ ports.CourseContextSource = (*Store)(nil)
	_ ports.SubmissionSource    = (*Store)(nil)
)

// LoadFile reads and validates a YAML grading file.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// LoadReader reads and validates a YAML grading document from r.
func LoadReader(r io.Reader) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	return Parse(data)
}

// Parse decodes data strictly, rejecting unknown fields, and validates it.
func Parse(data []byte) (*Store, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	if err := validate(domain.NewValidator(), &f); err != nil {
		return nil, err
	}

	s := &Store{file: &f, submissions: make(map[int64]SubmissionSpec, len(f.Submissions))}
	for _, sub := range f.Submissions {
		s.submissions[sub.ID] = sub
	}
	return s, nil
}

func validate(v *validator.Validate, f *File) error {
	if err := domain.ValidateStruct(v, "grading file", f); err != nil {
		return err
	}

	verr := domain.NewValidationError("grading file")
	seen := make(map[int64]struct{}, len(f.Submissions))
	for _, sub := range f.Submissions {
		if _, dup := seen[sub.ID]; dup {
			verr.AddError(fmt.Sprintf("duplicate submission id %d", sub.ID))
		}
		seen[sub.ID] = struct{}{}
	}
	if f.Assignment.Mode.UsesRubric() && f.Rubric == nil {
		verr.AddError(fmt.Sprintf("mode %s requires a rubric", f.Assignment.Mode))
	}
	if verr.HasErrors() {
		return verr
	}

	if f.Rubric != nil {
		if err := f.schema().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Submissions returns the submissions in file order.
func (s *Store) Submissions() []domain.SubmissionRef {
	refs := make([]domain.SubmissionRef, 0, len(s.file.Submissions))
	for _, sub := range s.file.Submissions {
		refs = append(refs, domain.SubmissionRef{ID: sub.ID, AssignmentID: s.file.Assignment.ID, UserID: sub.UserID})
	}
	return refs
}

// AssignmentID returns the ID of the file's assignment.
func (s *Store) AssignmentID() int64 { return s.file.Assignment.ID }

// DefinesRanges reports whether any criterion has explicit score ranges.
func (s *Store) DefinesRanges() bool {
	return s.file.Rubric != nil && s.file.schema().Kind == domain.KindRanged
}

// GetAssignment returns the assignment settings.
func (s *Store) GetAssignment(_ context.Context, assignmentID int64) (*domain.Assignment, error) {
	if err := s.checkAssignment(assignmentID); err != nil {
		return nil, err
	}
	a := s.file.Assignment
	return &domain.Assignment{
		ID:                 a.ID,
		Name:               a.Name,
		Instructions:       a.Instructions,
		MaxGrade:           a.MaxGrade,
		Mode:               a.Mode,
		Provider:           a.Provider,
		Leniency:           a.Leniency,
		CustomInstructions: a.CustomInstructions,
		ReferenceText:      a.ReferenceText,
	}, nil
}

// GetContext returns the course context of the assignment.
func (s *Store) GetContext(_ context.Context, assignmentID int64) (string, error) {
	if err := s.checkAssignment(assignmentID); err != nil {
		return "", err
	}
	return s.file.Assignment.CourseContext, nil
}

// GetText returns a submission's text, or domain.MissingContentMarker when
// the submission is blank.
func (s *Store) GetText(_ context.Context, submissionID int64) (string, error) {
	sub, ok := s.submissions[submissionID]
	if !ok {
		return "", fmt.Errorf("submission %d: %w", submissionID, ports.ErrNotFound)
	}
	if sub.Text == "" {
		return domain.MissingContentMarker, nil
	}
	return sub.Text, nil
}

// LoadDiscrete returns the rubric with levels only.
func (s *Store) LoadDiscrete(_ context.Context, assignmentID int64) (*domain.RubricSchema, error) {
	if err := s.checkRubric(assignmentID); err != nil {
		return nil, err
	}
	schema := s.file.schema()
	for i := range schema.Criteria {
		if len(schema.Criteria[i].Levels) == 0 {
			return nil, fmt.Errorf("criterion %d has no discrete levels: %w", schema.Criteria[i].ID, domain.ErrEmptyRubric)
		}
		schema.Criteria[i].Kind = domain.KindDiscrete
		schema.Criteria[i].Ranges = nil
	}
	schema.Kind = domain.KindDiscrete
	return schema, nil
}

// LoadRanged returns the rubric in ranged form, deriving ranges from levels
// for criteria that define none.
func (s *Store) LoadRanged(_ context.Context, assignmentID int64) (*domain.RubricSchema, error) {
	if err := s.checkRubric(assignmentID); err != nil {
		return nil, err
	}
	return domain.ToRanged(s.file.schema()), nil
}

func (s *Store) checkAssignment(assignmentID int64) error {
	if assignmentID != s.file.Assignment.ID {
		return fmt.Errorf("assignment %d: %w", assignmentID, ports.ErrNotFound)
	}
	return nil
}

func (s *Store) checkRubric(assignmentID int64) error {
	if assignmentID != s.file.Assignment.ID || s.file.Rubric == nil {
		return fmt.Errorf("assignment %d: %w", assignmentID, domain.ErrRubricNotFound)
	}
	return nil
}

// schema builds a fresh, sorted schema from the rubric section.
func (f *File) schema() *domain.RubricSchema {
	schema := &domain.RubricSchema{
		AssignmentID: f.Assignment.ID,
		Name:         f.Rubric.Name,
		Kind:         domain.KindDiscrete,
		Criteria:     make([]domain.Criterion, 0, len(f.Rubric.Criteria)),
	}
	for _, c := range f.Rubric.Criteria {
		crit := domain.Criterion{
			ID:          c.ID,
			Description: c.Description,
			SortOrder:   c.SortOrder,
			Kind:        domain.KindDiscrete,
		}
		for _, l := range c.Levels {
			crit.Levels = append(crit.Levels, domain.Level{ID: l.ID, Definition: l.Definition, Score: l.Score})
		}
		if len(c.Ranges) > 0 {
			crit.Kind = domain.KindRanged
			schema.Kind = domain.KindRanged
			for _, r := range c.Ranges {
				crit.Ranges = append(crit.Ranges, domain.ScoreRange{
					ID:         r.ID,
					Definition: r.Definition,
					MinScore:   domain.RoundTo(r.MinScore, 2),
					MaxScore:   domain.RoundTo(r.MaxScore, 2),
					LevelScore: r.MaxScore,
				})
			}
		}
		schema.Criteria = append(schema.Criteria, crit)
	}
	schema.SortCriteria()
	return schema
}
