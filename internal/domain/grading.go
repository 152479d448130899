package domain

import "fmt"

// GradingRequest carries everything the prompt builders need for one attempt.
// It is built once and not modified afterwards.
type GradingRequest struct {
	AssignmentName     string
	Instructions       string
	SubmissionText     string
	CourseContext      string
	Mode               GradingMode   `validate:"required,grading_mode"`
	Schema             *RubricSchema `validate:"required_unless=Mode simple"`
	MaxGrade           float64       `validate:"gt=0"`
	CustomInstructions string
	ReferenceText      string
}

// Validate checks the cross-field rules that struct tags cannot express.
func (r GradingRequest) Validate() error {
	verr := NewValidationError("grading request")
	if !r.Mode.Valid() {
		verr.AddError(fmt.Sprintf("unknown grading mode %q", r.Mode))
	}
	if r.MaxGrade <= 0 {
		verr.AddError("max grade must be positive")
	}
	if r.Mode.UsesRubric() && r.Schema == nil {
		verr.AddError(fmt.Sprintf("mode %s requires a rubric schema", r.Mode))
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// CriterionScore is one scored criterion after reconciliation with the schema.
type CriterionScore struct {
	CriterionID int64   `json:"criterion_id"`
	LevelID     *int64  `json:"level_id,omitempty"`
	Score       float64 `json:"score"`
	Feedback    string  `json:"feedback"`
}

// GradingResult is the processed, pre-leniency outcome of an AI response.
// OverallHTML holds the rendered overall feedback without the per-criterion
// block so the block can be regenerated from adjusted scores.
type GradingResult struct {
	Mode            GradingMode
	BaselineGrade   float64
	CriteriaScores  []CriterionScore
	OverallHTML     string
	FeedbackText    string
	DroppedCriteria []int64
}

// AdjustedResult is the leniency-adjusted result and the only value released
// to persistence.
type AdjustedResult struct {
	Mode           GradingMode
	BaselineGrade  float64
	Grade          float64
	Leniency       LeniencyLevel
	CriteriaScores []CriterionScore
	FeedbackText   string
}
