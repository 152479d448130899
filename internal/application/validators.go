package application

import (
	"github.com/go-playground/validator/v10"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// ValidateGradeInput checks that in identifies a submission and assignment.
// User IDs may be zero for anonymous test submissions.
func ValidateGradeInput(v *validator.Validate, in GradeInput) error {
	return domain.ValidateStruct(v, "grade input", in)
}

// ValidateBatchConfig checks the batch runner settings.
func ValidateBatchConfig(v *validator.Validate, cfg BatchConfig) error {
	return domain.ValidateStruct(v, "batch config", cfg)
}
