package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for a grading attempt. Infrastructure errors map onto these
// sentinels through Is methods so callers can branch with errors.Is.
var (
	// ErrInvalidRequest indicates malformed input to the HTTP client, such as
	// a bad URL or an unsupported method. It is never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrMissingCredentials indicates that a provider is not configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrTransientNetwork covers timeouts, connection failures, 5xx and 429
	// responses. It is surfaced only after retries are exhausted.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrClientError indicates a terminal 4xx response other than 429.
	ErrClientError = errors.New("client error")

	// ErrMalformedAIOutput indicates the provider replied but the payload
	// lacks required fields or cannot be decoded.
	ErrMalformedAIOutput = errors.New("malformed AI output")

	// ErrUnmappableCriterion marks a criterion score that could not be
	// reconciled with the rubric schema. It is recoverable: the score is
	// dropped and processing continues.
	ErrUnmappableCriterion = errors.New("unmappable criterion")

	// ErrPersistence indicates that writing the grade, feedback or audit log
	// failed.
	ErrPersistence = errors.New("persistence error")

	// ErrRubricNotFound indicates that no rubric exists for the assignment.
	ErrRubricNotFound = errors.New("rubric not found")

	// ErrEmptyRubric indicates a rubric that exists but defines no usable
	// criteria. This is a configuration error, not an absence.
	ErrEmptyRubric = errors.New("rubric has no criteria")

	// ErrUnknownGradingMode indicates a grading mode outside the supported set.
	ErrUnknownGradingMode = errors.New("unknown grading mode")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}

// CriterionError reports a single criterion that failed reconciliation.
type CriterionError struct {
	// CriterionID is the identifier the AI supplied.
	CriterionID int64

	// ValidIDs lists the identifiers known to the schema.
	ValidIDs []int64
}

// Error implements the error interface for CriterionError.
func (e *CriterionError) Error() string {
	return fmt.Sprintf("criterion %d cannot be mapped to rubric criteria %v", e.CriterionID, e.ValidIDs)
}

// Unwrap returns ErrUnmappableCriterion.
func (e *CriterionError) Unwrap() error { return ErrUnmappableCriterion }
