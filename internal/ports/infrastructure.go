package ports

import (
	"context"
	"time"

	"github.com/kcay/local-ai-grader/internal/domain"
)

// AIProvider defines the contract every AI backend adapter fulfils.
// Implementations own the endpoint, default model, request envelope and auth
// scheme of one provider and normalise replies into a domain.AIResponse.
type AIProvider interface {
	// Name returns the registry name of the provider, e.g. "openai".
	Name() string

	// Model returns the model identifier requests are sent to by default.
	Model() string

	// HasCredentials reports whether the adapter can make requests at all.
	// Send fails fast with domain.ErrMissingCredentials when it is false.
	HasCredentials() bool

	// Send delivers prompt to the provider and returns the parsed reply.
	// Transport-level retries happen inside the adapter's HTTP executor; a
	// returned error has already exhausted them.
	Send(ctx context.Context, prompt string, opts domain.SendOptions) (*domain.AIResponse, error)

	// Parse extracts the model's text from a raw provider body and decodes
	// it as JSON, tolerating fenced code blocks. Text that is not JSON is
	// returned under the "content" key.
	Parse(body []byte) (map[string]any, error)
}

// ProviderSource resolves a configured provider by registry name.
type ProviderSource interface {
	Provider(name string) (AIProvider, error)
}

// RubricStore loads rubric schemas for an assignment. Both methods return
// domain.ErrRubricNotFound when no rubric exists and domain.ErrEmptyRubric
// when one exists without criteria.
type RubricStore interface {
	// LoadDiscrete returns the discrete schema with criteria in sort order
	// and levels by descending score.
	LoadDiscrete(ctx context.Context, assignmentID int64) (*domain.RubricSchema, error)

	// LoadRanged returns the ranged schema, deriving it from the discrete
	// rubric when no ranged definition is stored.
	LoadRanged(ctx context.Context, assignmentID int64) (*domain.RubricSchema, error)
}

// SubmissionSource returns already extracted submission text. Extraction
// problems are reported inline as bracketed markers, not as errors.
type SubmissionSource interface {
	GetText(ctx context.Context, submissionID int64) (string, error)
}

// CourseContextSource returns optional course material for an assignment.
type CourseContextSource interface {
	GetContext(ctx context.Context, assignmentID int64) (string, error)
}

// AssignmentSource returns grading settings for an assignment.
type AssignmentSource interface {
	GetAssignment(ctx context.Context, assignmentID int64) (*domain.Assignment, error)
}

// SubmissionLister lists submissions that have no stored grade yet.
type SubmissionLister interface {
	ListUngraded(ctx context.Context, since time.Time, limit int) ([]domain.SubmissionRef, error)
}

// GradeStore persists adjusted grades. Saving a grade for a submission that
// already has one overwrites it.
type GradeStore interface {
	SaveGrade(ctx context.Context, rec domain.GradeRecord) error
}

// AuditLogger records one entry per grading attempt.
type AuditLogger interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
}

// AuditPruner removes audit entries created before a cutoff and reports how
// many were deleted.
type AuditPruner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

// Notifier delivers grading events to interested parties.
type Notifier interface {
	Notify(ctx context.Context, event domain.GradingEvent) error
}

// ClaimStore provides short-lived exclusive claims so that concurrent batch
// runners do not grade the same submission twice.
type ClaimStore interface {
	// Claim returns true if the key was free and is now held for ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a held claim. Releasing an unheld key is not an error.
	Release(ctx context.Context, key string) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, such as grade
	// distributions.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
