package domain

import (
	"time"

	"github.com/google/uuid"
)

// MissingContentMarker is what submission sources return when a submission
// has neither extractable files nor online text.
const MissingContentMarker = "[No submission content found. Please check file upload or ensure online text was submitted.]"

// Assignment holds the grading settings for one assignment. Empty Mode,
// Provider or Leniency fields defer to the global configuration.
type Assignment struct {
	ID                 int64
	CourseID           int64
	Name               string
	Instructions       string
	MaxGrade           float64
	Mode               GradingMode
	Provider           string
	Leniency           LeniencyLevel
	CustomInstructions string
	ReferenceText      string
}

// SubmissionRef identifies a submission awaiting grading.
type SubmissionRef struct {
	ID           int64
	AssignmentID int64
	UserID       int64
	ModifiedAt   time.Time
}

// GradeRecord is the persisted outcome of a successful attempt.
type GradeRecord struct {
	AssignmentID   int64
	SubmissionID   int64
	UserID         int64
	Grade          float64
	Feedback       string
	CriteriaScores []CriterionScore
	GradedAt       time.Time
}

// AuditStatus is the terminal state of an attempt.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
)

// AuditEntry is the single log record written per grading attempt.
type AuditEntry struct {
	AttemptID      uuid.UUID
	AssignmentID   int64
	SubmissionID   int64
	UserID         int64
	Provider       string
	Model          string
	Mode           GradingMode
	RawScore       *float64
	AdjustedScore  *float64
	Leniency       LeniencyLevel
	Feedback       string
	RawPayload     string
	Status         AuditStatus
	ErrorMessage   string
	ProcessingTime time.Duration
	CreatedAt      time.Time
}

// EventType names a grading notification.
type EventType string

const (
	EventGradingCompleted EventType = "grading.completed"
	EventGradingFailed    EventType = "grading.failed"
)

// GradingEvent is published after an attempt finishes.
type GradingEvent struct {
	Type         EventType `json:"type"`
	AttemptID    uuid.UUID `json:"attempt_id"`
	AssignmentID int64     `json:"assignment_id"`
	SubmissionID int64     `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	Grade        float64   `json:"grade,omitempty"`
	MaxGrade     float64   `json:"max_grade,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
