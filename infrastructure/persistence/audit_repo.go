package persistence

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// AuditRepository persists one record per grading attempt.
type AuditRepository struct {
	db *gorm.DB
}

var (
	_ ports.AuditLogger = (*AuditRepository)(nil)
	_ ports.AuditPruner = (*AuditRepository)(nil)
)

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts entry. A raw payload that is not valid JSON is stored as a
// JSON string.
func (r *AuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	row := AuditLogModel{
		AttemptID:      entry.AttemptID.String(),
		AssignmentID:   entry.AssignmentID,
		SubmissionID:   entry.SubmissionID,
		UserID:         entry.UserID,
		Provider:       entry.Provider,
		Model:          entry.Model,
		GradingMode:    string(entry.Mode),
		RawScore:       entry.RawScore,
		AdjustedScore:  entry.AdjustedScore,
		LeniencyLevel:  string(entry.Leniency),
		Feedback:       entry.Feedback,
		AIResponse:     rawPayload(entry.RawPayload),
		Status:         string(entry.Status),
		ErrorMessage:   entry.ErrorMessage,
		ProcessingTime: entry.ProcessingTime.Seconds(),
		CreatedAt:      entry.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return ports.NewStoreError("audit_log", "record", err)
	}
	return nil
}

// Cleanup deletes records created before cutoff.
func (r *AuditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&AuditLogModel{})
	if res.Error != nil {
		return 0, ports.NewStoreError("audit_log", "cleanup", res.Error)
	}
	return res.RowsAffected, nil
}

// ListBySubmission returns the attempts recorded for a submission, newest
// first.
func (r *AuditRepository) ListBySubmission(ctx context.Context, submissionID int64) ([]AuditLogModel, error) {
	var rows []AuditLogModel
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, ports.NewStoreError("audit_log", "list", err)
	}
	return rows, nil
}

func rawPayload(s string) datatypes.JSON {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return datatypes.JSON(s)
	}
	quoted, _ := json.Marshal(s)
	return datatypes.JSON(quoted)
}
