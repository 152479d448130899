package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// GradeRepository stores adjusted grades, one row per submission.
type GradeRepository struct {
	db *gorm.DB
}

var _ ports.GradeStore = (*GradeRepository)(nil)

// NewGradeRepository creates a GradeRepository.
func NewGradeRepository(db *gorm.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// SaveGrade upserts the grade for rec.SubmissionID. The grade is stored as a
// whole number; the last write wins.
func (r *GradeRepository) SaveGrade(ctx context.Context, rec domain.GradeRecord) error {
	scores, err := json.Marshal(rec.CriteriaScores)
	if err != nil {
		return ports.NewStoreError("grade", "encode_criteria", err)
	}

	row := GradeModel{
		SubmissionID:   rec.SubmissionID,
		AssignmentID:   rec.AssignmentID,
		UserID:         rec.UserID,
		Grade:          math.Round(rec.Grade),
		Feedback:       rec.Feedback,
		CriteriaScores: datatypes.JSON(scores),
		GradedAt:       rec.GradedAt,
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"grade", "feedback", "criteria_scores", "graded_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return ports.NewStoreError("grade", "save", err)
	}
	return nil
}

// GetGrade returns the stored grade of a submission.
func (r *GradeRepository) GetGrade(ctx context.Context, submissionID int64) (*domain.GradeRecord, error) {
	var row GradeModel
	err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("grade for submission %d: %w", submissionID, ports.ErrNotFound)
	case err != nil:
		return nil, ports.NewStoreError("grade", "get", err)
	}

	rec := &domain.GradeRecord{
		AssignmentID: row.AssignmentID,
		SubmissionID: row.SubmissionID,
		UserID:       row.UserID,
		Grade:        row.Grade,
		Feedback:     row.Feedback,
		GradedAt:     row.GradedAt,
	}
	if len(row.CriteriaScores) > 0 {
		if err := json.Unmarshal(row.CriteriaScores, &rec.CriteriaScores); err != nil {
			return nil, ports.NewStoreError("grade", "decode_criteria", err)
		}
	}
	return rec, nil
}
