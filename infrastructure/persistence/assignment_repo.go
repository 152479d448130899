package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// AssignmentRepository reads assignment grading settings and the course
// transcript attached to an assignment.
type AssignmentRepository struct {
	db *gorm.DB
}

var (
	_ ports.AssignmentSource    = (*AssignmentRepository)(nil)
	_ ports.CourseContextSource = (*AssignmentRepository)(nil)
)

// NewAssignmentRepository creates an AssignmentRepository.
func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// GetAssignment returns the settings of one assignment.
func (r *AssignmentRepository) GetAssignment(ctx context.Context, assignmentID int64) (*domain.Assignment, error) {
	row, err := r.find(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return &domain.Assignment{
		ID:                 row.ID,
		CourseID:           row.CourseID,
		Name:               row.Name,
		Instructions:       row.Instructions,
		MaxGrade:           row.MaxGrade,
		Mode:               domain.GradingMode(row.Mode),
		Provider:           row.Provider,
		Leniency:           domain.LeniencyLevel(row.Leniency),
		CustomInstructions: row.CustomInstructions,
		ReferenceText:      row.ReferenceText,
	}, nil
}

// GetContext returns the course transcript stored with the assignment, or
// "" when there is none.
func (r *AssignmentRepository) GetContext(ctx context.Context, assignmentID int64) (string, error) {
	row, err := r.find(ctx, assignmentID)
	if err != nil {
		return "", err
	}
	return row.CourseTranscript, nil
}

// SaveAssignment inserts or updates an assignment row.
func (r *AssignmentRepository) SaveAssignment(ctx context.Context, row *AssignmentModel) error {
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return ports.NewStoreError("assignment", "save", err)
	}
	return nil
}

func (r *AssignmentRepository) find(ctx context.Context, assignmentID int64) (*AssignmentModel, error) {
	var row AssignmentModel
	err := r.db.WithContext(ctx).First(&row, assignmentID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("assignment %d: %w", assignmentID, ports.ErrNotFound)
	case err != nil:
		return nil, ports.NewStoreError("assignment", "get", err)
	}
	return &row, nil
}
