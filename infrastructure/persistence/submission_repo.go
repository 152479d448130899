package persistence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/grading"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// SubmissionStatusSubmitted marks a submission that is ready for grading.
const SubmissionStatusSubmitted = "submitted"

// SupportedExtensions lists the file types whose extracted text is sent to
// the AI provider.
var SupportedExtensions = []string{".pdf", ".docx", ".doc", ".txt", ".rtf", ".odt"}

// SubmissionRepository assembles submission text and lists submissions that
// still need a grade.
type SubmissionRepository struct {
	db *gorm.DB
}

var (
	_ ports.SubmissionSource = (*SubmissionRepository)(nil)
	_ ports.SubmissionLister = (*SubmissionRepository)(nil)
)

// NewSubmissionRepository creates a SubmissionRepository.
func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// GetText concatenates the extracted text of every file and the online text
// of a submission. Each file is introduced by a "--- File: name ---" header;
// unsupported or unreadable files contribute a bracketed marker instead of
// text. A submission without any content yields domain.MissingContentMarker.
func (r *SubmissionRepository) GetText(ctx context.Context, submissionID int64) (string, error) {
	var row SubmissionModel
	err := r.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC, id ASC") }).
		First(&row, submissionID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("submission %d: %w", submissionID, ports.ErrNotFound)
	case err != nil:
		return "", ports.NewStoreError("submission", "get_text", err)
	}

	return assembleContent(row), nil
}

func assembleContent(row SubmissionModel) string {
	var b strings.Builder
	for _, f := range row.Files {
		ext := strings.ToLower(filepath.Ext(f.FileName))
		fmt.Fprintf(&b, "\n\n--- File: %s ---\n", f.FileName)
		switch {
		case !slices.Contains(SupportedExtensions, ext):
			fmt.Fprintf(&b, "[Unsupported file type: %s]", ext)
		case strings.TrimSpace(f.Text) == "":
			b.WriteString("[Could not extract content from this file]")
		default:
			b.WriteString(f.Text)
		}
	}

	if online := grading.StripTags(row.OnlineText); online != "" {
		b.WriteString("\n\n--- Online Text Submission ---\n")
		b.WriteString(online)
	}

	content := b.String()
	if strings.TrimSpace(content) == "" {
		return domain.MissingContentMarker
	}
	return content
}

// ListUngraded returns submitted work modified after since that has no
// stored grade, oldest first, for assignments with automatic grading on.
func (r *SubmissionRepository) ListUngraded(ctx context.Context, since time.Time, limit int) ([]domain.SubmissionRef, error) {
	query := r.db.WithContext(ctx).
		Model(&SubmissionModel{}).
		Joins("JOIN assignments ON assignments.id = submissions.assignment_id").
		Where("submissions.status = ?", SubmissionStatusSubmitted).
		Where("assignments.auto_grade = ?", true).
		Where("submissions.updated_at > ?", since).
		Where("NOT EXISTS (SELECT 1 FROM grades WHERE grades.submission_id = submissions.id AND grades.grade >= 0)").
		Order("submissions.updated_at ASC, submissions.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []SubmissionModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, ports.NewStoreError("submission", "list_ungraded", err)
	}

	refs := make([]domain.SubmissionRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, domain.SubmissionRef{
			ID:           row.ID,
			AssignmentID: row.AssignmentID,
			UserID:       row.UserID,
			ModifiedAt:   row.UpdatedAt,
		})
	}
	return refs, nil
}

// GetRef returns the identifiers of a single submission.
func (r *SubmissionRepository) GetRef(ctx context.Context, submissionID int64) (*domain.SubmissionRef, error) {
	var row SubmissionModel
	err := r.db.WithContext(ctx).First(&row, submissionID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("submission %d: %w", submissionID, ports.ErrNotFound)
	case err != nil:
		return nil, ports.NewStoreError("submission", "get", err)
	}
	return &domain.SubmissionRef{ID: row.ID, AssignmentID: row.AssignmentID, UserID: row.UserID, ModifiedAt: row.UpdatedAt}, nil
}
