package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

func TestSubmissionRepository_GetText(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)

	sub := SubmissionModel{
		ID: 1, AssignmentID: 7, UserID: 3,
		OnlineText: "<p>See &amp; attached</p>",
		Files: []SubmissionFileModel{
			{FileName: "essay.docx", Text: "My essay text", SortOrder: 1},
			{FileName: "photo.PNG", Text: "ignored", SortOrder: 2},
			{FileName: "scan.pdf", Text: "  ", SortOrder: 3},
		},
	}
	require.NoError(t, db.Create(&sub).Error)

	text, err := repo.GetText(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "\n\n--- File: essay.docx ---\nMy essay text"+
		"\n\n--- File: photo.PNG ---\n[Unsupported file type: .png]"+
		"\n\n--- File: scan.pdf ---\n[Could not extract content from this file]"+
		"\n\n--- Online Text Submission ---\nSee & attached", text)
}

func TestSubmissionRepository_GetTextEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	require.NoError(t, db.Create(&SubmissionModel{ID: 2, AssignmentID: 7, UserID: 3, OnlineText: "<p></p>"}).Error)

	text, err := repo.GetText(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, domain.MissingContentMarker, text)

	_, err = repo.GetText(context.Background(), 99)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestSubmissionRepository_ListUngraded(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.Create(&AssignmentModel{ID: 1, Name: "On", MaxGrade: 10, AutoGrade: true}).Error)
	require.NoError(t, db.Create(&AssignmentModel{ID: 2, Name: "Off", MaxGrade: 10}).Error)
	require.NoError(t, db.Model(&AssignmentModel{}).Where("id = ?", 2).Update("auto_grade", false).Error)

	subs := []SubmissionModel{
		{ID: 10, AssignmentID: 1, UserID: 1, Status: SubmissionStatusSubmitted, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: 11, AssignmentID: 1, UserID: 2, Status: SubmissionStatusSubmitted, UpdatedAt: now.Add(-1 * time.Hour)},
		{ID: 12, AssignmentID: 1, UserID: 3, Status: "draft", UpdatedAt: now.Add(-1 * time.Hour)},
		{ID: 13, AssignmentID: 1, UserID: 4, Status: SubmissionStatusSubmitted, UpdatedAt: now.Add(-48 * time.Hour)},
		{ID: 14, AssignmentID: 2, UserID: 5, Status: SubmissionStatusSubmitted, UpdatedAt: now.Add(-1 * time.Hour)},
		{ID: 15, AssignmentID: 1, UserID: 6, Status: SubmissionStatusSubmitted, UpdatedAt: now.Add(-3 * time.Hour)},
	}
	require.NoError(t, db.Create(&subs).Error)
	require.NoError(t, NewGradeRepository(db).SaveGrade(ctx, domain.GradeRecord{AssignmentID: 1, SubmissionID: 15, UserID: 6, Grade: 8}))

	refs, err := repo.ListUngraded(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, int64(10), refs[0].ID, "oldest first")
	assert.Equal(t, int64(11), refs[1].ID)
	assert.Equal(t, int64(2), refs[1].UserID)

	refs, err = repo.ListUngraded(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func TestSubmissionRepository_GetRef(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSubmissionRepository(db)
	require.NoError(t, db.Create(&SubmissionModel{ID: 4, AssignmentID: 7, UserID: 3}).Error)

	ref, err := repo.GetRef(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ref.AssignmentID)
	assert.Equal(t, int64(3), ref.UserID)

	_, err = repo.GetRef(context.Background(), 5)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}
