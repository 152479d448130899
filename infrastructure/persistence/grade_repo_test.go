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

func TestGradeRepository_SaveGradeUpserts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGradeRepository(db)
	ctx := context.Background()
	level := int64(12)

	first := domain.GradeRecord{
		AssignmentID: 7, SubmissionID: 1, UserID: 3,
		Grade: 16.8, Feedback: "first",
		CriteriaScores: []domain.CriterionScore{{CriterionID: 501, LevelID: &level, Score: 10.5, Feedback: "ok"}},
		GradedAt:       time.Now(),
	}
	require.NoError(t, repo.SaveGrade(ctx, first))

	got, err := repo.GetGrade(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 17.0, got.Grade, "stored as a whole number")
	assert.Equal(t, first.CriteriaScores, got.CriteriaScores)

	second := first
	second.Grade = 12.2
	second.Feedback = "second"
	second.CriteriaScores = nil
	require.NoError(t, repo.SaveGrade(ctx, second))

	var count int64
	require.NoError(t, db.Model(&GradeModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err = repo.GetGrade(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.Grade)
	assert.Equal(t, "second", got.Feedback)
	assert.Empty(t, got.CriteriaScores)
}

func TestGradeRepository_GetGradeNotFound(t *testing.T) {
	_, err := NewGradeRepository(setupTestDB(t)).GetGrade(context.Background(), 42)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}

func TestGradeRepository_StoreErrorIsPersistence(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&GradeModel{}))

	err := NewGradeRepository(db).SaveGrade(context.Background(), domain.GradeRecord{SubmissionID: 1})

	var serr *ports.StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "grade", serr.Entity)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
