package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

func TestAssignmentRepository(t *testing.T) {
	repo := NewAssignmentRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveAssignment(ctx, &AssignmentModel{
		ID: 7, CourseID: 2, Name: "Essay", Instructions: "<p>Write</p>", MaxGrade: 30,
		Mode: "ranged_rubric", Provider: "claude", Leniency: "strict",
		CustomInstructions: "Be fair", ReferenceText: "Key", CourseTranscript: "Week 1: thesis statements",
		AutoGrade: true,
	}))

	a, err := repo.GetAssignment(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, &domain.Assignment{
		ID: 7, CourseID: 2, Name: "Essay", Instructions: "<p>Write</p>", MaxGrade: 30,
		Mode: domain.ModeRangedRubric, Provider: "claude", Leniency: domain.LeniencyStrict,
		CustomInstructions: "Be fair", ReferenceText: "Key",
	}, a)

	text, err := repo.GetContext(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Week 1: thesis statements", text)

	_, err = repo.GetAssignment(ctx, 8)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
	_, err = repo.GetContext(ctx, 8)
	assert.True(t, errors.Is(err, ports.ErrNotFound))
}
