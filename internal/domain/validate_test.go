package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStruct_GradingRequest(t *testing.T) {
	v := NewValidator()
	schema := &RubricSchema{Criteria: []Criterion{{ID: 1, Levels: []Level{{ID: 1, Score: 5}}}}}

	tests := []struct {
		name    string
		req     GradingRequest
		wantErr string
	}{
		{
			name: "simple without schema",
			req:  GradingRequest{SubmissionText: "x", Mode: ModeSimple, MaxGrade: 10},
		},
		{
			name: "rubric with schema",
			req:  GradingRequest{SubmissionText: "x", Mode: ModeRubric, Schema: schema, MaxGrade: 10},
		},
		{
			name:    "rubric without schema",
			req:     GradingRequest{SubmissionText: "x", Mode: ModeRangedRubric, MaxGrade: 10},
			wantErr: "GradingRequest.Schema",
		},
		{
			name:    "unknown mode",
			req:     GradingRequest{SubmissionText: "x", Mode: "guide", MaxGrade: 10},
			wantErr: `"grading_mode"`,
		},
		{
			name:    "zero max grade",
			req:     GradingRequest{SubmissionText: "x", Mode: ModeSimple},
			wantErr: "GradingRequest.MaxGrade",
		},
		{
			name: "empty submission",
			req:  GradingRequest{Mode: ModeSimple, MaxGrade: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(v, "grading request", tt.req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "grading request", verr.Entity)
			assert.Contains(t, verr.Error(), tt.wantErr)
		})
	}
}

func TestValidateStruct_LeniencyTag(t *testing.T) {
	type settings struct {
		Leniency LeniencyLevel `validate:"omitempty,leniency_level"`
	}
	v := NewValidator()

	assert.NoError(t, ValidateStruct(v, "settings", settings{}))
	assert.NoError(t, ValidateStruct(v, "settings", settings{Leniency: LeniencyVeryStrict}))
	assert.Error(t, ValidateStruct(v, "settings", settings{Leniency: "harsh"}))
}
