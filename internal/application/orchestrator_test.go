package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
	"github.com/kcay/local-ai-grader/internal/testutils"
)

type fixture struct {
	store    *testutils.MemoryStore
	provider *testutils.MockProvider
	audit    *testutils.AuditRecorder
	events   *testutils.EventRecorder
	metrics  *testutils.MetricsRecorder
	orch     *Orchestrator
}

func newFixture(t *testing.T, cfg GradingConfig) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutils.NewMemoryStore(),
		provider: testutils.NewMockProvider("openai", "gpt-4o"),
		audit:    &testutils.AuditRecorder{},
		events:   &testutils.EventRecorder{},
		metrics:  &testutils.MetricsRecorder{},
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	f.store.Assignments[1] = &domain.Assignment{ID: 1, CourseID: 3, Name: "Essay", Instructions: "<p>Write an essay</p>", MaxGrade: 20}
	f.store.Assignments[2] = &domain.Assignment{ID: 2, CourseID: 3, Name: "Report", MaxGrade: 30, Mode: domain.ModeRangedRubric, Leniency: domain.LeniencyStrict}
	f.store.Discrete[2] = &domain.RubricSchema{
		AssignmentID: 2,
		Kind:         domain.KindDiscrete,
		Criteria: []domain.Criterion{
			{ID: 801, Description: "Argument", SortOrder: 1, Kind: domain.KindDiscrete, Levels: []domain.Level{
				{ID: 1, Definition: "Excellent", Score: 20}, {ID: 2, Definition: "Good", Score: 15},
				{ID: 3, Definition: "Fair", Score: 10}, {ID: 4, Definition: "None", Score: 0},
			}},
			{ID: 802, Description: "Mechanics", SortOrder: 2, Kind: domain.KindDiscrete, Levels: []domain.Level{
				{ID: 5, Definition: "Clean", Score: 10}, {ID: 6, Definition: "Some errors", Score: 5},
				{ID: 7, Definition: "Many errors", Score: 0},
			}},
		},
	}
	f.store.Texts[100] = "The industrial revolution changed labour markets."
	f.store.Texts[200] = "A report on renewable energy adoption."

	orch, err := NewOrchestrator(cfg, Dependencies{
		Providers:     testutils.ProviderMap{"openai": f.provider},
		Assignments:   f.store,
		Rubrics:       f.store,
		Submissions:   f.store,
		CourseContext: f.store,
		Grades:        f.store,
		Audit:         f.audit,
		Notifier:      f.events,
		Metrics:       f.metrics,
	}, zerolog.Nop())
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestOrchestrator_SimpleSuccess(t *testing.T) {
	f := newFixture(t, GradingConfig{Leniency: domain.LeniencyVeryLenient})

	out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 100, AssignmentID: 1, UserID: 9})

	require.True(t, out.Success, out.Error)
	assert.InDelta(t, 17.6, out.Grade, 1e-9)
	assert.Contains(t, out.Feedback, "Clear and well organised.")
	assert.Empty(t, out.Error)

	rec, ok := f.store.Grade(100)
	require.True(t, ok)
	assert.InDelta(t, 17.6, rec.Grade, 1e-9)
	assert.Equal(t, int64(9), rec.UserID)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, domain.AuditSuccess, e.Status)
	assert.Equal(t, out.AttemptID, e.AttemptID)
	require.NotNil(t, e.RawScore)
	require.NotNil(t, e.AdjustedScore)
	assert.Equal(t, 16.0, *e.RawScore)
	assert.InDelta(t, 17.6, *e.AdjustedScore, 1e-9)
	assert.Equal(t, "openai", e.Provider)
	assert.Equal(t, "gpt-4o", e.Model)
	assert.Equal(t, domain.ModeSimple, e.Mode)
	assert.Equal(t, domain.LeniencyVeryLenient, e.Leniency)
	assert.Contains(t, e.RawPayload, `"score": 16`)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventGradingCompleted, events[0].Type)
	assert.Equal(t, 20.0, events[0].MaxGrade)
	assert.NotContains(t, events[0].Feedback, "<br")

	calls := f.metrics.Calls("grading_attempts_total")
	require.Len(t, calls, 1)
	assert.Equal(t, "success", calls[0].Labels["status"])
	assert.Equal(t, "simple", calls[0].Labels["mode"])
	require.Len(t, f.metrics.Calls("grade_ratio"), 1)
}

func TestOrchestrator_PromptContent(t *testing.T) {
	f := newFixture(t, GradingConfig{UseCourseContext: true, Anonymize: true})
	f.store.Texts[100] = "Student Name: Ada Lovelace\nMy essay about engines."
	f.store.Contexts[1] = "Week 3 covered steam engines."

	out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 100, AssignmentID: 1})
	require.True(t, out.Success, out.Error)

	prompts := f.provider.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Week 3 covered steam engines.")
	assert.Contains(t, prompts[0], "[REDACTED]")
	assert.NotContains(t, prompts[0], "Ada Lovelace")
	assert.Contains(t, prompts[0], "Assignment Instructions: Write an essay")
}

func TestOrchestrator_BlankSubmissionIsGraded(t *testing.T) {
	for _, text := range []string{"", "  \n\t"} {
		f := newFixture(t, GradingConfig{})
		f.store.Texts[300] = text

		out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 300, AssignmentID: 1})

		require.True(t, out.Success, out.Error)
		prompts := f.provider.Prompts()
		require.Len(t, prompts, 1)
		assert.Contains(t, prompts[0], "Submission Type: No Submission")
		assert.Contains(t, prompts[0], "The student appears to have not submitted any readable content.")
	}
}

func TestOutcome_ZeroGradeIsSerialised(t *testing.T) {
	raw, err := json.Marshal(Outcome{Success: true, Grade: 0})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"grade":0`)
}

func TestOrchestrator_CourseContextDisabledOrFailing(t *testing.T) {
	f := newFixture(t, GradingConfig{UseCourseContext: false})
	f.store.Contexts[1] = "Syllabus text"

	require.True(t, f.orch.Grade(context.Background(), GradeInput{SubmissionID: 100, AssignmentID: 1}).Success)
	assert.NotContains(t, f.provider.Prompts()[0], "Syllabus text")

	g := newFixture(t, GradingConfig{UseCourseContext: true})
	g.store.FailContext = errors.New("transcript unavailable")
	out := g.orch.Grade(context.Background(), GradeInput{SubmissionID: 100, AssignmentID: 1})
	assert.True(t, out.Success, "course context is optional")
}

func TestOrchestrator_RangedEndToEnd(t *testing.T) {
	f := newFixture(t, GradingConfig{})

	out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 200, AssignmentID: 2, UserID: 4})

	require.True(t, out.Success, out.Error)
	assert.Equal(t, 25.0, out.Grade)

	rec, ok := f.store.Grade(200)
	require.True(t, ok)
	require.Len(t, rec.CriteriaScores, 2)
	assert.Equal(t, int64(801), rec.CriteriaScores[0].CriterionID)
	assert.Equal(t, 17.0, rec.CriteriaScores[0].Score)
	assert.Equal(t, int64(802), rec.CriteriaScores[1].CriterionID)
	assert.Equal(t, 8.0, rec.CriteriaScores[1].Score)
	assert.Contains(t, rec.Feedback, "Good work")

	e := f.audit.Entries()[0]
	assert.Equal(t, 26.0, *e.RawScore)
	assert.Equal(t, 25.0, *e.AdjustedScore)
	assert.Equal(t, domain.LeniencyStrict, e.Leniency)
	assert.Equal(t, domain.ModeRangedRubric, e.Mode)

	assert.Contains(t, f.provider.Prompts()[0], "Score Range: 0 to 20 points")
}

func TestOrchestrator_DroppedCriteriaMetric(t *testing.T) {
	f := newFixture(t, GradingConfig{})
	f.provider.SetResponse(`{"criteria_scores": [
		{"criterion_id": 801, "score": 12, "feedback": "ok"},
		{"criterion_id": 999, "score": 5, "feedback": "stray"}
	], "overall_feedback": "Fine"}`)

	out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 200, AssignmentID: 2})

	require.True(t, out.Success, out.Error)
	assert.Equal(t, 1.0, f.metrics.Sum("dropped_criteria_total"))
	rec, _ := f.store.Grade(200)
	assert.Len(t, rec.CriteriaScores, 1)
}

func TestOrchestrator_ModeOverride(t *testing.T) {
	f := newFixture(t, GradingConfig{Mode: domain.ModeSimple})

	out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 200, AssignmentID: 2})

	require.True(t, out.Success, out.Error)
	assert.NotContains(t, f.provider.Prompts()[0], "Score Range")
	assert.Equal(t, domain.ModeSimple, f.audit.Entries()[0].Mode)
}

func TestOrchestrator_Failures(t *testing.T) {
	tests := []struct {
		name     string
		input    GradeInput
		setup    func(f *fixture)
		wantStep Step
		wantErr  string
		scored   bool
	}{
		{
			name:     "invalid input",
			input:    GradeInput{SubmissionID: 0, AssignmentID: 1},
			wantStep: StepStart,
			wantErr:  "SubmissionID",
		},
		{
			name:     "unknown assignment",
			input:    GradeInput{SubmissionID: 100, AssignmentID: 77},
			wantStep: StepStart,
			wantErr:  "not found",
		},
		{
			name:  "missing rubric",
			input: GradeInput{SubmissionID: 100, AssignmentID: 1},
			setup: func(f *fixture) {
				f.store.Assignments[1].Mode = domain.ModeRubric
			},
			wantStep: StepStart,
			wantErr:  domain.ErrRubricNotFound.Error(),
		},
		{
			name:  "unregistered provider",
			input: GradeInput{SubmissionID: 100, AssignmentID: 1},
			setup: func(f *fixture) {
				f.store.Assignments[1].Provider = "gemini"
			},
			wantStep: StepStart,
			wantErr:  "provider not registered",
		},
		{
			name:  "provider error",
			input: GradeInput{SubmissionID: 100, AssignmentID: 1},
			setup: func(f *fixture) {
				f.provider.SetError(fmt.Errorf("server error (503): %w", domain.ErrTransientNetwork))
			},
			wantStep: StepPromptBuilt,
			wantErr:  "server error (503)",
		},
		{
			name:  "malformed payload",
			input: GradeInput{SubmissionID: 100, AssignmentID: 1},
			setup: func(f *fixture) {
				f.provider.SetResponse("I cannot grade this.")
			},
			wantStep: StepAIRequested,
			wantErr:  "score",
		},
		{
			name:  "persistence error",
			input: GradeInput{SubmissionID: 100, AssignmentID: 1},
			setup: func(f *fixture) {
				f.store.FailSave = errors.New("disk full")
			},
			wantStep: StepLeniencyApplied,
			wantErr:  "disk full",
			scored:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, GradingConfig{})
			if tt.setup != nil {
				tt.setup(f)
			}

			out := f.orch.Grade(context.Background(), tt.input)

			assert.False(t, out.Success)
			assert.Zero(t, out.Grade)
			assert.Empty(t, out.Feedback)
			assert.Contains(t, out.Error, "grading failed after "+string(tt.wantStep))
			assert.Contains(t, out.Error, tt.wantErr)

			_, stored := f.store.Grade(tt.input.SubmissionID)
			assert.False(t, stored)

			entries := f.audit.Entries()
			require.Len(t, entries, 1, "failed attempts are audited")
			assert.Equal(t, domain.AuditFailed, entries[0].Status)
			assert.Equal(t, out.Error, entries[0].ErrorMessage)
			assert.Equal(t, tt.scored, entries[0].RawScore != nil)
			assert.Equal(t, tt.scored, entries[0].AdjustedScore != nil)

			events := f.events.Events()
			require.Len(t, events, 1)
			assert.Equal(t, domain.EventGradingFailed, events[0].Type)
			assert.Equal(t, out.Error, events[0].Error)

			calls := f.metrics.Calls("grading_attempts_total")
			require.Len(t, calls, 1)
			assert.Equal(t, "failed", calls[0].Labels["status"])
		})
	}
}

func TestOrchestrator_PersistenceErrorKeepsTaxonomy(t *testing.T) {
	f := newFixture(t, GradingConfig{})
	f.store.FailSave = errors.New("connection reset")

	a := &attempt{input: GradeInput{SubmissionID: 100, AssignmentID: 1}, step: StepStart}
	ctx := context.Background()
	require.NoError(t, f.orch.runStep(ctx, a, StepSchemaLoaded, f.orch.prepare))
	require.NoError(t, f.orch.runStep(ctx, a, StepPromptBuilt, f.orch.buildPrompt))
	require.NoError(t, f.orch.runStep(ctx, a, StepAIRequested, f.orch.requestAI))
	require.NoError(t, f.orch.runStep(ctx, a, StepResponseProcessed, f.orch.processResponse))
	require.NoError(t, f.orch.runStep(ctx, a, StepLeniencyApplied, f.orch.applyLeniency))

	err := f.orch.runStep(ctx, a, StepPersisted, f.orch.persist)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepLeniencyApplied, se.Step)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	var storeErr *ports.StoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestOrchestrator_AuditAndNotifyFailuresDoNotMask(t *testing.T) {
	f := newFixture(t, GradingConfig{})
	f.audit.Err = errors.New("audit table locked")
	f.events.Err = errors.New("nats down")

	out := f.orch.Grade(context.Background(), GradeInput{SubmissionID: 100, AssignmentID: 1})

	assert.True(t, out.Success)
	assert.Len(t, f.audit.Entries(), 1)
	assert.Len(t, f.events.Events(), 1)

	f.provider.SetError(domain.ErrClientError)
	out = f.orch.Grade(context.Background(), GradeInput{SubmissionID: 100, AssignmentID: 1})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, domain.ErrClientError.Error())
	assert.NotContains(t, out.Error, "audit table locked")
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	f := newFixture(t, GradingConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.orch.Grade(ctx, GradeInput{SubmissionID: 100, AssignmentID: 1})

	assert.False(t, out.Success)
	assert.Contains(t, out.Error, context.Canceled.Error())
	assert.Empty(t, f.provider.Prompts())
	assert.Len(t, f.audit.Entries(), 1, "audit runs detached from the cancelled context")
}

func TestOrchestrator_OptionalCollaborators(t *testing.T) {
	store := testutils.NewMemoryStore()
	store.Assignments[1] = &domain.Assignment{ID: 1, Name: "Quiz", MaxGrade: 10}
	store.Texts[5] = "answer"

	orch, err := NewOrchestrator(GradingConfig{Provider: "openai"}, Dependencies{
		Providers:   testutils.ProviderMap{"openai": testutils.NewMockProvider("openai", "m")},
		Assignments: store,
		Rubrics:     store,
		Submissions: store,
		Grades:      store,
	}, zerolog.Nop())
	require.NoError(t, err)

	out := orch.Grade(context.Background(), GradeInput{SubmissionID: 5, AssignmentID: 1})
	require.True(t, out.Success, out.Error)
	assert.Equal(t, 10.0, out.Grade, "score 16 is clamped to the maximum of 10")
}

func TestNewOrchestrator_Validation(t *testing.T) {
	store := testutils.NewMemoryStore()
	full := Dependencies{
		Providers:   testutils.ProviderMap{},
		Assignments: store,
		Rubrics:     store,
		Submissions: store,
		Grades:      store,
	}

	tests := []struct {
		name string
		cfg  GradingConfig
		deps Dependencies
	}{
		{name: "missing provider", cfg: GradingConfig{}, deps: full},
		{name: "unknown mode", cfg: GradingConfig{Provider: "openai", Mode: "holistic"}, deps: full},
		{name: "unknown leniency", cfg: GradingConfig{Provider: "openai", Leniency: "generous"}, deps: full},
		{name: "missing grade store", cfg: GradingConfig{Provider: "openai"}, deps: Dependencies{
			Providers: full.Providers, Assignments: store, Rubrics: store, Submissions: store,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(tt.cfg, tt.deps, zerolog.Nop())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		})
	}
}
