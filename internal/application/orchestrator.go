// Package application coordinates grading attempts: it loads collaborators'
// data, drives the prompt, provider, processing and leniency steps, and
// records the outcome.
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/grading"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// Step is a state of a grading attempt.
type Step string

const (
	StepStart             Step = "start"
	StepSchemaLoaded      Step = "schema_loaded"
	StepPromptBuilt       Step = "prompt_built"
	StepAIRequested       Step = "ai_requested"
	StepResponseProcessed Step = "response_processed"
	StepLeniencyApplied   Step = "leniency_applied"
	StepPersisted         Step = "persisted"
	StepDone              Step = "done"
	StepFailed            Step = "failed"
)

// StepError records the last state an attempt reached before it failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("grading failed after %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// GradingConfig holds the global grading settings. Assignment settings take
// precedence over Provider and Leniency; a non-empty Mode overrides the
// assignment's mode.
type GradingConfig struct {
	Provider         string               `validate:"required"`
	Mode             domain.GradingMode   `validate:"omitempty,grading_mode"`
	Leniency         domain.LeniencyLevel `validate:"omitempty,leniency_level"`
	Anonymize        bool
	UseCourseContext bool
	SendOptions      domain.SendOptions
}

// Dependencies are the collaborators of an Orchestrator. CourseContext,
// Audit, Notifier and Metrics are optional.
type Dependencies struct {
	Providers     ports.ProviderSource
	Assignments   ports.AssignmentSource
	Rubrics       ports.RubricStore
	Submissions   ports.SubmissionSource
	CourseContext ports.CourseContextSource
	Grades        ports.GradeStore
	Audit         ports.AuditLogger
	Notifier      ports.Notifier
	Metrics       ports.MetricsCollector
	Tracer        trace.Tracer
}

// GradeInput identifies the submission to grade.
type GradeInput struct {
	SubmissionID int64 `validate:"gt=0"`
	AssignmentID int64 `validate:"gt=0"`
	UserID       int64 `validate:"gte=0"`
}

// Outcome is the uniform result of Grade. Grade and Feedback are only
// meaningful when Success is true.
type Outcome struct {
	Success   bool      `json:"success"`
	Grade     float64   `json:"grade"`
	Feedback  string    `json:"feedback,omitempty"`
	Error     string    `json:"error,omitempty"`
	AttemptID uuid.UUID `json:"attempt_id"`
}

// Orchestrator runs one grading attempt per Grade call. Attempts share no
// mutable state, so Grade is safe for concurrent use.
type Orchestrator struct {
	cfg       GradingConfig
	deps      Dependencies
	processor *grading.Processor
	adjuster  *grading.Adjuster
	validate  *validator.Validate
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrchestrator checks cfg and the required collaborators and returns a
// ready Orchestrator.
func NewOrchestrator(cfg GradingConfig, deps Dependencies, logger zerolog.Logger) (*Orchestrator, error) {
	v := domain.NewValidator()
	if err := domain.ValidateStruct(v, "grading config", cfg); err != nil {
		return nil, ports.NewConfigError("grading", err)
	}
	if err := checkDependencies(deps); err != nil {
		return nil, err
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("grading-orchestrator")
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		processor: grading.NewProcessor(logger),
		adjuster:  grading.NewAdjuster(logger),
		validate:  v,
		tracer:    tracer,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		now:       time.Now,
	}, nil
}

func checkDependencies(deps Dependencies) error {
	missing := map[string]bool{
		"providers":   deps.Providers == nil,
		"assignments": deps.Assignments == nil,
		"rubrics":     deps.Rubrics == nil,
		"submissions": deps.Submissions == nil,
		"grades":      deps.Grades == nil,
	}
	for _, name := range []string{"providers", "assignments", "rubrics", "submissions", "grades"} {
		if missing[name] {
			return ports.NewConfigError("dependencies."+name, errors.New("collaborator is required"))
		}
	}
	return nil
}

// attempt carries the data produced by each step of one Grade call.
type attempt struct {
	id      uuid.UUID
	input   GradeInput
	started time.Time
	step    Step

	assignment *domain.Assignment
	mode       domain.GradingMode
	leniency   domain.LeniencyLevel
	provider   ports.AIProvider
	schema     *domain.RubricSchema
	request    domain.GradingRequest
	prompt     string
	response   *domain.AIResponse
	result     *domain.GradingResult
	adjusted   *domain.AdjustedResult
}

func (a *attempt) providerName() string {
	if a.provider == nil {
		return ""
	}
	return a.provider.Name()
}

func (a *attempt) model() string {
	if a.response != nil && a.response.Model != "" {
		return a.response.Model
	}
	if a.provider == nil {
		return ""
	}
	return a.provider.Model()
}

type stepFunc func(context.Context, *attempt) error

// Grade runs a full attempt for in. It never returns an error: every
// failure is reported through Outcome with Success false, after a
// best-effort audit entry and notification.
func (o *Orchestrator) Grade(ctx context.Context, in GradeInput) Outcome {
	a := &attempt{id: uuid.New(), input: in, started: o.now(), step: StepStart}

	ctx, span := o.tracer.Start(ctx, "grading.attempt", trace.WithAttributes(
		attribute.String("grading.attempt_id", a.id.String()),
		attribute.Int64("grading.submission_id", in.SubmissionID),
		attribute.Int64("grading.assignment_id", in.AssignmentID),
	))
	defer span.End()

	log := o.logger.With().
		Str("attempt_id", a.id.String()).
		Int64("submission_id", in.SubmissionID).
		Int64("assignment_id", in.AssignmentID).
		Logger()
	log.Info().Msg("grading started")

	steps := []struct {
		next Step
		run  stepFunc
	}{
		{StepSchemaLoaded, o.prepare},
		{StepPromptBuilt, o.buildPrompt},
		{StepAIRequested, o.requestAI},
		{StepResponseProcessed, o.processResponse},
		{StepLeniencyApplied, o.applyLeniency},
		{StepPersisted, o.persist},
	}
	for _, s := range steps {
		if err := o.runStep(ctx, a, s.next, s.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return o.fail(ctx, a, err, log)
		}
	}
	a.step = StepDone

	span.SetAttributes(
		attribute.String("grading.provider", a.providerName()),
		attribute.String("grading.mode", string(a.mode)),
		attribute.Float64("grading.grade", a.adjusted.Grade),
	)
	return o.succeed(ctx, a, log)
}

// runStep executes run inside a span and advances a to next on success.
func (o *Orchestrator) runStep(ctx context.Context, a *attempt, next Step, run stepFunc) error {
	ctx, span := o.tracer.Start(ctx, "grading."+string(next))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return &StepError{Step: a.step, Err: err}
	}
	if err := run(ctx, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StepError{Step: a.step, Err: err}
	}
	a.step = next
	return nil
}

// prepare validates the input, resolves the assignment's effective
// settings and provider, and loads the rubric schema the mode needs.
func (o *Orchestrator) prepare(ctx context.Context, a *attempt) error {
	if err := ValidateGradeInput(o.validate, a.input); err != nil {
		return err
	}

	assignment, err := o.deps.Assignments.GetAssignment(ctx, a.input.AssignmentID)
	if err != nil {
		return fmt.Errorf("load assignment %d: %w", a.input.AssignmentID, err)
	}
	a.assignment = assignment
	a.mode = o.resolveMode(assignment)
	a.leniency = o.resolveLeniency(assignment)

	providerName := assignment.Provider
	if providerName == "" {
		providerName = o.cfg.Provider
	}
	if a.provider, err = o.deps.Providers.Provider(providerName); err != nil {
		return err
	}

	switch a.mode {
	case domain.ModeRubric:
		a.schema, err = o.deps.Rubrics.LoadDiscrete(ctx, assignment.ID)
	case domain.ModeRangedRubric:
		a.schema, err = o.deps.Rubrics.LoadRanged(ctx, assignment.ID)
	}
	if err != nil {
		return fmt.Errorf("load %s schema: %w", a.mode, err)
	}
	return nil
}

func (o *Orchestrator) resolveMode(asg *domain.Assignment) domain.GradingMode {
	switch {
	case o.cfg.Mode != "":
		return o.cfg.Mode
	case asg.Mode != "":
		return asg.Mode
	default:
		return domain.ModeSimple
	}
}

func (o *Orchestrator) resolveLeniency(asg *domain.Assignment) domain.LeniencyLevel {
	if asg.Leniency != "" {
		return asg.Leniency.OrDefault()
	}
	return o.cfg.Leniency.OrDefault()
}

func (o *Orchestrator) buildPrompt(ctx context.Context, a *attempt) error {
	text, err := o.deps.Submissions.GetText(ctx, a.input.SubmissionID)
	if err != nil {
		return fmt.Errorf("load submission %d: %w", a.input.SubmissionID, err)
	}
	if strings.TrimSpace(text) == "" {
		text = domain.MissingContentMarker
	}
	if o.cfg.Anonymize {
		text = grading.Anonymize(text)
	}

	var courseContext string
	if o.cfg.UseCourseContext && o.deps.CourseContext != nil {
		// Course material is optional; a lookup failure grades without it.
		courseContext, err = o.deps.CourseContext.GetContext(ctx, a.assignment.ID)
		if err != nil {
			o.logger.Warn().Err(err).Int64("assignment_id", a.assignment.ID).Msg("course context unavailable")
			courseContext = ""
		}
	}

	a.request = domain.GradingRequest{
		AssignmentName:     a.assignment.Name,
		Instructions:       a.assignment.Instructions,
		SubmissionText:     text,
		CourseContext:      courseContext,
		Mode:               a.mode,
		Schema:             a.schema,
		MaxGrade:           a.assignment.MaxGrade,
		CustomInstructions: a.assignment.CustomInstructions,
		ReferenceText:      a.assignment.ReferenceText,
	}
	if err := domain.ValidateStruct(o.validate, "grading request", a.request); err != nil {
		return err
	}

	a.prompt, err = grading.BuildPrompt(a.request)
	return err
}

func (o *Orchestrator) requestAI(ctx context.Context, a *attempt) error {
	resp, err := a.provider.Send(ctx, a.prompt, o.cfg.SendOptions)
	if err != nil {
		return err
	}
	a.response = resp
	return nil
}

func (o *Orchestrator) processResponse(_ context.Context, a *attempt) error {
	res, err := o.processor.Process(a.response.Data, a.mode, a.schema, a.assignment.MaxGrade)
	if err != nil {
		return err
	}
	a.result = res

	if n := len(res.DroppedCriteria); n > 0 {
		o.recordCounter("dropped_criteria_total", float64(n), map[string]string{"provider": a.providerName()})
	}
	return nil
}

func (o *Orchestrator) applyLeniency(_ context.Context, a *attempt) error {
	a.adjusted = o.adjuster.Adjust(a.result, a.schema, a.leniency, a.assignment.MaxGrade)
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, a *attempt) error {
	return o.deps.Grades.SaveGrade(ctx, domain.GradeRecord{
		AssignmentID:   a.assignment.ID,
		SubmissionID:   a.input.SubmissionID,
		UserID:         a.input.UserID,
		Grade:          a.adjusted.Grade,
		Feedback:       a.adjusted.FeedbackText,
		CriteriaScores: a.adjusted.CriteriaScores,
		GradedAt:       o.now(),
	})
}

func (o *Orchestrator) succeed(ctx context.Context, a *attempt, log zerolog.Logger) Outcome {
	elapsed := o.now().Sub(a.started)
	baseline, adjusted := a.result.BaselineGrade, a.adjusted.Grade

	o.record(ctx, a, domain.AuditEntry{
		RawScore:      &baseline,
		AdjustedScore: &adjusted,
		Feedback:      a.adjusted.FeedbackText,
		Status:        domain.AuditSuccess,
	}, elapsed)
	o.notify(ctx, a, domain.GradingEvent{
		Type:     domain.EventGradingCompleted,
		Grade:    adjusted,
		MaxGrade: a.assignment.MaxGrade,
		Feedback: grading.PlainText(a.adjusted.FeedbackText),
	})
	o.observe(a, "success", elapsed)

	log.Info().
		Str("provider", a.providerName()).
		Str("mode", string(a.mode)).
		Float64("baseline", baseline).
		Float64("grade", adjusted).
		Dur("duration", elapsed).
		Msg("grading finished")

	return Outcome{
		Success:   true,
		Grade:     adjusted,
		Feedback:  a.adjusted.FeedbackText,
		AttemptID: a.id,
	}
}

func (o *Orchestrator) fail(ctx context.Context, a *attempt, err error, log zerolog.Logger) Outcome {
	elapsed := o.now().Sub(a.started)
	failedAt := a.step
	a.step = StepFailed

	entry := domain.AuditEntry{Status: domain.AuditFailed, ErrorMessage: err.Error()}
	if a.result != nil {
		baseline := a.result.BaselineGrade
		entry.RawScore = &baseline
	}
	if a.adjusted != nil {
		adjusted := a.adjusted.Grade
		entry.AdjustedScore = &adjusted
		entry.Feedback = a.adjusted.FeedbackText
	}
	o.record(ctx, a, entry, elapsed)

	event := domain.GradingEvent{Type: domain.EventGradingFailed, Error: err.Error()}
	if a.assignment != nil {
		event.MaxGrade = a.assignment.MaxGrade
	}
	o.notify(ctx, a, event)
	o.observe(a, "failed", elapsed)

	log.Error().Err(err).
		Str("step", string(failedAt)).
		Str("provider", a.providerName()).
		Str("mode", string(a.mode)).
		Dur("duration", elapsed).
		Msg("grading failed")

	return Outcome{Success: false, Error: err.Error(), AttemptID: a.id}
}

// record writes the audit entry for a. Audit failures are logged and never
// replace the attempt's own result.
func (o *Orchestrator) record(ctx context.Context, a *attempt, entry domain.AuditEntry, elapsed time.Duration) {
	if o.deps.Audit == nil {
		return
	}
	entry.AttemptID = a.id
	entry.AssignmentID = a.input.AssignmentID
	entry.SubmissionID = a.input.SubmissionID
	entry.UserID = a.input.UserID
	entry.Provider = a.providerName()
	entry.Model = a.model()
	entry.Mode = a.mode
	entry.Leniency = a.leniency
	entry.ProcessingTime = elapsed
	entry.CreatedAt = o.now()
	if a.response != nil {
		entry.RawPayload = a.response.Raw
	}

	if err := o.deps.Audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.Warn().Err(err).Str("attempt_id", a.id.String()).Msg("failed to record audit entry")
	}
}

func (o *Orchestrator) notify(ctx context.Context, a *attempt, event domain.GradingEvent) {
	if o.deps.Notifier == nil {
		return
	}
	event.AttemptID = a.id
	event.AssignmentID = a.input.AssignmentID
	event.SubmissionID = a.input.SubmissionID
	event.UserID = a.input.UserID
	event.OccurredAt = o.now()

	if err := o.deps.Notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish grading event")
	}
}

func (o *Orchestrator) observe(a *attempt, status string, elapsed time.Duration) {
	if o.deps.Metrics == nil {
		return
	}
	provider := a.providerName()
	o.deps.Metrics.RecordCounter("grading_attempts_total", 1, map[string]string{
		"mode":     string(a.mode),
		"provider": provider,
		"status":   status,
	})
	o.deps.Metrics.RecordLatency("grade", elapsed, map[string]string{"provider": provider})
	if status == "success" && a.assignment.MaxGrade > 0 {
		o.deps.Metrics.RecordHistogram("grade_ratio", a.adjusted.Grade/a.assignment.MaxGrade,
			map[string]string{"mode": string(a.mode)})
	}
}

func (o *Orchestrator) recordCounter(metric string, value float64, labels map[string]string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordCounter(metric, value, labels)
	}
}
