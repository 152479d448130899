package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kcay/local-ai-grader/internal/domain"
	"github.com/kcay/local-ai-grader/internal/ports"
)

// Grader grades a single submission. *Orchestrator implements it.
type Grader interface {
	Grade(ctx context.Context, in GradeInput) Outcome
}

// BatchConfig controls one batch run.
type BatchConfig struct {
	// BatchSize caps how many ungraded submissions are fetched per run.
	BatchSize int `validate:"gt=0"`
	// Concurrency is the number of attempts in flight at once.
	Concurrency int `validate:"gt=0"`
	// RequestsPerSecond paces provider calls across workers. Zero disables
	// pacing.
	RequestsPerSecond float64 `validate:"gte=0"`
	// Window limits the run to submissions modified within it.
	Window time.Duration `validate:"gt=0"`
	// ClaimTTL bounds how long a crashed runner can hold a submission.
	ClaimTTL time.Duration `validate:"gt=0"`
}

// DefaultBatchConfig returns the settings used by the scheduled task.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:         50,
		Concurrency:       4,
		RequestsPerSecond: 2,
		Window:            24 * time.Hour,
		ClaimTTL:          15 * time.Minute,
	}
}

// BatchReport counts the attempts of one run.
type BatchReport struct {
	Listed    int
	Succeeded int
	Failed    int
	Skipped   int
}

// BatchRunner grades recently modified ungraded submissions in parallel.
type BatchRunner struct {
	grader  Grader
	lister  ports.SubmissionLister
	claims  ports.ClaimStore
	metrics ports.MetricsCollector
	limiter *rate.Limiter
	cfg     BatchConfig
	logger  zerolog.Logger
	now     func() time.Time
}

// NewBatchRunner validates cfg and wires the runner. claims and metrics may
// be nil; without claims every listed submission is attempted.
func NewBatchRunner(
	grader Grader,
	lister ports.SubmissionLister,
	claims ports.ClaimStore,
	metrics ports.MetricsCollector,
	cfg BatchConfig,
	logger zerolog.Logger,
) (*BatchRunner, error) {
	if err := ValidateBatchConfig(domain.NewValidator(), cfg); err != nil {
		return nil, ports.NewConfigError("grading.batch", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &BatchRunner{
		grader:  grader,
		lister:  lister,
		claims:  claims,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		logger:  logger.With().Str("component", "batch_runner").Logger(),
		now:     time.Now,
	}, nil
}

// Run lists one page of ungraded submissions and grades them. It returns
// early with the partial report when ctx is cancelled.
func (r *BatchRunner) Run(ctx context.Context) (BatchReport, error) {
	since := r.now().Add(-r.cfg.Window)
	refs, err := r.lister.ListUngraded(ctx, since, r.cfg.BatchSize)
	if err != nil {
		return BatchReport{}, fmt.Errorf("list ungraded submissions: %w", err)
	}
	r.gauge("batch_pending", float64(len(refs)))
	if len(refs) == 0 {
		r.logger.Debug().Time("since", since).Msg("no ungraded submissions")
		return BatchReport{}, nil
	}

	var succeeded, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, ref := range refs {
		g.Go(func() error {
			ok, release := r.claim(gctx, ref)
			if !ok {
				skipped.Add(1)
				return nil
			}
			defer release()

			if err := r.limiter.Wait(gctx); err != nil {
				return err
			}

			out := r.grader.Grade(gctx, GradeInput{
				SubmissionID: ref.ID,
				AssignmentID: ref.AssignmentID,
				UserID:       ref.UserID,
			})
			if out.Success {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	report := BatchReport{
		Listed:    len(refs),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	r.gauge("batch_pending", 0)
	r.logger.Info().
		Int("listed", report.Listed).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("batch finished")
	return report, err
}

// claim takes the submission's claim. A submission whose claim is held, or
// whose claim cannot be checked, is skipped.
func (r *BatchRunner) claim(ctx context.Context, ref domain.SubmissionRef) (bool, func()) {
	if r.claims == nil {
		return true, func() {}
	}

	key := fmt.Sprintf("submission:%d", ref.ID)
	ok, err := r.claims.Claim(ctx, key, r.cfg.ClaimTTL)
	if err != nil {
		r.logger.Warn().Err(err).Int64("submission_id", ref.ID).Msg("claim check failed, skipping")
		return false, nil
	}
	if !ok {
		r.logger.Debug().Int64("submission_id", ref.ID).Msg("submission claimed elsewhere")
		return false, nil
	}
	return true, func() {
		if err := r.claims.Release(context.WithoutCancel(ctx), key); err != nil {
			r.logger.Warn().Err(err).Int64("submission_id", ref.ID).Msg("failed to release claim")
		}
	}
}

func (r *BatchRunner) gauge(metric string, value float64) {
	if r.metrics != nil {
		r.metrics.RecordGauge(metric, value, nil)
	}
}
