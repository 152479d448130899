package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/kcay/local-ai-grader/infrastructure/rubricfile"
	"github.com/kcay/local-ai-grader/internal/application"
	"github.com/kcay/local-ai-grader/internal/domain"
)

var gradeFileCmd = &cobra.Command{
	Use:   "grade-file <file.yaml>",
	Short: "Grade the submissions in a YAML file without a database",
	Long: `Grade every submission listed in a YAML grading file and print the
results as JSON. Nothing is written to the database.

Examples:
  grader grade-file essay.yaml
  GRADER_GRADING_PROVIDER=claude grader grade-file essay.yaml --concurrency 2`,
	Args: cobra.ExactArgs(1),
	RunE: runGradeFile,
}

func init() {
	gradeFileCmd.Flags().Int("concurrency", 0, "submissions graded at once (default from config)")
}

// fileResult is one line of grade-file output.
type fileResult struct {
	SubmissionID   int64                   `json:"submission_id"`
	UserID         int64                   `json:"user_id"`
	Outcome        application.Outcome     `json:"outcome"`
	CriteriaScores []domain.CriterionScore `json:"criteria_scores,omitempty"`
}

// gradeCollector keeps saved grades in memory.
type gradeCollector struct {
	mu     sync.Mutex
	grades map[int64]domain.GradeRecord
}

func (c *gradeCollector) SaveGrade(_ context.Context, rec domain.GradeRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grades[rec.SubmissionID] = rec
	return nil
}

func (c *gradeCollector) get(submissionID int64) (domain.GradeRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.grades[submissionID]
	return rec, ok
}

func runGradeFile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := rubricfile.LoadFile(args[0])
	if err != nil {
		return err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = cfg.Grading.Concurrency
	}

	rt := newRuntime(cfg, logger)
	defer rt.Close()
	if err := rt.connectEvents(ctx); err != nil {
		return err
	}

	collector := &gradeCollector{grades: make(map[int64]domain.GradeRecord)}
	orch, err := application.NewOrchestrator(rt.gradingConfig(), application.Dependencies{
		Providers:     rt.providers(rt.rateLimit()...),
		Assignments:   store,
		Rubrics:       store,
		Submissions:   store,
		CourseContext: store,
		Grades:        collector,
		Notifier:      rt.notifier,
		Metrics:       rt.metrics,
		Tracer:        otel.Tracer(serviceName),
	}, rt.logger)
	if err != nil {
		return fmt.Errorf("wire orchestrator: %w", err)
	}

	refs := store.Submissions()
	results := make([]fileResult, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			out := orch.Grade(gctx, application.GradeInput{
				SubmissionID: ref.ID,
				AssignmentID: ref.AssignmentID,
				UserID:       ref.UserID,
			})
			res := fileResult{SubmissionID: ref.ID, UserID: ref.UserID, Outcome: out}
			if rec, ok := collector.get(ref.ID); ok {
				res.CriteriaScores = rec.CriteriaScores
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if !res.Outcome.Success {
			failed++
		}
	}
	if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(results))
	}
	return nil
}
