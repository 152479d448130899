package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kcay/local-ai-grader/infrastructure/persistence"
	"github.com/kcay/local-ai-grader/internal/application"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Grade recently modified ungraded submissions",
	Long: `Grade the ungraded submissions modified within the window. With
--every the run repeats until interrupted.

When a Redis URL is configured, runners on different hosts claim
submissions through Redis so none is graded twice.

Examples:
  grader batch
  grader batch --window 6h --every 10m`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().Duration("window", 24*time.Hour, "only grade submissions modified within this window")
	batchCmd.Flags().Duration("every", 0, "repeat the run at this interval")
	batchCmd.Flags().Int("limit", 0, "maximum submissions per run (default from config)")
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	window, _ := cmd.Flags().GetDuration("window")
	every, _ := cmd.Flags().GetDuration("every")
	limit, _ := cmd.Flags().GetInt("limit")

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	orch, err := rt.databaseOrchestrator(ctx, rt.rateLimit()...)
	if err != nil {
		return err
	}
	locks, err := rt.claimStore(ctx)
	if err != nil {
		return err
	}

	bc := application.BatchConfig{
		BatchSize:         cfg.Grading.BatchSize,
		Concurrency:       cfg.Grading.Concurrency,
		RequestsPerSecond: cfg.Grading.RequestsPerSecond,
		Window:            window,
		ClaimTTL:          application.DefaultBatchConfig().ClaimTTL,
	}
	if limit > 0 {
		bc.BatchSize = limit
	}
	runner, err := application.NewBatchRunner(orch, persistence.NewSubmissionRepository(rt.db), locks, rt.metrics, bc, rt.logger)
	if err != nil {
		return err
	}

	for {
		report, err := runner.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
			return werr
		}
		if every <= 0 || ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(every):
		}
	}
}
