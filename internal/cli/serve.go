package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kcay/local-ai-grader/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the grading HTTP API",
	Long: `Start an HTTP server exposing the grading endpoint, a health check and
Prometheus metrics.

Endpoints:
  POST /v1/assignments/{assignmentID}/submissions/{submissionID}/grade
  GET  /healthz
  GET  /metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.HTTPAddr
	}

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	orch, err := rt.databaseOrchestrator(ctx, rt.rateLimit()...)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Options{
		Grader:  orch,
		Metrics: rt.metrics.Handler(),
		Health:  rt.pingDatabase,
		Logger:  rt.logger,
	})
	srv := api.NewServer(addr, router)

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info().Str("addr", addr).Msg("grading API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (r *runtime) pingDatabase(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database not connected")
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
