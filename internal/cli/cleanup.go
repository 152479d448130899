package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kcay/local-ai-grader/infrastructure/persistence"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audit log entries past the retention period",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "retention in days (default from config)")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	retention := cfg.LogRetention()
	if days, _ := cmd.Flags().GetInt("days"); days > 0 {
		retention = time.Duration(days) * 24 * time.Hour
	}

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	db, err := rt.openDatabase()
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-retention)
	removed, err := persistence.NewAuditRepository(db).Cleanup(cmd.Context(), cutoff)
	if err != nil {
		return err
	}
	rt.logger.Info().Int64("removed", removed).Time("before", cutoff).Msg("audit log cleaned")
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d audit entries older than %s.\n", removed, cutoff.Format(time.RFC3339))
	return nil
}
