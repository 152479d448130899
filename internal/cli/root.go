// Package cli implements the grader command line.
package cli

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kcay/local-ai-grader/internal/config"
)

var (
	cfgFile  string
	logLevel string

	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "grader",
	Short: "Grade student submissions with AI providers",
	Long: `grader sends student submissions to an AI provider together with the
assignment instructions and rubric, turns the reply into a grade and
feedback, and stores the result.

Settings come from GRADER_* environment variables, an optional .env file
and an optional YAML config file.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(gradeCmd, gradeFileCmd, batchCmd, serveCmd, cleanupCmd, rubricCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	boot := newLogger(cmd.ErrOrStderr(), zerolog.InfoLevel)

	loaded, err := config.Load(cfgFile, boot)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}

	cfg = loaded
	logger = newLogger(cmd.ErrOrStderr(), cfg.Level()).With().Str("env", cfg.AppEnv).Logger()
	return nil
}

// newLogger writes human-readable output to terminals and JSON otherwise.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
		}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
