package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kcay/local-ai-grader/infrastructure/persistence"
	"github.com/kcay/local-ai-grader/internal/application"
)

var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "Grade one stored submission",
	Long: `Grade a submission stored in the database and save the result.

The assignment and user are looked up from the submission unless given.

Examples:
  grader grade --submission 42
  grader grade --submission 42 --assignment 7 --user 3`,
	Args: cobra.NoArgs,
	RunE: runGrade,
}

func init() {
	gradeCmd.Flags().Int64P("submission", "s", 0, "submission id (required)")
	gradeCmd.Flags().Int64P("assignment", "a", 0, "assignment id")
	gradeCmd.Flags().Int64P("user", "u", 0, "user id")
	_ = gradeCmd.MarkFlagRequired("submission")
}

func runGrade(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	submissionID, _ := cmd.Flags().GetInt64("submission")
	assignmentID, _ := cmd.Flags().GetInt64("assignment")
	userID, _ := cmd.Flags().GetInt64("user")

	rt := newRuntime(cfg, logger)
	defer rt.Close()

	orch, err := rt.databaseOrchestrator(ctx)
	if err != nil {
		return err
	}

	if assignmentID == 0 {
		ref, err := persistence.NewSubmissionRepository(rt.db).GetRef(ctx, submissionID)
		if err != nil {
			return err
		}
		assignmentID = ref.AssignmentID
		if userID == 0 {
			userID = ref.UserID
		}
	}

	out := orch.Grade(ctx, application.GradeInput{
		SubmissionID: submissionID,
		AssignmentID: assignmentID,
		UserID:       userID,
	})
	if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !out.Success {
		return errors.New(out.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
