package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kcay/local-ai-grader/infrastructure/persistence"
	"github.com/kcay/local-ai-grader/infrastructure/rubricfile"
	"github.com/kcay/local-ai-grader/internal/domain"
)

var rubricCmd = &cobra.Command{
	Use:   "rubric",
	Short: "Inspect and import assignment rubrics",
}

var rubricShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a stored rubric as the AI sees it",
	Args:  cobra.NoArgs,
	RunE:  runRubricShow,
}

var rubricImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Store the assignment and rubric of a YAML grading file",
	Long: `Store the assignment settings and rubric of a YAML grading file in the
database. Discrete levels are stored as a rubric; explicit score ranges are
stored as a ranged rubric. Submissions in the file are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runRubricImport,
}

func init() {
	rubricShowCmd.Flags().Int64P("assignment", "a", 0, "assignment id (required)")
	rubricShowCmd.Flags().Bool("ranged", false, "show the ranged form")
	_ = rubricShowCmd.MarkFlagRequired("assignment")

	rubricCmd.AddCommand(rubricShowCmd, rubricImportCmd)
}

func runRubricShow(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	assignmentID, _ := cmd.Flags().GetInt64("assignment")
	ranged, _ := cmd.Flags().GetBool("ranged")

	rt := newRuntime(cfg, logger)
	defer rt.Close()
	db, err := rt.openDatabase()
	if err != nil {
		return err
	}

	repo := persistence.NewRubricRepository(db)
	var schema *domain.RubricSchema
	if ranged {
		schema, err = repo.LoadRanged(ctx, assignmentID)
	} else {
		schema, err = repo.LoadDiscrete(ctx, assignmentID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (max %.2f)\n\n%s\n", schema.Name, schema.MaxScore(), persistence.FormatForPrompt(schema))
	return nil
}

func runRubricImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := rubricfile.LoadFile(args[0])
	if err != nil {
		return err
	}
	id := store.AssignmentID()
	a, err := store.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	courseContext, err := store.GetContext(ctx, id)
	if err != nil {
		return err
	}

	rt := newRuntime(cfg, logger)
	defer rt.Close()
	db, err := rt.openDatabase()
	if err != nil {
		return err
	}

	err = persistence.NewAssignmentRepository(db).SaveAssignment(ctx, &persistence.AssignmentModel{
		ID:                 a.ID,
		Name:               a.Name,
		Instructions:       a.Instructions,
		MaxGrade:           a.MaxGrade,
		Mode:               string(a.Mode),
		Provider:           a.Provider,
		Leniency:           string(a.Leniency),
		CustomInstructions: a.CustomInstructions,
		ReferenceText:      a.ReferenceText,
		CourseTranscript:   courseContext,
		AutoGrade:          true,
	})
	if err != nil {
		return err
	}

	rubrics := persistence.NewRubricRepository(db)
	stored := 0

	discrete, err := store.LoadDiscrete(ctx, id)
	switch {
	case errors.Is(err, domain.ErrRubricNotFound):
		fmt.Fprintf(cmd.OutOrStdout(), "Imported assignment %d without a rubric.\n", id)
		return nil
	case errors.Is(err, domain.ErrEmptyRubric):
		// ranges only
	case err != nil:
		return err
	default:
		if err := rubrics.SaveRubric(ctx, discrete); err != nil {
			return err
		}
		stored++
	}

	if store.DefinesRanges() {
		ranged, err := store.LoadRanged(ctx, id)
		if err != nil {
			return err
		}
		if err := rubrics.SaveRubric(ctx, ranged); err != nil {
			return err
		}
		stored++
	}

	if stored == 0 {
		return fmt.Errorf("assignment %d: %w", id, domain.ErrEmptyRubric)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported assignment %d with %d rubric definition(s).\n", id, stored)
	return nil
}
