package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sherockets/adapters/export"
	"sherockets/adapters/survey"
	"sherockets/domain/study"
	"sherockets/internal/config"
	"sherockets/internal/errors"
	"sherockets/internal/testkit"
)

func newGenerateCmd() *cobra.Command {
	var out, studyFile string
	var respondents, tasks int
	var seed int64
	var noRatings bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic wide-format survey export with known part-worths",
		Long: `Generate draws random profile pairs for each respondent and simulates logit
choices from fixed part-worths, so estimates can be checked against the truth.
The format follows the --out extension (.csv or .xlsx).

Example: conjoint generate --out survey.xlsx --respondents 300 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if respondents <= 0 || tasks <= 0 {
				return errors.InvalidInput("respondents and tasks must be > 0")
			}
			format := survey.FormatFromPath(out)
			if format == survey.FormatCSV && !strings.EqualFold(filepath.Ext(out), ".csv") {
				return errors.InvalidInput(fmt.Sprintf("unsupported output %s (use .csv or .xlsx)", out))
			}

			s := study.AITutorStudy()
			if studyFile != "" {
				loaded, err := config.LoadStudy(studyFile)
				if err != nil {
					return err
				}
				s = loaded
			}

			cfg := testkit.DefaultSurveyConfig()
			cfg.Respondents = respondents
			cfg.Tasks = tasks
			cfg.Seed = seed
			cfg.WithRatings = !noRatings
			table := testkit.NewSurveyGenerator(s, cfg).Generate()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()

			if format == survey.FormatXLSX {
				err = export.WriteTableXLSX(f, table)
			} else {
				err = testkit.WriteCSV(f, table)
			}
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Survey export created: %s\n", out)
			fmt.Fprintf(cmd.OutOrStdout(), "Respondents: %d | Tasks: %d | Columns: %d\n", len(table.Rows), tasks, len(table.Headers))
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "survey.csv", "Output file (.csv or .xlsx)")
	cmd.Flags().StringVar(&studyFile, "study", "", "Study definition YAML (default AI tutor study)")
	cmd.Flags().IntVar(&respondents, "respondents", 150, "Number of respondents")
	cmd.Flags().IntVar(&tasks, "tasks", 8, "Choice tasks per respondent")
	cmd.Flags().Int64Var(&seed, "seed", 42, "RNG seed (deterministic)")
	cmd.Flags().BoolVar(&noRatings, "no-ratings", false, "Leave the post-choice rating columns out")
	return cmd
}
