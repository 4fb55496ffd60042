package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"sherockets/adapters/export"
	"sherockets/adapters/store"
	"sherockets/app"
	"sherockets/domain/choice"
	"sherockets/domain/core"
	"sherockets/domain/run"
	"sherockets/internal/analysis"
	"sherockets/internal/api"
	"sherockets/internal/config"
	"sherockets/internal/errors"
)

type estimateFlags struct {
	scheme     string
	method     string
	iterations int
	seed       int64
	workers    int
}

func (f *estimateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.scheme, "coding", "", "Coding scheme: dummy|effects|difference (default from config)")
	cmd.Flags().StringVar(&f.method, "method", "", "Significance method: wald|bootstrap|permutation (default from config)")
	cmd.Flags().IntVar(&f.iterations, "iterations", 0, "Bootstrap or permutation replicates (default from config)")
	cmd.Flags().Int64Var(&f.seed, "seed", 42, "Random seed for resampling")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent refits (default GOMAXPROCS)")
}

func (f *estimateFlags) overrides(cmd *cobra.Command) app.Overrides {
	o := app.Overrides{Scheme: f.scheme, Method: f.method, Iterations: f.iterations, Workers: f.workers}
	if cmd.Flags().Changed("seed") {
		seed := f.seed
		o.Seed = &seed
	}
	return o
}

func newEstimateCmd(opts *globalOptions) *cobra.Command {
	var flags estimateFlags
	var out string
	var asJSON, noStore, quiet bool

	cmd := &cobra.Command{
		Use:   "estimate [survey]",
		Short: "Fit the conditional logit and report per-level effects",
		Long: `Estimate builds choice sets from the survey export (CSV or XLSX), fits the
conditional logit and prints one row per attribute level.

Example: conjoint estimate survey.xlsx --coding effects --method bootstrap --iterations 2000 --out effects.xlsx`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			table, err := s.service.LoadSurvey(ctx, surveyArg(args))
			if err != nil {
				return err
			}
			req := app.EstimateRequest{
				Table:     table,
				Overrides: flags.overrides(cmd),
				Persist:   !noStore && s.service.Persistent(),
			}
			if !quiet && !asJSON {
				req.Progress = newReplicateBar()
			}
			res, err := s.service.Estimate(ctx, req)
			if err != nil {
				return err
			}

			if out != "" {
				if err := export.WriteFile(out, res.Report.Estimates, res.Report); err != nil {
					return err
				}
				s.logger.Info("wrote %d estimates to %s", len(res.Report.Estimates), out)
			}
			if asJSON {
				return export.WriteJSON(cmd.OutOrStdout(), res)
			}
			printReport(cmd.OutOrStdout(), res.Report)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Also write estimates to a .csv, .json or .xlsx file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not store the run even when a database is configured")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the resampling progress bar")
	return cmd
}

// newReplicateBar returns a progress callback that draws a bar on first use.
// Replicates finish on several goroutines, so creation is guarded.
func newReplicateBar() func(done, total int) {
	var once sync.Once
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		once.Do(func() {
			bar = progressbar.NewOptions64(
				int64(total),
				progressbar.OptionSetDescription("replicates"),
				progressbar.OptionShowDescriptionAtLineEnd(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprint(os.Stderr, "\n")
				}),
				progressbar.OptionSetWriter(os.Stderr),
			)
		})
		bar.Add(1)
	}
}

func newSharesCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "shares [survey]",
		Short: "Descriptive choice shares per level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, sets, err := loadSets(cmd, opts, args)
			if err != nil {
				return err
			}
			defer s.Close()

			shares := analysis.ChoiceShares(s.service.Study(), sets)
			if asJSON {
				return export.WriteJSON(cmd.OutOrStdout(), shares)
			}
			printShares(cmd.OutOrStdout(), shares, len(sets))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newImportanceCmd(opts *globalOptions) *cobra.Command {
	var flags estimateFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "importance [survey]",
		Short: "Part-worths and relative attribute importance",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			table, err := s.service.LoadSurvey(ctx, surveyArg(args))
			if err != nil {
				return err
			}
			res, err := s.service.Estimate(ctx, app.EstimateRequest{Table: table, Overrides: flags.overrides(cmd)})
			if err != nil {
				return err
			}
			worths := analysis.PartWorths(s.service.Study(), res.Report)
			importance := analysis.AttributeImportance(s.service.Study(), res.Report)
			if asJSON {
				return export.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{"part_worths": worths, "importance": importance})
			}
			printImportance(cmd.OutOrStdout(), s.service.Study(), worths, importance)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newRatingsCmd(opts *globalOptions) *cobra.Command {
	var kind string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ratings [survey]",
		Short: "Post-choice rating means per level with Welch contrasts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := choice.RatingKind(kind)
			if k != choice.RatingPerceivedLearning && k != choice.RatingExpectedEnjoyment {
				return errors.InvalidInput(fmt.Sprintf("unknown rating kind %q", kind))
			}
			s, sets, err := loadSets(cmd, opts, args)
			if err != nil {
				return err
			}
			defer s.Close()

			report := analysis.AnalyzeRatings(s.service.Study(), sets, k)
			if asJSON {
				return export.WriteJSON(cmd.OutOrStdout(), report)
			}
			printRatings(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(choice.RatingPerceivedLearning), "perceived_learning|expected_enjoyment")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newSubgroupsCmd(opts *globalOptions) *cobra.Command {
	var flags estimateFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "subgroups [survey]",
		Short: "Refit the model within each value of the group column",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			table, err := s.service.LoadSurvey(ctx, surveyArg(args))
			if err != nil {
				return err
			}
			results, err := s.service.Subgroups(ctx, table, flags.overrides(cmd))
			if err != nil {
				return err
			}
			if asJSON {
				return export.WriteJSON(cmd.OutOrStdout(), results)
			}
			printSubgroups(cmd.OutOrStdout(), results)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newSimulateCmd(opts *globalOptions) *cobra.Command {
	var flags estimateFlags
	var profiles []string
	cmd := &cobra.Command{
		Use:   "simulate [survey]",
		Short: "Logit shares of preference for hypothetical profiles",
		Long: `Simulate fits the model, then splits preference among the given profiles.
Each --profile is name=level,level,... listing one level code per attribute;
attributes left out sit at their reference level.

Example: conjoint simulate survey.csv --profile basic=pricing_4_99 --profile premium=school_pays,female_tutor`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(profiles) < 2 {
				return errors.InvalidInput("simulate needs at least two --profile values")
			}
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			parsed := make([]analysis.Profile, 0, len(profiles))
			for _, spec := range profiles {
				p, err := analysis.ParseProfile(s.service.Study(), spec)
				if err != nil {
					return errors.WithCode(errors.CodeInvalidInput, err)
				}
				parsed = append(parsed, p)
			}

			table, err := s.service.LoadSurvey(ctx, surveyArg(args))
			if err != nil {
				return err
			}
			res, err := s.service.Estimate(ctx, app.EstimateRequest{Table: table, Overrides: flags.overrides(cmd)})
			if err != nil {
				return err
			}
			shares, err := analysis.Simulate(s.service.Study(), res.Report, parsed)
			if err != nil {
				return errors.WithCode(errors.CodeInvalidInput, err)
			}
			printMarket(cmd.OutOrStdout(), shares)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringArrayVar(&profiles, "profile", nil, "Profile as name=level,level (repeatable)")
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var studyName string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs, or show one run's estimates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			if !s.service.Persistent() {
				return errors.ConfigInvalid("no run store configured (set DATABASE_URL)")
			}

			if len(args) == 1 {
				rn, err := s.service.GetRun(ctx, core.RunID(args[0]))
				if err != nil {
					return err
				}
				printRun(cmd.OutOrStdout(), rn)
				return nil
			}
			runs, err := s.service.ListRuns(ctx, run.Filters{Study: studyName, Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&studyName, "study", "", "Only runs of this study")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to list (default 50)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the estimation API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			cfg := s.config.Server
			if port != "" {
				cfg.Port = port
			}
			if !s.service.Persistent() {
				s.logger.Warn("DATABASE_URL not set: runs will not be stored")
			}
			return api.NewServer(s.service, cfg, s.logger).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default PORT or 8080)")
	return cmd
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or inspect the run store schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.ConfigInvalid("DATABASE_URL is required")
			}

			db, err := store.Open(cfg.Database.Driver, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			m := store.NewMigrator(db, opts.logger())

			if surveyArg(args) != "status" {
				if err := m.Up(ctx); err != nil {
					return err
				}
			}
			statuses, err := m.Status(ctx)
			if err != nil {
				return err
			}
			printMigrations(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	return cmd
}

// loadSets opens a session and builds choice sets from the survey argument
func loadSets(cmd *cobra.Command, opts *globalOptions, args []string) (*session, []choice.ChoiceSet, error) {
	ctx := cmd.Context()
	s, err := opts.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	table, err := s.service.LoadSurvey(ctx, surveyArg(args))
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	sets, err := s.service.ChoiceSets(table)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, sets, nil
}
