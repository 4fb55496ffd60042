package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"sherockets/adapters/store"
	"sherockets/app"
	"sherockets/internal"
	"sherockets/internal/config"
	"sherockets/ports"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "conjoint",
		Short: "Paired-profile conjoint analysis: choice sets, logit effects and significance",
		Long: `conjoint reshapes a wide-format survey export into paired choice sets, fits a
conditional logit over dummy- or effects-coded attribute levels, and reports
per-level effects with Wald, bootstrap or permutation significance.

Configuration is read from --config (or CONFIG_FILE), then environment variables.
Runs are stored when DATABASE_URL is set.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE (default LOG_LEVEL or INFO)")

	rootCmd.AddCommand(
		newEstimateCmd(opts),
		newSharesCmd(opts),
		newImportanceCmd(opts),
		newRatingsCmd(opts),
		newSubgroupsCmd(opts),
		newSimulateCmd(opts),
		newRunsCmd(opts),
		newGenerateCmd(),
		newServeCmd(opts),
		newMigrateCmd(opts),
	)
	return rootCmd
}

// session bundles what every command needs after configuration is loaded
type session struct {
	config  *config.Config
	logger  *internal.Logger
	service *app.AnalysisService
	db      *sqlx.DB
}

func (o *globalOptions) logger() *internal.Logger {
	if o.logLevel != "" {
		return internal.NewLogger(internal.ParseLogLevel(o.logLevel))
	}
	return internal.NewDefaultLogger()
}

// open loads configuration and builds the service. The run store is opened and
// migrated only when a database URL is configured.
func (o *globalOptions) open(ctx context.Context) (*session, error) {
	logger := o.logger()
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	s := &session{config: cfg, logger: logger}
	var runs ports.RunRepository
	if cfg.Database.URL != "" {
		if s.db, err = openStore(ctx, cfg, logger); err != nil {
			return nil, err
		}
		runs = store.NewRunRepository(s.db)
	}

	if s.service, err = app.NewAnalysisService(cfg, runs, logger); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*sqlx.DB, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := store.NewMigrator(db, logger).Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func surveyArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
