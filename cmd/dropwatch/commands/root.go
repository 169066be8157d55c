// Package commands holds the dropwatch command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/internal/config"
	"github.com/okian/dropwatch/pkg/logger"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// env is filled by the root pre-run and shared by every subcommand.
type env struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log logger.Logger
}

// NewRootCmd builds the dropwatch command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "dropwatch",
		Short: "Dropwatch tracks boss clears and publishes community drop rates",
		Long: `Dropwatch records boss clears per character, allows one clear per boss in each
daily or weekly reset period, and aggregates every clear into community
drop-rate statistics.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: e.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "YAML config file (default $DROPWATCH_CONFIG)")
	root.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(e),
		newMigrateCmd(e),
		newRecomputeCmd(e),
		newSimulateCmd(e),
		newVersionCmd(),
	)
	return root
}

// Execute runs the dropwatch command tree.
func Execute() error {
	return NewRootCmd().Execute()
}

// setup loads configuration and initializes logging. Logs go to stderr so
// command output on stdout stays machine readable.
func (e *env) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.LoadFrom(ctx, e.configPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.LogLevel = e.logLevel
	}

	if err := logger.Init(
		logger.WithFormat(cfg.LogFormat),
		logger.WithFile(cfg.LogFile),
		logger.WithWriter(cmd.ErrOrStderr()),
	); err != nil {
		return err
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	e.cfg, e.log = cfg, log
	return nil
}
