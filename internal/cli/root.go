// Package cli provides the team-migrator command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kuhlman-labs/team-migrator/internal/app"
	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/discovery"
	"github.com/kuhlman-labs/team-migrator/internal/logging"
	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// Version is set at build time.
var Version = "dev"

// Orchestrator is the part of *migration.Orchestrator the commands use.
type Orchestrator interface {
	ExecuteMigration(ctx context.Context, scope migration.Scope, dryRun bool) (*migration.Progress, error)
	CancelMigration() bool
	ResetMigrationStatus(ctx context.Context, sourceOrg string) (int64, error)
	Recover(ctx context.Context) (int64, error)
	Progress() *migration.Progress
	Wait(ctx context.Context) error
}

// TeamSyncer copies teams from the source into the mapping store.
type TeamSyncer interface {
	SyncOrganization(ctx context.Context, org string) (*discovery.SyncResult, error)
}

var (
	_ Orchestrator = (*migration.Orchestrator)(nil)
	_ TeamSyncer   = (*discovery.TeamSyncer)(nil)
)

// ErrSourceNotConfigured is returned by commands that read from the source.
var ErrSourceNotConfigured = errors.New("source is not configured: set GHMIG_SOURCE_TYPE and GHMIG_SOURCE_TOKEN")

// Env is what a command runs against. Orchestrator and Syncer may be nil.
type Env struct {
	Store        storage.TeamMappingStore
	Orchestrator Orchestrator
	Syncer       TeamSyncer
	Logger       *slog.Logger
}

// EnvFactory opens an Env for one command. The returned func releases it.
type EnvFactory func(ctx context.Context) (*Env, func(), error)

// DefaultEnvFactory loads configuration and opens the configured store,
// destination and source. Logs go to stderr.
func DefaultEnvFactory(ctx context.Context) (*Env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLoggerWithConsole(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	env := &Env{Store: a.DB, Logger: logger}
	if a.Orchestrator != nil {
		env.Orchestrator = a.Orchestrator
	}
	if a.Syncer != nil {
		env.Syncer = a.Syncer
	}
	return env, func() { _ = a.Close() }, nil
}

// requireOrchestrator fails commands that write to the destination.
func (e *Env) requireOrchestrator() (Orchestrator, error) {
	if e.Orchestrator == nil {
		return nil, app.ErrDestinationNotConfigured
	}
	return e.Orchestrator, nil
}

// rootFlag binds a persistent flag to a viper key so flags override the
// config file and environment.
type rootFlag struct {
	name  string
	key   string
	usage string
}

var rootFlags = []rootFlag{
	{name: "database-type", key: "database.type", usage: "database type (sqlite, postgres, sqlserver)"},
	{name: "database-dsn", key: "database.dsn", usage: "database connection string"},
	{name: "log-level", key: "logging.level", usage: "log level (debug, info, warn, error)"},
	{name: "log-format", key: "logging.format", usage: "log format (json, text)"},
}

// NewRootCommand builds the command tree. Every subcommand opens its Env
// through factory.
func NewRootCommand(factory EnvFactory) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "team-migrator",
		Short: "Recreate source teams and their repository access in a destination GitHub organization",
		Long: `team-migrator recreates teams from a GitHub or Azure DevOps source in a
destination GitHub organization and grants them the repository permissions
they held in the source.

Configuration is read from config.yaml, .env and GHMIG_* environment
variables. Flags override both.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	for _, f := range rootFlags {
		rootCmd.PersistentFlags().String(f.name, "", f.usage)
	}
	rootCmd.PersistentFlags().Int("workers", 0, "number of teams processed in parallel")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return bindRootFlags(cmd)
	}

	rootCmd.AddCommand(
		newExecuteCommand(factory),
		newResetCommand(factory),
		newStatusCommand(factory),
		newMappingsCommand(factory),
		newSyncCommand(factory),
	)
	return rootCmd
}

// bindRootFlags binds only the flags the user set, so unset flags never
// shadow file or environment values with empty defaults.
func bindRootFlags(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	for _, f := range rootFlags {
		if !flags.Changed(f.name) {
			continue
		}
		if err := viper.BindPFlag(f.key, flags.Lookup(f.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", f.name, err)
		}
	}
	if flags.Changed("workers") {
		if err := viper.BindPFlag("migration.workers", flags.Lookup("workers")); err != nil {
			return fmt.Errorf("failed to bind flag workers: %w", err)
		}
	}
	return nil
}

// withEnv opens an Env, runs fn and releases the Env.
func withEnv(cmd *cobra.Command, factory EnvFactory, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, release, err := factory(ctx)
	if err != nil {
		return err
	}
	if release != nil {
		defer release()
	}
	return fn(ctx, env)
}
