package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
)

type executeOptions struct {
	sourceOrg string
	team      string
	dryRun    bool
	interval  time.Duration
}

func newExecuteCommand(factory EnvFactory) *cobra.Command {
	opts := &executeOptions{}
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Run a team migration and print progress until it finishes",
		Long: `Create mapped teams in the destination and grant their repository
permissions. Without flags every mapped team that is not completed is
processed; --source-org narrows the run to one organization and --team
(which requires --source-org) to a single team.

Ctrl-C stops handing out teams; teams already in flight finish. A second
Ctrl-C exits immediately.`,
		Example: `  team-migrator execute --dry-run
  team-migrator execute --source-org acme
  team-migrator execute --source-org acme --team platform`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, factory, func(ctx context.Context, env *Env) error {
				orch, err := env.requireOrchestrator()
				if err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return runExecute(ctx, cmd.OutOrStdout(), orch, opts, stop)
			})
		},
	}

	cmd.Flags().StringVar(&opts.sourceOrg, "source-org", "", "only migrate teams of this source organization")
	cmd.Flags().StringVar(&opts.team, "team", "", "only migrate this source team slug (requires --source-org)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log what would change without writing to the destination")
	cmd.Flags().DurationVar(&opts.interval, "progress-interval", 2*time.Second, "how often progress is printed")
	return cmd
}

// runExecute starts a run and reports progress until it finishes. When ctx
// is cancelled the run is asked to stop and stopSignals restores default
// signal handling.
func runExecute(ctx context.Context, out io.Writer, orch Orchestrator, opts *executeOptions, stopSignals func()) error {
	scope := migration.Scope{
		SourceOrg:      strings.TrimSpace(opts.sourceOrg),
		SourceTeamSlug: strings.TrimSpace(opts.team),
	}

	started, err := orch.ExecuteMigration(ctx, scope, opts.dryRun)
	if err != nil {
		return fmt.Errorf("failed to start team migration: %w", err)
	}

	mode := ""
	if opts.dryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(out, "Started run %s%s: %d teams\n", started.RunID, mode, started.TotalTeams)

	done := make(chan error, 1)
	go func() { done <- orch.Wait(context.Background()) }()

	interval := opts.interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			if stopSignals != nil {
				stopSignals()
			}
			if orch.CancelMigration() {
				fmt.Fprintln(out, "Cancelling: waiting for teams in flight to finish...")
			}
		case <-ticker.C:
			printProgressLine(out, orch.Progress())
		case err := <-done:
			if err != nil {
				return err
			}
			final := orch.Progress()
			printSummary(out, final)
			if final.Status == models.RunCompletedWithErrors {
				return fmt.Errorf("team migration finished with %d failed teams", final.FailedTeams)
			}
			return nil
		}
	}
}

func printProgressLine(out io.Writer, p *migration.Progress) {
	line := fmt.Sprintf("[%s] %d/%d teams, %d created, %d failed, %d repos synced",
		p.Status, p.ProcessedTeams, p.TotalTeams, p.CreatedTeams, p.FailedTeams, p.TotalReposSynced)
	if p.CurrentTeam != "" {
		line += ", current " + p.CurrentTeam
	}
	fmt.Fprintln(out, line)
}

func printSummary(out io.Writer, p *migration.Progress) {
	fmt.Fprintf(out, "Run %s %s\n", p.RunID, p.Status)
	fmt.Fprintf(out, "  Teams:   %d processed of %d (%d created, %d skipped, %d failed)\n",
		p.ProcessedTeams, p.TotalTeams, p.CreatedTeams, p.SkippedTeams, p.FailedTeams)
	fmt.Fprintf(out, "  Repos:   %d synced\n", p.TotalReposSynced)
	if p.StartedAt != nil && p.CompletedAt != nil {
		fmt.Fprintf(out, "  Elapsed: %s\n", p.CompletedAt.Sub(*p.StartedAt).Round(time.Millisecond))
	}
	if p.TotalErrors > 0 {
		fmt.Fprintf(out, "  Errors:  %d\n", p.TotalErrors)
		for _, e := range p.Errors {
			fmt.Fprintf(out, "    - %s\n", e)
		}
		if hidden := p.TotalErrors - len(p.Errors); hidden > 0 {
			fmt.Fprintf(out, "    ... and %d more\n", hidden)
		}
	}
}
