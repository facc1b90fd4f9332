package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// statusReport is the machine-readable form of the status command.
type statusReport struct {
	MappingStats   *models.TeamMappingStats   `json:"mapping_stats"`
	ExecutionStats *models.TeamExecutionStats `json:"execution_stats"`
}

func newStatusCommand(factory EnvFactory) *cobra.Command {
	var (
		sourceOrg string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show mapping and migration counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, factory, func(ctx context.Context, env *Env) error {
				mappingStats, err := env.Store.GetTeamMappingStats(ctx, sourceOrg)
				if err != nil {
					return fmt.Errorf("failed to get team mapping stats: %w", err)
				}
				execStats, err := env.Store.GetTeamMigrationExecutionStats(ctx)
				if err != nil {
					return fmt.Errorf("failed to get team migration stats: %w", err)
				}

				report := statusReport{MappingStats: mappingStats, ExecutionStats: execStats}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				return printStatus(cmd.OutOrStdout(), report)
			})
		},
	}
	cmd.Flags().StringVar(&sourceOrg, "source-org", "", "limit mapping counts to one source organization")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStatus(out io.Writer, r statusReport) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	m, e := r.MappingStats, r.ExecutionStats

	fmt.Fprintln(tw, "MAPPINGS\t")
	fmt.Fprintf(tw, "  total\t%d\n", m.Total)
	fmt.Fprintf(tw, "  mapped\t%d\n", m.Mapped)
	fmt.Fprintf(tw, "  unmapped\t%d\n", m.Unmapped)
	fmt.Fprintf(tw, "  skipped\t%d\n", m.Skipped)

	fmt.Fprintln(tw, "MIGRATION\t")
	fmt.Fprintf(tw, "  pending\t%d\n", e.Pending)
	fmt.Fprintf(tw, "  in progress\t%d\n", e.InProgress)
	fmt.Fprintf(tw, "  completed\t%d\n", e.Completed)
	fmt.Fprintf(tw, "  failed\t%d\n", e.Failed)

	fmt.Fprintln(tw, "REPOSITORY SYNC\t")
	fmt.Fprintf(tw, "  needs sync\t%d\n", e.NeedsSync)
	fmt.Fprintf(tw, "  team only\t%d\n", e.TeamOnly)
	fmt.Fprintf(tw, "  partial\t%d\n", e.Partial)
	fmt.Fprintf(tw, "  complete\t%d\n", e.Complete)
	fmt.Fprintf(tw, "  repos synced\t%d/%d\n", e.TotalReposSynced, e.TotalReposEligible)

	return tw.Flush()
}
