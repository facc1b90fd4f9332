package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newResetCommand(factory EnvFactory) *cobra.Command {
	var (
		sourceOrg   string
		interrupted bool
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Put mapped teams back to pending so the next run processes them again",
		Long: `Reset the migration status of mapped teams to pending. Teams already
created in the destination and repositories already synced stay recorded, so
the next run only fills the gaps.

Teams left in_progress are not touched, since another process may still be
working on them. After a crash, pass --interrupted to put those teams back to
pending; only do this when no other process is running.`,
		Example: `  team-migrator reset
  team-migrator reset --source-org acme
  team-migrator reset --interrupted`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, factory, func(ctx context.Context, env *Env) error {
				orch, err := env.requireOrchestrator()
				if err != nil {
					return err
				}
				if interrupted {
					count, err := orch.Recover(ctx)
					if err != nil {
						return fmt.Errorf("failed to recover interrupted teams: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d interrupted teams\n", count)
					return nil
				}
				org := strings.TrimSpace(sourceOrg)
				count, err := orch.ResetMigrationStatus(ctx, org)
				if err != nil {
					return fmt.Errorf("failed to reset team migration status: %w", err)
				}
				if org == "" {
					org = "all organizations"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d teams (%s)\n", count, org)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceOrg, "source-org", "", "only reset teams of this source organization")
	cmd.Flags().BoolVar(&interrupted, "interrupted", false, "put teams left in_progress by a crashed run back to pending")
	cmd.MarkFlagsMutuallyExclusive("interrupted", "source-org")
	return cmd
}
