package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSyncCommand(factory EnvFactory) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Discover the teams of a source organization and their repositories",
		Long: `Read every team of a source organization (an Azure DevOps project for
Azure DevOps sources), create unmapped mappings for new teams, and record
the repositories each team can access with the permission to grant.`,
		Example: `  team-migrator sync --org acme`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			org = strings.TrimSpace(org)
			if org == "" {
				return errors.New("--org is required")
			}
			return withEnv(cmd, factory, func(ctx context.Context, env *Env) error {
				if env.Syncer == nil {
					return ErrSourceNotConfigured
				}
				result, err := env.Syncer.SyncOrganization(ctx, org)
				if err != nil {
					return fmt.Errorf("failed to sync teams of %s: %w", org, err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Synced %s: %d teams found (%d new, %d updated), %d repositories recorded, %d eligible\n",
					result.Org, result.TeamsFound, result.TeamsCreated, result.TeamsUpdated,
					result.ReposRecorded, result.ReposEligible)
				for _, e := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "source organization (or Azure DevOps project)")
	return cmd
}
