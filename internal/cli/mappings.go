package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/team-migrator/internal/mappingio"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

func newMappingsCommand(factory EnvFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Import and export team mappings",
	}
	cmd.AddCommand(newMappingsExportCommand(factory), newMappingsImportCommand(factory))
	return cmd
}

func newMappingsExportCommand(factory EnvFactory) *cobra.Command {
	var (
		formatName string
		file       string
		sourceOrg  string
		status     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write team mappings as CSV, JSON or YAML",
		Example: `  team-migrator mappings export > mappings.csv
  team-migrator mappings export --format yaml --file mappings.yaml --source-org acme`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if formatName == "" && file != "" {
				formatName = filepath.Ext(file)
			}
			format, err := mappingio.ParseFormat(formatName)
			if err != nil {
				return err
			}
			filters := storage.TeamMappingFilters{SourceOrg: sourceOrg}
			if status != "" {
				parsed := models.ParseMappingStatus(status)
				if !parsed.IsValid() {
					return fmt.Errorf("invalid mapping status: %s", status)
				}
				filters.Status = string(parsed)
			}

			return withEnv(cmd, factory, func(ctx context.Context, env *Env) error {
				mappings, _, err := env.Store.ListTeamMappings(ctx, filters)
				if err != nil {
					return fmt.Errorf("failed to list team mappings: %w", err)
				}

				out := cmd.OutOrStdout()
				if file != "" && file != "-" {
					f, err := os.Create(file)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", file, err)
					}
					defer func() { _ = f.Close() }()
					out = f
				}
				if err := mappingio.Encode(out, format, mappings); err != nil {
					return fmt.Errorf("failed to write team mappings: %w", err)
				}
				if file != "" && file != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d team mappings to %s\n", len(mappings), file)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&formatName, "format", "", "csv, json or yaml (default from --file extension, else csv)")
	cmd.Flags().StringVar(&file, "file", "", "output file (default stdout)")
	cmd.Flags().StringVar(&sourceOrg, "source-org", "", "only export teams of this source organization")
	cmd.Flags().StringVar(&status, "status", "", "only export mappings with this mapping status")
	return cmd
}

func newMappingsImportCommand(factory EnvFactory) *cobra.Command {
	var (
		formatName string
		file       string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update team mappings from a CSV, JSON or YAML file",
		Long: `Import team mappings. Rows are keyed by source organization and team slug;
existing mappings are updated and new ones created. A row with a destination
and no status is marked mapped. Invalid rows are reported and skipped.`,
		Example: `  team-migrator mappings import --file mappings.csv
  cat mappings.json | team-migrator mappings import --format json --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if formatName == "" && file != "-" {
				formatName = filepath.Ext(file)
			}
			format, err := mappingio.ParseFormat(formatName)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			decoded, err := mappingio.Decode(in, format)
			if err != nil {
				return err
			}
			for _, msg := range decoded.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %s\n", msg)
			}

			return withEnv(cmd, factory, func(ctx context.Context, env *Env) error {
				var created, updated int
				if len(decoded.Mappings) > 0 {
					created, updated, err = env.Store.ImportTeamMappings(ctx, decoded.Mappings)
					if err != nil {
						return fmt.Errorf("failed to import team mappings: %w", err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported team mappings: %d created, %d updated, %d errors\n",
					created, updated, len(decoded.Errors))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&formatName, "format", "", "csv, json or yaml (default from --file extension)")
	cmd.Flags().StringVar(&file, "file", "", `input file, "-" for stdin`)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
