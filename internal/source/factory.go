package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kuhlman-labs/team-migrator/internal/azuredevops"
	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/github"
)

// adoCloudURL is the Azure DevOps Services host organizations live under
const adoCloudURL = "https://dev.azure.com"

// NewConnectorFromConfig creates a source connector based on configuration.
// GitHub sources get an ETag-caching client since they are only read.
func NewConnectorFromConfig(ctx context.Context, cfg config.SourceConfig, requestsPerSecond float64, logger *slog.Logger) (Connector, error) {
	switch strings.ToLower(cfg.Type) {
	case "", string(ConnectorGitHub):
		client, err := github.NewClient(github.ClientConfig{
			BaseURL:           cfg.BaseURL,
			Token:             cfg.Token,
			AppID:             cfg.AppID,
			AppPrivateKey:     cfg.AppPrivateKey,
			AppInstallationID: cfg.AppInstallationID,
			RequestsPerSecond: requestsPerSecond,
			EnableCache:       true,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create source GitHub client: %w", err)
		}
		return NewGitHubConnector(client), nil

	case string(ConnectorAzureDevOps), "ado":
		orgURL, err := adoOrganizationURL(cfg)
		if err != nil {
			return nil, err
		}
		client, err := azuredevops.NewClient(ctx, azuredevops.ClientConfig{
			OrganizationURL:     orgURL,
			PersonalAccessToken: cfg.Token,
			Logger:              logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure DevOps client: %w", err)
		}
		return NewAzureDevOpsConnector(client, cfg.ADODefaultPermission)

	default:
		return nil, fmt.Errorf("unsupported source type: %s (supported: github, azuredevops)", cfg.Type)
	}
}

// adoOrganizationURL prefers an explicit base URL (Azure DevOps Server) and
// otherwise builds the dev.azure.com URL from the organization name.
func adoOrganizationURL(cfg config.SourceConfig) (string, error) {
	if cfg.BaseURL != "" {
		return strings.TrimSuffix(cfg.BaseURL, "/"), nil
	}
	if cfg.Organization == "" {
		return "", fmt.Errorf("organization is required for Azure DevOps sources")
	}
	return adoCloudURL + "/" + cfg.Organization, nil
}
