package github

import (
	"fmt"
	"log/slog"
)

// DualClient holds the PAT client and, when configured, a GitHub App client
// for the same instance.
//
// Team writes go through the App client when one exists: App installations
// have higher rate limits and GitHub does not add an installation as a
// maintainer of the teams it creates. Without App credentials everything
// runs on the PAT client.
type DualClient struct {
	patClient *Client
	appClient *Client
	logger    *slog.Logger
}

// DualClientConfig configures a dual client. At least one of PATConfig and
// AppConfig must be usable.
type DualClientConfig struct {
	PATConfig *ClientConfig
	AppConfig *ClientConfig

	Logger *slog.Logger
}

// NewDualClient creates the PAT and App clients that have credentials.
func NewDualClient(cfg DualClientConfig) (*DualClient, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dc := &DualClient{logger: cfg.Logger}

	if cfg.PATConfig != nil && cfg.PATConfig.Token != "" {
		pat := *cfg.PATConfig
		pat.AppID, pat.AppPrivateKey, pat.AppInstallationID = 0, "", 0
		client, err := NewClient(pat)
		if err != nil {
			return nil, fmt.Errorf("failed to create PAT client: %w", err)
		}
		dc.patClient = client
	}

	if cfg.AppConfig != nil && cfg.AppConfig.HasAppCredentials() {
		cfg.Logger.Info("Initializing GitHub App client",
			"app_id", cfg.AppConfig.AppID,
			"installation_id", cfg.AppConfig.AppInstallationID)

		client, err := NewClient(*cfg.AppConfig)
		switch {
		case err != nil && dc.patClient == nil:
			return nil, fmt.Errorf("failed to create GitHub App client: %w", err)
		case err != nil:
			cfg.Logger.Warn("Failed to create GitHub App client, falling back to PAT", "error", err)
		default:
			dc.appClient = client
		}
	}

	if dc.patClient == nil && dc.appClient == nil {
		return nil, fmt.Errorf("either a token or GitHub App credentials are required")
	}
	return dc, nil
}

// APIClient returns the App client if configured, otherwise the PAT client.
func (dc *DualClient) APIClient() *Client {
	if dc.appClient != nil {
		return dc.appClient
	}
	return dc.patClient
}

// PATClient returns the PAT client, or nil when only App credentials exist.
func (dc *DualClient) PATClient() *Client {
	return dc.patClient
}

// HasAppClient returns true if an App client is configured
func (dc *DualClient) HasAppClient() bool {
	return dc.appClient != nil
}

// BaseURL returns the base URL of the instance both clients talk to
func (dc *DualClient) BaseURL() string {
	return dc.APIClient().BaseURL()
}
