// Package app wires the configured components shared by the server and the
// command-line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/discovery"
	"github.com/kuhlman-labs/team-migrator/internal/github"
	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/source"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
	"github.com/kuhlman-labs/team-migrator/internal/worker"
)

// ErrDestinationNotConfigured is returned when neither a destination token
// nor destination App credentials are set.
var ErrDestinationNotConfigured = errors.New("destination is not configured: set GHMIG_DESTINATION_TOKEN or App credentials")

const clientTimeout = 120 * time.Second

// App holds the long-lived components of one process.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *storage.Database

	Orchestrator *migration.Orchestrator
	// Connector and Syncer are nil when the source could not be initialized.
	Connector source.Connector
	Syncer    *discovery.TeamSyncer
}

// New opens the database, applies the schema, and builds the destination
// client, orchestrator and source connector. Orchestrator is nil when no
// destination credentials are configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	dest, err := initializeDestinationClient(cfg, logger)
	switch {
	case errors.Is(err, ErrDestinationNotConfigured):
		logger.Warn("Destination not configured, team migrations are disabled")
	case err != nil:
		_ = db.Close()
		return nil, err
	default:
		a.Orchestrator, err = migration.NewOrchestrator(migration.Config{
			Store:              db,
			Destination:        dest.APIClient(),
			Logger:             logger,
			Workers:            cfg.Migration.Workers,
			MaxDisplayedErrors: cfg.Migration.MaxDisplayedErrors,
			RemovePATOwner:     cfg.Migration.RemovePATOwner,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create orchestrator: %w", err)
		}
	}

	a.Connector, err = source.NewConnectorFromConfig(ctx, cfg.Source, cfg.Migration.RequestsPerSecond, logger)
	if err != nil {
		logger.Warn("Source not available, team discovery is disabled", "type", cfg.Source.Type, "error", err)
		a.Connector = nil
	} else {
		a.Syncer = discovery.NewTeamSyncer(discovery.TeamSyncerConfig{
			Store:               db,
			Connector:           a.Connector,
			Logger:              logger,
			Workers:             cfg.Migration.TeamSync.Workers,
			IncludeArchived:     cfg.Migration.TeamSync.IncludeArchived,
			ExcludeVisibilities: cfg.Migration.TeamSync.ExcludeVisibilities,
		})
	}

	return a, nil
}

// RequireOrchestrator returns the orchestrator or ErrDestinationNotConfigured.
func (a *App) RequireOrchestrator() (*migration.Orchestrator, error) {
	if a.Orchestrator == nil {
		return nil, ErrDestinationNotConfigured
	}
	return a.Orchestrator, nil
}

// Recover releases teams a previous process left in progress. Only the
// process that owns the store should call it.
func (a *App) Recover(ctx context.Context) {
	if a.Orchestrator == nil {
		return
	}
	recovered, err := a.Orchestrator.Recover(ctx)
	if err != nil {
		a.Logger.Warn("Failed to recover interrupted team migrations", "error", err)
	} else if recovered > 0 {
		a.Logger.Info("Recovered interrupted team migrations", "count", recovered)
	}
}

// ResyncWorker returns a worker for the configured interval, or nil when
// periodic re-sync is disabled.
func (a *App) ResyncWorker() (*worker.ResyncWorker, error) {
	if a.Config.Migration.ResyncIntervalMinutes <= 0 || a.Orchestrator == nil {
		return nil, nil
	}
	return worker.NewResyncWorker(worker.ResyncConfig{
		Runner:   a.Orchestrator,
		Stats:    a.DB,
		Logger:   a.Logger,
		Interval: time.Duration(a.Config.Migration.ResyncIntervalMinutes) * time.Minute,
	})
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}

// initializeDestinationClient creates the PAT and optional App clients for the
// destination. The App client is preferred for API calls when present.
func initializeDestinationClient(cfg *config.Config, logger *slog.Logger) (*github.DualClient, error) {
	d := cfg.Destination
	hasApp := d.AppID > 0 && d.AppPrivateKey != "" && d.AppInstallationID > 0
	if d.Token == "" && !hasApp {
		return nil, ErrDestinationNotConfigured
	}

	var patConfig *github.ClientConfig
	if d.Token != "" {
		patConfig = &github.ClientConfig{
			BaseURL:           d.BaseURL,
			Token:             d.Token,
			Timeout:           clientTimeout,
			RetryConfig:       github.DefaultRetryConfig(),
			RequestsPerSecond: cfg.Migration.RequestsPerSecond,
			Logger:            logger,
		}
	}

	var appConfig *github.ClientConfig
	if hasApp {
		appConfig = &github.ClientConfig{
			BaseURL:           d.BaseURL,
			AppID:             d.AppID,
			AppPrivateKey:     d.AppPrivateKey,
			AppInstallationID: d.AppInstallationID,
			Timeout:           clientTimeout,
			RetryConfig:       github.DefaultRetryConfig(),
			RequestsPerSecond: cfg.Migration.RequestsPerSecond,
			Logger:            logger,
		}
	}

	dual, err := github.NewDualClient(github.DualClientConfig{
		PATConfig: patConfig,
		AppConfig: appConfig,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize destination client: %w", err)
	}

	logger.Info("Destination GitHub client initialized",
		"base_url", d.BaseURL,
		"has_app_auth", dual.HasAppClient())
	return dual, nil
}
