package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// Runner starts orchestrator runs. *migration.Orchestrator satisfies it.
type Runner interface {
	ExecuteMigration(ctx context.Context, scope migration.Scope, dryRun bool) (*migration.Progress, error)
	IsRunning() bool
}

// StatsSource reports how many mapped teams are behind. *storage.Database
// satisfies it.
type StatsSource interface {
	GetTeamMigrationExecutionStats(ctx context.Context) (*models.TeamExecutionStats, error)
}

// ResyncWorker periodically starts a run when teams that already exist in
// the destination are missing repository permissions, e.g. after more
// repositories were migrated and the source was synced again.
type ResyncWorker struct {
	runner   Runner
	stats    StatsSource
	logger   *slog.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	lastRunID string
}

// ResyncConfig configures the re-sync worker
type ResyncConfig struct {
	Runner   Runner
	Stats    StatsSource
	Logger   *slog.Logger
	Interval time.Duration
}

// NewResyncWorker creates a new re-sync worker
func NewResyncWorker(cfg ResyncConfig) (*ResyncWorker, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("stats source is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	return &ResyncWorker{
		runner:   cfg.Runner,
		stats:    cfg.Stats,
		logger:   cfg.Logger,
		interval: cfg.Interval,
	}, nil
}

// Start starts the polling loop
func (w *ResyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.ctx != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Info("Starting re-sync worker", "interval", w.interval)

	w.wg.Add(1)
	go w.pollLoop()
	return nil
}

// Stop stops the polling loop. A run it started keeps going; the
// orchestrator owns its lifecycle.
func (w *ResyncWorker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("Re-sync worker stopped")
	return nil
}

// IsActive returns true if the worker is currently polling
func (w *ResyncWorker) IsActive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ctx != nil && w.ctx.Err() == nil
}

// LastRunID returns the id of the last run this worker started, if any.
func (w *ResyncWorker) LastRunID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastRunID
}

func (w *ResyncWorker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.CheckAndRun(w.ctx); err != nil {
				w.logger.Error("Scheduled re-sync failed", "error", err)
			}
		}
	}
}

// CheckAndRun starts a run when the orchestrator is idle and at least one
// team needs repository permissions synced. It reports whether a run was
// started. Losing the race to a user-started run is not an error.
func (w *ResyncWorker) CheckAndRun(ctx context.Context) (bool, error) {
	if w.runner.IsRunning() {
		w.logger.Debug("Team migration already running, skipping re-sync check")
		return false, nil
	}

	stats, err := w.stats.GetTeamMigrationExecutionStats(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load execution stats: %w", err)
	}
	behind := stats.NeedsSync + stats.Partial
	if behind == 0 {
		w.logger.Debug("No teams need re-sync")
		return false, nil
	}

	progress, err := w.runner.ExecuteMigration(ctx, migration.Scope{}, false)
	if errors.Is(err, migration.ErrAlreadyRunning) {
		w.logger.Debug("Team migration started elsewhere, skipping re-sync")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	w.lastRunID = progress.RunID
	w.mu.Unlock()

	w.logger.Info("Started scheduled team re-sync",
		"run_id", progress.RunID,
		"teams_behind", behind,
		"teams", progress.TotalTeams)
	return true, nil
}
