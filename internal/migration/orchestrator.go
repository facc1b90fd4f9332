package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kuhlman-labs/team-migrator/internal/github"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

const (
	defaultWorkers            = 5
	defaultMaxDisplayedErrors = 50
)

// Store is the part of the mapping store the orchestrator reads and writes.
type Store interface {
	GetTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string) (*models.TeamMapping, error)
	GetMappedTeamsForMigration(ctx context.Context, sourceOrgFilter string) ([]*models.TeamMapping, error)
	ClaimTeamMigration(ctx context.Context, sourceOrg, sourceTeamSlug string) (bool, error)
	UpdateTeamMigrationStatus(ctx context.Context, sourceOrg, sourceTeamSlug string, status models.MigrationStatus, errMsg *string) error
	UpdateTeamMigrationTracking(ctx context.Context, sourceOrg, sourceTeamSlug string, update storage.TeamMigrationTrackingUpdate) error
	ResetTeamMigrationStatus(ctx context.Context, sourceOrgFilter string) (int64, error)
	RecoverStaleTeamMigrations(ctx context.Context) (int64, error)
	ListEligibleTeamRepositories(ctx context.Context, sourceOrg, sourceTeamSlug string) ([]*models.TeamRepository, error)
	MarkTeamRepositorySynced(ctx context.Context, sourceOrg, sourceTeamSlug, repoFullName string) error
	MarkTeamRepositoryFailed(ctx context.Context, sourceOrg, sourceTeamSlug, repoFullName, errMsg string) error
	RefreshTeamRepoCounts(ctx context.Context, sourceOrg, sourceTeamSlug string) (storage.TeamRepoCounts, error)
}

// Destination is the destination GitHub organization. *github.Client
// satisfies it.
type Destination interface {
	GetTeamBySlug(ctx context.Context, org, slug string) (*github.TeamInfo, error)
	CreateTeam(ctx context.Context, org string, input github.CreateTeamInput) (*github.TeamInfo, error)
	AddTeamRepoPermission(ctx context.Context, org, teamSlug, repoOwner, repoName, permission string) error
	RemoveTeamMembership(ctx context.Context, org, teamSlug, username string) error
	GetAuthenticatedUserLogin(ctx context.Context) (string, error)
	IsPATAuthenticated() bool
}

var (
	_ Store       = (*storage.Database)(nil)
	_ Destination = (*github.Client)(nil)
)

// Config configures an Orchestrator.
type Config struct {
	Store       Store
	Destination Destination
	Logger      *slog.Logger

	// Workers is the number of teams processed in parallel.
	Workers int
	// MaxDisplayedErrors caps the errors returned by Progress.
	MaxDisplayedErrors int
	// RemovePATOwner removes the token owner GitHub adds as maintainer when
	// a team is created with a personal access token.
	RemovePATOwner bool
}

// Orchestrator runs team migrations. At most one run is active at a time.
type Orchestrator struct {
	store              Store
	dest               Destination
	logger             *slog.Logger
	workers            int
	maxDisplayedErrors int
	removePATOwner     bool

	// busy is the single-flight guard for runs and resets.
	busy      atomic.Bool
	cancelled atomic.Bool

	mu   sync.RWMutex
	run  *Run
	done chan struct{}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Destination == nil {
		return nil, fmt.Errorf("destination client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxDisplayedErrors < 1 {
		cfg.MaxDisplayedErrors = defaultMaxDisplayedErrors
	}

	return &Orchestrator{
		store:              cfg.Store,
		dest:               cfg.Destination,
		logger:             cfg.Logger,
		workers:            cfg.Workers,
		maxDisplayedErrors: cfg.MaxDisplayedErrors,
		removePATOwner:     cfg.RemovePATOwner,
	}, nil
}

// ExecuteMigration starts a run over the mapped teams in scope and returns
// right away; poll Progress or call Wait to observe completion. The run
// outlives ctx cancellation; use CancelMigration to stop it.
//
// Team-wide runs pick up pending and failed teams plus completed teams that
// still have repositories to sync. A single-team run processes its team
// whatever the migration status, as long as it is mapped.
func (o *Orchestrator) ExecuteMigration(ctx context.Context, scope Scope, dryRun bool) (*Progress, error) {
	if scope.IsSingleTeam() && scope.SourceOrg == "" {
		return nil, ErrInvalidScope
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	started := false
	defer func() {
		if !started {
			o.busy.Store(false)
		}
	}()

	mappings, err := o.loadWorkingSet(ctx, scope)
	if err != nil {
		return nil, err
	}

	run := newRun(scope, dryRun, len(mappings))
	done := make(chan struct{})

	o.cancelled.Store(false)
	o.mu.Lock()
	o.run = run
	o.done = done
	o.mu.Unlock()

	o.logger.Info("Starting team migration execution",
		"run_id", run.ID(),
		"source_org_filter", scope.SourceOrg,
		"source_team_slug_filter", scope.SourceTeamSlug,
		"dry_run", dryRun,
		"teams", len(mappings),
		"workers", o.workers)

	started = true
	go o.execute(context.WithoutCancel(ctx), run, mappings, done)

	return run.Snapshot(o.maxDisplayedErrors), nil
}

func (o *Orchestrator) loadWorkingSet(ctx context.Context, scope Scope) ([]*models.TeamMapping, error) {
	if scope.IsSingleTeam() {
		mapping, err := o.store.GetTeamMapping(ctx, scope.SourceOrg, scope.SourceTeamSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to load team mapping: %w", err)
		}
		if mapping == nil {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, scope.SourceOrg, scope.SourceTeamSlug)
		}
		if mapping.MappingStatus != models.MappingStatusMapped || !mapping.HasDestination() {
			return nil, fmt.Errorf("%w: %s (status %s)", ErrNotMapped, mapping.SourceFullSlug(), mapping.MappingStatus)
		}
		return []*models.TeamMapping{mapping}, nil
	}

	mappings, err := o.store.GetMappedTeamsForMigration(ctx, scope.SourceOrg)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped teams: %w", err)
	}
	return mappings, nil
}

// execute feeds the snapshot to a fixed pool of workers. The stop flag is
// checked before each team is handed out and again when a worker picks it
// up; teams already started always finish.
func (o *Orchestrator) execute(ctx context.Context, run *Run, mappings []*models.TeamMapping, done chan struct{}) {
	defer close(done)
	defer o.busy.Store(false)

	jobs := make(chan *models.TeamMapping)
	var wg sync.WaitGroup
	for i := 0; i < min(o.workers, len(mappings)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mapping := range jobs {
				if o.stopRequested(run) {
					continue
				}
				o.processTeam(ctx, run, mapping)
			}
		}()
	}

	for _, mapping := range mappings {
		if o.stopRequested(run) {
			break
		}
		jobs <- mapping
	}
	close(jobs)
	wg.Wait()

	// A cancel that arrived after the last team was handed out changed nothing.
	cancelled := o.cancelled.Load() && run.processedTeams.Load() < run.totalTeams.Load()
	status := run.finish(cancelled)
	if cancelled {
		o.logger.Info("Team migration cancelled by user", "run_id", run.ID())
	}

	p := run.Snapshot(0)
	o.logger.Info("Team migration execution completed",
		"run_id", run.ID(),
		"status", status,
		"dry_run", run.dryRun,
		"total", p.TotalTeams,
		"processed", p.ProcessedTeams,
		"created", p.CreatedTeams,
		"skipped", p.SkippedTeams,
		"failed", p.FailedTeams,
		"repos_synced", p.TotalReposSynced,
		"errors", p.TotalErrors)
}

func (o *Orchestrator) stopRequested(run *Run) bool {
	return o.cancelled.Load() || run.fatal.Load()
}

// processTeam runs one team through the state machine and folds the
// outcome into the run counters.
func (o *Orchestrator) processTeam(ctx context.Context, run *Run, mapping *models.TeamMapping) {
	team := mapping.SourceFullSlug()
	run.setCurrentTeam(team)

	result := o.syncTeam(ctx, mapping, run.dryRun)

	switch {
	case result.claimedElsewhere:
		run.skippedTeams.Add(1)
		run.addError(fmt.Sprintf("%s: %s", team, ErrTeamInProgress.Error()))
		o.logger.Warn("Team is being processed by another run, skipping", "team", team)
	case result.err != nil:
		run.failedTeams.Add(1)
		run.addError(fmt.Sprintf("%s: %s", team, result.err.Error()))
		o.logger.Error("Failed to process team mapping", "team", team, "error", result.err)
	case result.storeErr != nil:
		run.failedTeams.Add(1)
	case result.created:
		run.createdTeams.Add(1)
	default:
		run.skippedTeams.Add(1)
	}

	if result.err == nil && result.reposFailed > 0 {
		run.addError(fmt.Sprintf("%s: %d of %d repository permissions failed: %s",
			team, result.reposFailed, result.reposAttempted, result.lastRepoErr.Error()))
	}

	if result.storeErr != nil {
		run.fatal.Store(true)
		run.addError(fmt.Sprintf("%s: %s", team, result.storeErr.Error()))
		o.logger.Error("Mapping store failure, stopping dispatch", "team", team, "error", result.storeErr)
	}

	run.totalReposSynced.Add(int64(result.reposSynced))
	run.processedTeams.Add(1)
}

// CancelMigration asks the active run to stop handing out teams. Teams
// already in flight finish. It reports whether a run was signalled.
func (o *Orchestrator) CancelMigration() bool {
	if !o.IsRunning() {
		return false
	}
	if o.cancelled.CompareAndSwap(false, true) {
		o.logger.Info("Team migration cancellation requested")
	}
	return true
}

// ResetMigrationStatus puts mapped teams in scope back to pending. Teams
// created in the destination and repositories already synced stay recorded,
// so the next run only fills the gaps. The last run's progress is cleared.
func (o *Orchestrator) ResetMigrationStatus(ctx context.Context, sourceOrg string) (int64, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	defer o.busy.Store(false)

	count, err := o.store.ResetTeamMigrationStatus(ctx, sourceOrg)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	o.run = nil
	o.mu.Unlock()

	o.logger.Info("Reset team migration status", "source_org", sourceOrg, "count", count)
	return count, nil
}

// Recover releases teams left in progress by a process that exited
// mid-run. Runs never do this themselves: another process sharing the store
// may own those rows. Call it at startup before serving requests.
func (o *Orchestrator) Recover(ctx context.Context) (int64, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return 0, ErrAlreadyRunning
	}
	defer o.busy.Store(false)

	count, err := o.store.RecoverStaleTeamMigrations(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		o.logger.Warn("Recovered interrupted team migrations", "count", count)
	}
	return count, nil
}

// IsRunning reports whether a run is in progress.
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	run := o.run
	o.mu.RUnlock()
	return run != nil && run.Status() == models.RunInProgress
}

// Progress returns a snapshot of the active or most recent run. Before the
// first run it reports not_started.
func (o *Orchestrator) Progress() *Progress {
	o.mu.RLock()
	run := o.run
	o.mu.RUnlock()
	if run == nil {
		return &Progress{Status: models.RunNotStarted}
	}
	return run.Snapshot(o.maxDisplayedErrors)
}

// Wait blocks until the active run finishes or ctx is done. It returns nil
// right away when nothing is running.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.RLock()
	done := o.done
	o.mu.RUnlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
