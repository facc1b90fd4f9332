package migration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// Scope narrows a run. An empty scope covers every mapped team; SourceOrg
// alone covers one organization; both fields select a single team.
type Scope struct {
	SourceOrg      string `json:"source_org,omitempty"`
	SourceTeamSlug string `json:"source_team_slug,omitempty"`
}

// IsSingleTeam reports whether the scope selects exactly one team.
func (s Scope) IsSingleTeam() bool {
	return s.SourceTeamSlug != ""
}

// Progress is a point-in-time copy of a run, safe to serialize.
type Progress struct {
	RunID            string           `json:"run_id,omitempty"`
	DryRun           bool             `json:"dry_run"`
	Scope            Scope            `json:"scope"`
	Status           models.RunStatus `json:"status"`
	TotalTeams       int64            `json:"total_teams"`
	ProcessedTeams   int64            `json:"processed_teams"`
	CreatedTeams     int64            `json:"created_teams"`
	SkippedTeams     int64            `json:"skipped_teams"`
	FailedTeams      int64            `json:"failed_teams"`
	TotalReposSynced int64            `json:"total_repos_synced"`
	CurrentTeam      string           `json:"current_team,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Errors           []string         `json:"errors,omitempty"`
	TotalErrors      int              `json:"total_errors"`
}

// Run tracks one orchestrator run. Counters are updated by every worker
// concurrently; the error list and status are guarded by mu.
type Run struct {
	id        string
	dryRun    bool
	scope     Scope
	startedAt time.Time

	totalTeams       atomic.Int64
	processedTeams   atomic.Int64
	createdTeams     atomic.Int64
	skippedTeams     atomic.Int64
	failedTeams      atomic.Int64
	totalReposSynced atomic.Int64
	currentTeam      atomic.Value // string

	// fatal is set when the mapping store fails; dispatch stops.
	fatal atomic.Bool

	mu          sync.Mutex
	status      models.RunStatus
	completedAt *time.Time
	errors      []string
}

func newRun(scope Scope, dryRun bool, total int) *Run {
	r := &Run{
		id:        uuid.NewString(),
		dryRun:    dryRun,
		scope:     scope,
		startedAt: time.Now(),
		status:    models.RunInProgress,
	}
	r.totalTeams.Store(int64(total))
	r.currentTeam.Store("")
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Status returns the current run status.
func (r *Run) Status() models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) setCurrentTeam(team string) {
	r.currentTeam.Store(team)
}

func (r *Run) addError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

// finish moves the run to its terminal status. Later calls are ignored.
func (r *Run) finish(cancelled bool) models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.IsTerminal() {
		return r.status
	}

	switch {
	case cancelled:
		r.status = models.RunCancelled
	case r.fatal.Load() || r.failedTeams.Load() > 0 || len(r.errors) > 0:
		r.status = models.RunCompletedWithErrors
	default:
		r.status = models.RunCompleted
	}
	now := time.Now()
	r.completedAt = &now
	r.currentTeam.Store("")
	return r.status
}

// Snapshot copies the run. Only the most recent maxErrors errors are
// included; TotalErrors always reports how many were recorded. A
// non-positive maxErrors returns them all.
func (r *Run) Snapshot(maxErrors int) *Progress {
	started := r.startedAt
	p := &Progress{
		RunID:            r.id,
		DryRun:           r.dryRun,
		Scope:            r.scope,
		TotalTeams:       r.totalTeams.Load(),
		ProcessedTeams:   r.processedTeams.Load(),
		CreatedTeams:     r.createdTeams.Load(),
		SkippedTeams:     r.skippedTeams.Load(),
		FailedTeams:      r.failedTeams.Load(),
		TotalReposSynced: r.totalReposSynced.Load(),
		StartedAt:        &started,
	}
	if team, ok := r.currentTeam.Load().(string); ok {
		p.CurrentTeam = team
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p.Status = r.status
	if r.completedAt != nil {
		completed := *r.completedAt
		p.CompletedAt = &completed
	}
	p.TotalErrors = len(r.errors)
	shown := r.errors
	if maxErrors > 0 && len(shown) > maxErrors {
		shown = shown[len(shown)-maxErrors:]
	}
	if len(shown) > 0 {
		p.Errors = append([]string(nil), shown...)
	}
	return p
}
