// Package discovery records source teams and their repositories in the
// mapping store so they can be mapped and migrated.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/source"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// TeamSyncerConfig configures a TeamSyncer
type TeamSyncerConfig struct {
	Store     storage.TeamSyncStore
	Connector source.Connector
	Logger    *slog.Logger
	Workers   int

	// IncludeArchived makes archived repositories eligible for migration
	IncludeArchived bool
	// ExcludeVisibilities lists repository visibilities that are never eligible
	ExcludeVisibilities []string
}

// TeamSyncer copies teams, member counts and team repositories from a source
// connector into the mapping store.
type TeamSyncer struct {
	store               storage.TeamSyncStore
	connector           source.Connector
	logger              *slog.Logger
	workers             int
	includeArchived     bool
	excludeVisibilities []string
}

// SyncResult summarizes one SyncOrganization call
type SyncResult struct {
	Org           string   `json:"org"`
	TeamsFound    int      `json:"teams_found"`
	TeamsCreated  int      `json:"teams_created"`
	TeamsUpdated  int      `json:"teams_updated"`
	ReposRecorded int      `json:"repos_recorded"`
	ReposEligible int      `json:"repos_eligible"`
	Errors        []string `json:"errors,omitempty"`
}

// NewTeamSyncer creates a new TeamSyncer
func NewTeamSyncer(cfg TeamSyncerConfig) *TeamSyncer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	excluded := make([]string, 0, len(cfg.ExcludeVisibilities))
	for _, v := range cfg.ExcludeVisibilities {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			excluded = append(excluded, v)
		}
	}
	return &TeamSyncer{
		store:               cfg.Store,
		connector:           cfg.Connector,
		logger:              cfg.Logger,
		workers:             cfg.Workers,
		includeArchived:     cfg.IncludeArchived,
		excludeVisibilities: excluded,
	}
}

// IsEligible reports whether a source repository should be carried to the
// destination team.
func (s *TeamSyncer) IsEligible(repo source.Repository) bool {
	if repo.Archived && !s.includeArchived {
		return false
	}
	return !slices.Contains(s.excludeVisibilities, strings.ToLower(repo.Visibility))
}

// teamSyncResult holds the result of processing a single team
type teamSyncResult struct {
	created  bool
	repos    int
	eligible int
	err      error
}

// SyncOrganization records every team of org. New teams become unmapped
// mappings; existing mappings keep their mapping and migration state. Team
// level failures are collected and do not stop the other teams.
func (s *TeamSyncer) SyncOrganization(ctx context.Context, org string) (*SyncResult, error) {
	s.logger.Info("Syncing teams from source",
		"org", org,
		"source", s.connector.Name())

	teams, err := s.connector.ListTeams(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	result := &SyncResult{Org: org, TeamsFound: len(teams)}
	if len(teams) == 0 {
		return result, nil
	}

	jobs := make(chan source.Team, len(teams))
	results := make(chan teamSyncResult, len(teams))
	var wg sync.WaitGroup

	for i := 0; i < min(s.workers, len(teams)); i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for team := range jobs {
				results <- s.syncTeam(ctx, workerID, team)
			}
		}(i)
	}

	for _, team := range teams {
		jobs <- team
	}
	close(jobs)

	wg.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			result.Errors = append(result.Errors, r.err.Error())
			continue
		}
		if r.created {
			result.TeamsCreated++
		} else {
			result.TeamsUpdated++
		}
		result.ReposRecorded += r.repos
		result.ReposEligible += r.eligible
	}
	slices.Sort(result.Errors)

	s.logger.Info("Team sync complete",
		"org", org,
		"teams_found", result.TeamsFound,
		"teams_created", result.TeamsCreated,
		"teams_updated", result.TeamsUpdated,
		"repos_recorded", result.ReposRecorded,
		"repos_eligible", result.ReposEligible,
		"errors", len(result.Errors))

	return result, nil
}

func (s *TeamSyncer) syncTeam(ctx context.Context, workerID int, team source.Team) teamSyncResult {
	if err := ctx.Err(); err != nil {
		return teamSyncResult{err: fmt.Errorf("%s/%s: %w", team.Org, team.Slug, err)}
	}

	s.logger.Debug("Worker syncing team",
		"worker_id", workerID,
		"team", team.Org+"/"+team.Slug)

	memberCount := team.MemberCount
	members, err := s.connector.ListTeamMembers(ctx, team.Org, team.Slug)
	switch {
	case errors.Is(err, source.ErrTeamNotFound):
		s.logger.Warn("Team disappeared during sync", "team", team.Org+"/"+team.Slug)
		return teamSyncResult{err: fmt.Errorf("%s/%s: %w", team.Org, team.Slug, err)}
	case err != nil:
		// Member counts are informational, keep going with what the listing said
		s.logger.Warn("Failed to list team members",
			"team", team.Org+"/"+team.Slug,
			"error", err)
	default:
		memberCount = len(members)
	}

	created, err := s.store.UpsertSourceTeam(ctx, team.Org, team.Slug, team.Name, memberCount)
	if err != nil {
		return teamSyncResult{err: fmt.Errorf("%s/%s: %w", team.Org, team.Slug, err)}
	}

	repos, err := s.connector.ListTeamRepositories(ctx, team.Org, team.Slug)
	if err != nil {
		return teamSyncResult{created: created, err: fmt.Errorf("%s/%s: %w", team.Org, team.Slug, err)}
	}

	rows := make([]*models.TeamRepository, 0, len(repos))
	for _, r := range repos {
		perm := models.NormalizePermission(r.Permission)
		if perm == "" {
			perm = models.PermissionPull
		}
		rows = append(rows, &models.TeamRepository{
			SourceOrg:          team.Org,
			SourceTeamSlug:     team.Slug,
			SourceRepoFullName: r.FullName,
			Permission:         perm,
			Visibility:         r.Visibility,
			Archived:           r.Archived,
			Eligible:           s.IsEligible(r),
		})
	}

	counts, err := s.store.ReplaceTeamRepositories(ctx, team.Org, team.Slug, rows)
	if err != nil {
		return teamSyncResult{created: created, err: fmt.Errorf("%s/%s: %w", team.Org, team.Slug, err)}
	}

	return teamSyncResult{created: created, repos: counts.Total, eligible: counts.Eligible}
}
