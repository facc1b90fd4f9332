// Package mcp provides a Model Context Protocol server for the team migrator.
// It exposes mapping queries and run control to AI agents.
package mcp

import (
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TeamMappingSummary is the compact mapping view returned by tools
type TeamMappingSummary struct {
	Source          string                 `json:"source"`
	Destination     string                 `json:"destination,omitempty"`
	MappingStatus   models.MappingStatus   `json:"mapping_status"`
	MigrationStatus models.MigrationStatus `json:"migration_status"`
	SyncStatus      models.SyncStatus      `json:"sync_status"`
	ReposEligible   int                    `json:"repos_eligible"`
	ReposSynced     int                    `json:"repos_synced"`
	ReposFailed     int                    `json:"repos_failed"`
	Error           string                 `json:"error,omitempty"`
	MigratedAt      *string                `json:"migrated_at,omitempty"`
}

// TeamRepositorySummary is one repository grant of a team
type TeamRepositorySummary struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Permission  string `json:"permission"`
	Eligible    bool   `json:"eligible"`
	Synced      bool   `json:"synced"`
	Error       string `json:"error,omitempty"`
}

// ------- Tool Output Types -------

// ListTeamMappingsOutput is the output of list_team_mappings
type ListTeamMappingsOutput struct {
	Mappings []TeamMappingSummary `json:"mappings"`
	Returned int                  `json:"returned"`
	Total    int64                `json:"total"`
	Message  string               `json:"message"`
}

// TeamRepositoriesOutput is the output of get_team_repositories
type TeamRepositoriesOutput struct {
	Team         TeamMappingSummary      `json:"team"`
	Repositories []TeamRepositorySummary `json:"repositories"`
	Message      string                  `json:"message"`
}

// MigrationStatusOutput is the output of get_team_migration_status
type MigrationStatusOutput struct {
	IsRunning      bool                       `json:"is_running"`
	Progress       *migration.Progress        `json:"progress"`
	ExecutionStats *models.TeamExecutionStats `json:"execution_stats"`
	MappingStats   *models.TeamMappingStats   `json:"mapping_stats"`
}

// ExecuteOutput is the output of execute_team_migration
type ExecuteOutput struct {
	RunID    string              `json:"run_id"`
	DryRun   bool                `json:"dry_run"`
	Progress *migration.Progress `json:"progress"`
	Message  string              `json:"message"`
}

func mappingToSummary(m *models.TeamMapping) TeamMappingSummary {
	summary := TeamMappingSummary{
		Source:          m.SourceFullSlug(),
		Destination:     m.DestinationFullSlug(),
		MappingStatus:   m.MappingStatus,
		MigrationStatus: m.MigrationStatus,
		SyncStatus:      m.SyncStatus(),
		ReposEligible:   m.ReposEligible,
		ReposSynced:     m.ReposSynced,
		ReposFailed:     m.ReposFailed,
	}
	if m.ErrorMessage != nil {
		summary.Error = *m.ErrorMessage
	}
	if m.MigratedAt != nil {
		t := m.MigratedAt.Format(time.RFC3339)
		summary.MigratedAt = &t
	}
	return summary
}

func repoToSummary(destOrg string, r *models.TeamRepository) TeamRepositorySummary {
	summary := TeamRepositorySummary{
		Source:     r.SourceRepoFullName,
		Permission: r.Permission,
		Eligible:   r.Eligible,
		Synced:     r.Synced,
	}
	if destOrg != "" {
		summary.Destination = destOrg + "/" + r.DestinationRepoName()
	}
	if r.ErrorMessage != nil {
		summary.Error = *r.ErrorMessage
	}
	return summary
}
