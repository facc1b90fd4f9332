package models

import (
	"encoding/json"
	"time"
)

// TeamMapping links a source team to its destination team and carries the
// orchestrator's tracking state for that team.
type TeamMapping struct {
	ID                  int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceOrg           string          `json:"source_org" gorm:"column:source_org;not null;uniqueIndex:idx_team_mapping_source,priority:1"`
	SourceTeamSlug      string          `json:"source_team_slug" gorm:"column:source_team_slug;not null;uniqueIndex:idx_team_mapping_source,priority:2"`
	SourceTeamName      *string         `json:"source_team_name,omitempty" gorm:"column:source_team_name"`
	SourceMemberCount   int             `json:"source_member_count" gorm:"column:source_member_count;default:0"`
	DestinationOrg      *string         `json:"destination_org,omitempty" gorm:"column:destination_org;index"`
	DestinationTeamSlug *string         `json:"destination_team_slug,omitempty" gorm:"column:destination_team_slug"`
	DestinationTeamName *string         `json:"destination_team_name,omitempty" gorm:"column:destination_team_name"`
	MappingStatus       MappingStatus   `json:"mapping_status" gorm:"column:mapping_status;not null;default:unmapped;index"`
	MigrationStatus     MigrationStatus `json:"migration_status" gorm:"column:migration_status;not null;default:pending;index"`
	ErrorMessage        *string         `json:"error_message,omitempty" gorm:"column:error_message;type:text"`
	TeamCreatedInDest   bool            `json:"team_created_in_dest" gorm:"column:team_created_in_dest;default:false"`
	TotalSourceRepos    int             `json:"total_source_repos" gorm:"column:total_source_repos;default:0"`
	ReposEligible       int             `json:"repos_eligible" gorm:"column:repos_eligible;default:0"`
	ReposSynced         int             `json:"repos_synced" gorm:"column:repos_synced;default:0"`
	ReposFailed         int             `json:"repos_failed" gorm:"column:repos_failed;default:0"`
	LastSyncedAt        *time.Time      `json:"last_synced_at,omitempty" gorm:"column:last_synced_at"`
	MigratedAt          *time.Time      `json:"migrated_at,omitempty" gorm:"column:migrated_at"`
	CreatedAt           time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time       `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for TeamMapping
func (TeamMapping) TableName() string { return "team_mappings" }

// SourceFullSlug returns "org/slug" for the source team.
func (m *TeamMapping) SourceFullSlug() string {
	return m.SourceOrg + "/" + m.SourceTeamSlug
}

// HasDestination reports whether both destination org and slug are set.
func (m *TeamMapping) HasDestination() bool {
	return m.DestinationOrg != nil && *m.DestinationOrg != "" &&
		m.DestinationTeamSlug != nil && *m.DestinationTeamSlug != ""
}

// DestinationFullSlug returns "org/slug" for the destination team, or "" when unmapped.
func (m *TeamMapping) DestinationFullSlug() string {
	if !m.HasDestination() {
		return ""
	}
	return *m.DestinationOrg + "/" + *m.DestinationTeamSlug
}

// DestinationName picks the display name used when creating the team.
func (m *TeamMapping) DestinationName() string {
	if m.DestinationTeamName != nil && *m.DestinationTeamName != "" {
		return *m.DestinationTeamName
	}
	if m.SourceTeamName != nil && *m.SourceTeamName != "" {
		return *m.SourceTeamName
	}
	if m.DestinationTeamSlug != nil && *m.DestinationTeamSlug != "" {
		return *m.DestinationTeamSlug
	}
	return m.SourceTeamSlug
}

// SyncStatus derives the sync status from the tracking fields.
func (m *TeamMapping) SyncStatus() SyncStatus {
	return DeriveSyncStatus(ParseMigrationStatus(string(m.MigrationStatus)), m.TeamCreatedInDest, m.ReposEligible, m.ReposSynced)
}

// MarshalJSON adds the derived sync_status to the serialized mapping.
func (m TeamMapping) MarshalJSON() ([]byte, error) {
	type alias TeamMapping
	return json.Marshal(struct {
		alias
		SyncStatus SyncStatus `json:"sync_status"`
	}{
		alias:      alias(m),
		SyncStatus: m.SyncStatus(),
	})
}

// TeamMappingStats summarizes mappings by mapping status.
type TeamMappingStats struct {
	Total    int64 `json:"total"`
	Mapped   int64 `json:"mapped"`
	Unmapped int64 `json:"unmapped"`
	Skipped  int64 `json:"skipped"`
}

// TeamExecutionStats summarizes mappings by migration and derived sync status.
type TeamExecutionStats struct {
	Pending            int64 `json:"pending"`
	InProgress         int64 `json:"in_progress"`
	Completed          int64 `json:"completed"`
	Failed             int64 `json:"failed"`
	NeedsSync          int64 `json:"needs_sync"`
	TeamOnly           int64 `json:"team_only"`
	Partial            int64 `json:"partial"`
	Complete           int64 `json:"complete"`
	TotalReposSynced   int64 `json:"total_repos_synced"`
	TotalReposEligible int64 `json:"total_repos_eligible"`
}
