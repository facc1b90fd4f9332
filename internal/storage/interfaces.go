package storage

import (
	"context"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// TeamMappingReader defines read operations for team mappings.
type TeamMappingReader interface {
	// GetTeamMapping returns nil, nil when the mapping does not exist.
	GetTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string) (*models.TeamMapping, error)
	// ListTeamMappings returns a page of mappings and the total matching count.
	ListTeamMappings(ctx context.Context, filters TeamMappingFilters) ([]*models.TeamMapping, int64, error)
	GetTeamMappingStats(ctx context.Context, orgFilter string) (*models.TeamMappingStats, error)
	GetTeamMigrationExecutionStats(ctx context.Context) (*models.TeamExecutionStats, error)
	GetTeamSourceOrgs(ctx context.Context) ([]string, error)
}

// TeamMappingWriter defines write operations for team mappings.
type TeamMappingWriter interface {
	SaveTeamMapping(ctx context.Context, mapping *models.TeamMapping) error
	// UpdateTeamMapping returns ErrNotFound when the mapping does not exist.
	UpdateTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string, edit TeamMappingEdit) (*models.TeamMapping, error)
	ImportTeamMappings(ctx context.Context, mappings []*models.TeamMapping) (created, updated int, err error)
	// DeleteTeamMapping returns ErrNotFound when nothing was deleted.
	DeleteTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string) error
}

// TeamMappingStore combines read and write operations for team mappings.
type TeamMappingStore interface {
	TeamMappingReader
	TeamMappingWriter
}

// TeamSyncStore is what source sync needs to record teams and their repositories.
type TeamSyncStore interface {
	UpsertSourceTeam(ctx context.Context, sourceOrg, slug, name string, memberCount int) (bool, error)
	ReplaceTeamRepositories(ctx context.Context, sourceOrg, sourceTeamSlug string, repos []*models.TeamRepository) (TeamRepoCounts, error)
}

// Compile-time checks.
var (
	_ TeamMappingStore = (*Database)(nil)
	_ TeamSyncStore    = (*Database)(nil)
)
