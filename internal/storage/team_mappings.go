package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

const whereSourceTeam = "source_org = ? AND source_team_slug = ?"

// SaveTeamMapping inserts or updates a team mapping in the database
func (d *Database) SaveTeamMapping(ctx context.Context, mapping *models.TeamMapping) error {
	var existing models.TeamMapping
	err := d.db.WithContext(ctx).
		Where(whereSourceTeam, mapping.SourceOrg, mapping.SourceTeamSlug).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if mapping.MappingStatus == "" {
			mapping.MappingStatus = models.MappingStatusUnmapped
		}
		if mapping.MigrationStatus == "" {
			mapping.MigrationStatus = models.MigrationPending
		}
		if err := d.db.WithContext(ctx).Create(mapping).Error; err != nil {
			return fmt.Errorf("failed to create team mapping: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check existing team mapping: %w", err)
	}

	mapping.ID = existing.ID
	mapping.CreatedAt = existing.CreatedAt
	if mapping.MappingStatus == "" {
		mapping.MappingStatus = existing.MappingStatus
	}
	if mapping.MigrationStatus == "" {
		mapping.MigrationStatus = existing.MigrationStatus
	}
	if err := d.db.WithContext(ctx).Save(mapping).Error; err != nil {
		return fmt.Errorf("failed to update team mapping: %w", err)
	}
	return nil
}

// GetTeamMapping retrieves a team mapping by source org and team slug.
// It returns nil, nil when the mapping does not exist.
func (d *Database) GetTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string) (*models.TeamMapping, error) {
	var mapping models.TeamMapping
	err := d.db.WithContext(ctx).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		First(&mapping).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team mapping: %w", err)
	}
	return &mapping, nil
}

// TeamMappingFilters defines filters for listing team mappings
type TeamMappingFilters struct {
	SourceOrg      string            // Filter by source organization
	DestinationOrg string            // Filter by destination organization
	Status         string            // Filter by mapping_status
	SyncStatus     models.SyncStatus // Filter by derived sync status
	Search         string            // Search in team names/slugs
	Limit          int
	Offset         int
}

// ListTeamMappings returns a page of mappings and the total matching count.
func (d *Database) ListTeamMappings(ctx context.Context, filters TeamMappingFilters) ([]*models.TeamMapping, int64, error) {
	var mappings []*models.TeamMapping
	var total int64

	query := d.db.WithContext(ctx).Model(&models.TeamMapping{})

	if filters.SourceOrg != "" {
		query = query.Where("source_org = ?", filters.SourceOrg)
	}
	if filters.DestinationOrg != "" {
		query = query.Where("destination_org = ?", filters.DestinationOrg)
	}
	if filters.Status != "" {
		query = query.Where("mapping_status = ?", filters.Status)
	}
	if filters.SyncStatus != "" {
		query = query.Scopes(syncStatusScope(filters.SyncStatus))
	}
	if filters.Search != "" {
		searchPattern := "%" + filters.Search + "%"
		query = query.Where(
			"source_team_slug LIKE ? OR source_team_name LIKE ? OR destination_team_slug LIKE ? OR destination_team_name LIKE ?",
			searchPattern, searchPattern, searchPattern, searchPattern,
		)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count team mappings: %w", err)
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("source_org ASC, source_team_slug ASC").Find(&mappings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list team mappings: %w", err)
	}

	return mappings, total, nil
}

// syncStatusScope expresses models.DeriveSyncStatus as a WHERE clause so the
// derived status can be filtered and paginated in the database.
func syncStatusScope(status models.SyncStatus) func(*gorm.DB) *gorm.DB {
	active := []string{
		string(models.MigrationPending),
		string(models.MigrationInProgress),
		string(models.MigrationCompleted),
	}
	return func(db *gorm.DB) *gorm.DB {
		if status == models.SyncStatusFailed {
			return db.Where("migration_status = ?", models.MigrationFailed)
		}

		db = db.Where("migration_status IN ?", active)
		switch status {
		case models.SyncStatusPending:
			return db.Where("team_created_in_dest = ?", false)
		case models.SyncStatusTeamOnly:
			return db.Where("team_created_in_dest = ? AND repos_eligible = 0", true)
		case models.SyncStatusComplete:
			return db.Where("team_created_in_dest = ? AND repos_eligible > 0 AND repos_synced >= repos_eligible", true)
		case models.SyncStatusNeedsSync:
			return db.Where("team_created_in_dest = ? AND repos_eligible > 0 AND repos_synced = 0", true)
		case models.SyncStatusPartial:
			return db.Where("team_created_in_dest = ? AND repos_synced > 0 AND repos_synced < repos_eligible", true)
		default:
			return db.Where("1 = 0")
		}
	}
}

// GetTeamMappingStats counts mappings by mapping status, optionally for one source org.
func (d *Database) GetTeamMappingStats(ctx context.Context, orgFilter string) (*models.TeamMappingStats, error) {
	type row struct {
		MappingStatus string
		Count         int64
	}
	var rows []row

	query := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Select("mapping_status, COUNT(*) AS count").
		Group("mapping_status")
	if orgFilter != "" {
		query = query.Where("source_org = ?", orgFilter)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count mappings: %w", err)
	}

	stats := &models.TeamMappingStats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch models.ParseMappingStatus(r.MappingStatus) {
		case models.MappingStatusMapped:
			stats.Mapped += r.Count
		case models.MappingStatusUnmapped:
			stats.Unmapped += r.Count
		case models.MappingStatusSkipped:
			stats.Skipped += r.Count
		}
	}
	return stats, nil
}

// TeamMappingEdit carries a manual edit. Nil fields are left unchanged; an
// empty string clears the destination field.
type TeamMappingEdit struct {
	DestinationOrg      *string
	DestinationTeamSlug *string
	DestinationTeamName *string
	MappingStatus       *models.MappingStatus
}

// UpdateTeamMapping applies a manual edit and returns the updated row.
// It returns ErrNotFound when the mapping does not exist.
func (d *Database) UpdateTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string, edit TeamMappingEdit) (*models.TeamMapping, error) {
	var updated *models.TeamMapping
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mapping models.TeamMapping
		err := tx.Where(whereSourceTeam, sourceOrg, sourceTeamSlug).First(&mapping).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get team mapping: %w", err)
		}

		if edit.DestinationOrg != nil {
			mapping.DestinationOrg = nilIfEmpty(*edit.DestinationOrg)
		}
		if edit.DestinationTeamSlug != nil {
			mapping.DestinationTeamSlug = nilIfEmpty(*edit.DestinationTeamSlug)
		}
		if edit.DestinationTeamName != nil {
			mapping.DestinationTeamName = nilIfEmpty(*edit.DestinationTeamName)
		}
		if edit.MappingStatus != nil {
			mapping.MappingStatus = *edit.MappingStatus
		}

		if err := tx.Save(&mapping).Error; err != nil {
			return fmt.Errorf("failed to update team mapping: %w", err)
		}
		updated = &mapping
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ImportTeamMappings upserts mapping rows keyed by source org and slug. Only
// the user-owned fields are written on existing rows so migration tracking
// survives a re-import.
func (d *Database) ImportTeamMappings(ctx context.Context, mappings []*models.TeamMapping) (created, updated int, err error) {
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range mappings {
			var existing models.TeamMapping
			findErr := tx.Where(whereSourceTeam, m.SourceOrg, m.SourceTeamSlug).First(&existing).Error

			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				row := *m
				row.ID = 0
				if row.MappingStatus == "" {
					row.MappingStatus = models.MappingStatusUnmapped
				}
				row.MigrationStatus = models.MigrationPending
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("failed to create team mapping %s: %w", m.SourceFullSlug(), err)
				}
				created++
				continue
			}
			if findErr != nil {
				return fmt.Errorf("failed to check existing team mapping: %w", findErr)
			}

			updates := map[string]any{
				"destination_org":       m.DestinationOrg,
				"destination_team_slug": m.DestinationTeamSlug,
				"destination_team_name": m.DestinationTeamName,
				"updated_at":            time.Now(),
			}
			if m.MappingStatus != "" {
				updates["mapping_status"] = string(m.MappingStatus)
			}
			if m.SourceTeamName != nil {
				updates["source_team_name"] = m.SourceTeamName
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update team mapping %s: %w", m.SourceFullSlug(), err)
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}

// UpsertSourceTeam records a team seen in the source. New teams are created
// unmapped; existing rows only get their source details refreshed.
func (d *Database) UpsertSourceTeam(ctx context.Context, sourceOrg, slug, name string, memberCount int) (bool, error) {
	var existing models.TeamMapping
	err := d.db.WithContext(ctx).Where(whereSourceTeam, sourceOrg, slug).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		mapping := &models.TeamMapping{
			SourceOrg:         sourceOrg,
			SourceTeamSlug:    slug,
			SourceTeamName:    nilIfEmpty(name),
			SourceMemberCount: memberCount,
			MappingStatus:     models.MappingStatusUnmapped,
			MigrationStatus:   models.MigrationPending,
		}
		if err := d.db.WithContext(ctx).Create(mapping).Error; err != nil {
			return false, fmt.Errorf("failed to create team mapping: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing team mapping: %w", err)
	}

	err = d.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"source_team_name":    nilIfEmpty(name),
		"source_member_count": memberCount,
		"updated_at":          time.Now(),
	}).Error
	if err != nil {
		return false, fmt.Errorf("failed to update source team: %w", err)
	}
	return false, nil
}

// DeleteTeamMapping deletes a mapping and its repository rows. It returns
// ErrNotFound when nothing was deleted.
func (d *Database) DeleteTeamMapping(ctx context.Context, sourceOrg, sourceTeamSlug string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(whereSourceTeam, sourceOrg, sourceTeamSlug).Delete(&models.TeamMapping{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete team mapping: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where(whereSourceTeam, sourceOrg, sourceTeamSlug).Delete(&models.TeamRepository{}).Error; err != nil {
			return fmt.Errorf("failed to delete team repositories: %w", err)
		}
		return nil
	})
}

// UpdateTeamMigrationStatus sets the migration status. Completing a team
// stamps migrated_at and clears the previous error unless errMsg is set.
func (d *Database) UpdateTeamMigrationStatus(ctx context.Context, sourceOrg, sourceTeamSlug string, status models.MigrationStatus, errMsg *string) error {
	updates := map[string]any{
		"migration_status": string(status),
		"updated_at":       time.Now(),
	}

	if status == models.MigrationCompleted {
		now := time.Now()
		updates["migrated_at"] = &now
		updates["error_message"] = nil
	}
	if errMsg != nil {
		updates["error_message"] = *errMsg
	}

	result := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update team migration status: %w", result.Error)
	}
	return nil
}

// ClaimTeamMigration moves a team to in_progress unless a run already holds
// it. The check and the write are one statement, so of two processes sharing
// the store only one wins. It reports whether this caller won.
func (d *Database) ClaimTeamMigration(ctx context.Context, sourceOrg, sourceTeamSlug string) (bool, error) {
	result := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		Where("migration_status <> ?", models.MigrationInProgress).
		Updates(map[string]any{
			"migration_status": string(models.MigrationInProgress),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim team migration: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// TeamMigrationTrackingUpdate holds the tracking fields to change; nil
// fields are left as they are.
type TeamMigrationTrackingUpdate struct {
	TeamCreatedInDest *bool
	TotalSourceRepos  *int
	ReposEligible     *int
	ReposSynced       *int
	ReposFailed       *int
}

func (d *Database) UpdateTeamMigrationTracking(ctx context.Context, sourceOrg, sourceTeamSlug string, update TeamMigrationTrackingUpdate) error {
	updates := map[string]any{
		"updated_at": time.Now(),
	}

	if update.TeamCreatedInDest != nil {
		updates["team_created_in_dest"] = *update.TeamCreatedInDest
	}
	if update.TotalSourceRepos != nil {
		updates["total_source_repos"] = *update.TotalSourceRepos
	}
	if update.ReposEligible != nil {
		updates["repos_eligible"] = *update.ReposEligible
	}
	if update.ReposSynced != nil {
		updates["repos_synced"] = *update.ReposSynced
		now := time.Now()
		updates["last_synced_at"] = &now
	}
	if update.ReposFailed != nil {
		updates["repos_failed"] = *update.ReposFailed
	}

	result := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update team migration tracking: %w", result.Error)
	}
	return nil
}

// GetMappedTeamsForMigration returns the working set for a run: mapped teams
// that are pending or failed, plus completed teams that still have eligible
// repositories without permissions applied.
func (d *Database) GetMappedTeamsForMigration(ctx context.Context, sourceOrgFilter string) ([]*models.TeamMapping, error) {
	var mappings []*models.TeamMapping

	query := d.db.WithContext(ctx).
		Where("mapping_status = ?", models.MappingStatusMapped).
		Where(
			"migration_status IN ? OR (migration_status = ? AND repos_synced < repos_eligible)",
			[]string{string(models.MigrationPending), string(models.MigrationFailed), ""},
			models.MigrationCompleted,
		)

	if sourceOrgFilter != "" {
		query = query.Where("source_org = ?", sourceOrgFilter)
	}

	if err := query.Order("source_org ASC, source_team_slug ASC").Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("failed to get mapped teams for migration: %w", err)
	}
	return mappings, nil
}

// GetTeamMigrationExecutionStats summarizes mapped teams by migration status
// and by derived sync status.
func (d *Database) GetTeamMigrationExecutionStats(ctx context.Context) (*models.TeamExecutionStats, error) {
	type row struct {
		MigrationStatus   string
		TeamCreatedInDest bool
		ReposEligible     int
		ReposSynced       int
	}
	var rows []row

	err := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Select("migration_status, team_created_in_dest, repos_eligible, repos_synced").
		Where("mapping_status = ?", models.MappingStatusMapped).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load execution stats: %w", err)
	}

	stats := &models.TeamExecutionStats{}
	for _, r := range rows {
		status := models.ParseMigrationStatus(r.MigrationStatus)
		switch status {
		case models.MigrationPending:
			stats.Pending++
		case models.MigrationInProgress:
			stats.InProgress++
		case models.MigrationCompleted:
			stats.Completed++
		case models.MigrationFailed:
			stats.Failed++
		}

		switch models.DeriveSyncStatus(status, r.TeamCreatedInDest, r.ReposEligible, r.ReposSynced) {
		case models.SyncStatusNeedsSync:
			stats.NeedsSync++
		case models.SyncStatusTeamOnly:
			stats.TeamOnly++
		case models.SyncStatusPartial:
			stats.Partial++
		case models.SyncStatusComplete:
			stats.Complete++
		}

		stats.TotalReposSynced += int64(r.ReposSynced)
		stats.TotalReposEligible += int64(r.ReposEligible)
	}
	return stats, nil
}

// ResetTeamMigrationStatus puts mapped teams back to pending so the next run
// retries them. Destination progress (team_created_in_dest, repos_synced and
// the per-repository synced flags) is kept; the next run skips work that is
// already done.
func (d *Database) ResetTeamMigrationStatus(ctx context.Context, sourceOrgFilter string) (int64, error) {
	query := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Where("mapping_status = ?", models.MappingStatusMapped).
		Where("migration_status NOT IN ?", []string{string(models.MigrationPending), string(models.MigrationInProgress)})

	if sourceOrgFilter != "" {
		query = query.Where("source_org = ?", sourceOrgFilter)
	}

	result := query.Updates(map[string]any{
		"migration_status": string(models.MigrationPending),
		"error_message":    nil,
		"updated_at":       time.Now(),
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset team migration status: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecoverStaleTeamMigrations resolves rows left in_progress by a process
// that exited mid-run. They go back to pending with an explanatory error.
func (d *Database) RecoverStaleTeamMigrations(ctx context.Context) (int64, error) {
	result := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Where("migration_status = ?", models.MigrationInProgress).
		Updates(map[string]any{
			"migration_status": string(models.MigrationPending),
			"error_message":    "migration interrupted before completion; will be retried",
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to recover stale team migrations: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetTeamSourceOrgs returns all distinct source organizations that have mappings
func (d *Database) GetTeamSourceOrgs(ctx context.Context) ([]string, error) {
	var orgs []string
	err := d.db.WithContext(ctx).Model(&models.TeamMapping{}).
		Distinct("source_org").
		Order("source_org ASC").
		Pluck("source_org", &orgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get distinct source organizations: %w", err)
	}
	return orgs, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
