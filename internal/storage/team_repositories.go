package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// TeamRepoCounts are the per-team repository totals kept on the mapping row.
type TeamRepoCounts struct {
	Total    int
	Eligible int
	Synced   int
}

// ReplaceTeamRepositories makes the stored repository list for a team match
// what the source reports. Rows that keep the same permission keep their
// synced state; a changed permission must be applied again. Repositories no
// longer visible to the team are dropped. The mapping's counters are
// recomputed in the same transaction.
func (d *Database) ReplaceTeamRepositories(ctx context.Context, sourceOrg, sourceTeamSlug string, repos []*models.TeamRepository) (TeamRepoCounts, error) {
	var counts TeamRepoCounts

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []*models.TeamRepository
		if err := tx.Where(whereSourceTeam, sourceOrg, sourceTeamSlug).Find(&existing).Error; err != nil {
			return fmt.Errorf("failed to load team repositories: %w", err)
		}
		byName := make(map[string]*models.TeamRepository, len(existing))
		for _, r := range existing {
			byName[r.SourceRepoFullName] = r
		}

		seen := make(map[string]bool, len(repos))
		for _, incoming := range repos {
			if seen[incoming.SourceRepoFullName] {
				continue
			}
			seen[incoming.SourceRepoFullName] = true

			if current, ok := byName[incoming.SourceRepoFullName]; ok {
				updates := map[string]any{
					"permission": incoming.Permission,
					"visibility": incoming.Visibility,
					"archived":   incoming.Archived,
					"eligible":   incoming.Eligible,
					"updated_at": time.Now(),
				}
				if current.Permission != incoming.Permission {
					updates["synced"] = false
					updates["synced_at"] = nil
				}
				if err := tx.Model(current).Updates(updates).Error; err != nil {
					return fmt.Errorf("failed to update team repository %s: %w", incoming.SourceRepoFullName, err)
				}
				continue
			}

			row := *incoming
			row.ID = 0
			row.SourceOrg = sourceOrg
			row.SourceTeamSlug = sourceTeamSlug
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to create team repository %s: %w", incoming.SourceRepoFullName, err)
			}
		}

		var stale []int64
		for name, r := range byName {
			if !seen[name] {
				stale = append(stale, r.ID)
			}
		}
		if len(stale) > 0 {
			if err := tx.Delete(&models.TeamRepository{}, stale).Error; err != nil {
				return fmt.Errorf("failed to prune team repositories: %w", err)
			}
		}

		var err error
		counts, err = refreshCounts(tx, sourceOrg, sourceTeamSlug)
		return err
	})
	if err != nil {
		return TeamRepoCounts{}, err
	}
	return counts, nil
}

// RefreshTeamRepoCounts recomputes total/eligible/synced from the repository
// rows and writes them to the mapping.
func (d *Database) RefreshTeamRepoCounts(ctx context.Context, sourceOrg, sourceTeamSlug string) (TeamRepoCounts, error) {
	return refreshCounts(d.db.WithContext(ctx), sourceOrg, sourceTeamSlug)
}

func refreshCounts(tx *gorm.DB, sourceOrg, sourceTeamSlug string) (TeamRepoCounts, error) {
	var total, eligible, synced int64
	base := func() *gorm.DB {
		return tx.Model(&models.TeamRepository{}).Where(whereSourceTeam, sourceOrg, sourceTeamSlug)
	}
	if err := base().Count(&total).Error; err != nil {
		return TeamRepoCounts{}, fmt.Errorf("failed to count team repositories: %w", err)
	}
	if err := base().Where("eligible = ?", true).Count(&eligible).Error; err != nil {
		return TeamRepoCounts{}, fmt.Errorf("failed to count eligible repositories: %w", err)
	}
	if err := base().Where("eligible = ? AND synced = ?", true, true).Count(&synced).Error; err != nil {
		return TeamRepoCounts{}, fmt.Errorf("failed to count synced repositories: %w", err)
	}

	counts := TeamRepoCounts{Total: int(total), Eligible: int(eligible), Synced: int(synced)}
	err := tx.Model(&models.TeamMapping{}).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		Updates(map[string]any{
			"total_source_repos": counts.Total,
			"repos_eligible":     counts.Eligible,
			"repos_synced":       counts.Synced,
			"updated_at":         time.Now(),
		}).Error
	if err != nil {
		return TeamRepoCounts{}, fmt.Errorf("failed to update team repository counts: %w", err)
	}
	return counts, nil
}

// ListTeamRepositories returns every stored repository for a team.
func (d *Database) ListTeamRepositories(ctx context.Context, sourceOrg, sourceTeamSlug string) ([]*models.TeamRepository, error) {
	var repos []*models.TeamRepository
	err := d.db.WithContext(ctx).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		Order("source_repo_full_name ASC").
		Find(&repos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list team repositories: %w", err)
	}
	return repos, nil
}

// ListEligibleTeamRepositories returns the repositories whose permissions
// should exist in the destination, already-synced ones included.
func (d *Database) ListEligibleTeamRepositories(ctx context.Context, sourceOrg, sourceTeamSlug string) ([]*models.TeamRepository, error) {
	var repos []*models.TeamRepository
	err := d.db.WithContext(ctx).
		Where(whereSourceTeam, sourceOrg, sourceTeamSlug).
		Where("eligible = ?", true).
		Order("source_repo_full_name ASC").
		Find(&repos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible team repositories: %w", err)
	}
	return repos, nil
}

// MarkTeamRepositorySynced records that the permission now exists in the destination.
func (d *Database) MarkTeamRepositorySynced(ctx context.Context, sourceOrg, sourceTeamSlug, repoFullName string) error {
	now := time.Now()
	result := d.db.WithContext(ctx).Model(&models.TeamRepository{}).
		Where(whereSourceTeam+" AND source_repo_full_name = ?", sourceOrg, sourceTeamSlug, repoFullName).
		Updates(map[string]any{
			"synced":        true,
			"synced_at":     &now,
			"error_message": nil,
			"updated_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark team repository synced: %w", result.Error)
	}
	return nil
}

// MarkTeamRepositoryFailed stores the last error for a repository without
// touching its synced flag.
func (d *Database) MarkTeamRepositoryFailed(ctx context.Context, sourceOrg, sourceTeamSlug, repoFullName, errMsg string) error {
	result := d.db.WithContext(ctx).Model(&models.TeamRepository{}).
		Where(whereSourceTeam+" AND source_repo_full_name = ?", sourceOrg, sourceTeamSlug, repoFullName).
		Updates(map[string]any{
			"error_message": errMsg,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark team repository failed: %w", result.Error)
	}
	return nil
}
