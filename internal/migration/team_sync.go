package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kuhlman-labs/team-migrator/internal/github"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// teamResult is the outcome of one team. err is a team-level failure;
// repository failures are counted separately and leave err nil.
type teamResult struct {
	created        bool
	reposAttempted int
	reposSynced    int
	reposFailed    int
	lastRepoErr    error
	err            error
	storeErr       error

	// claimedElsewhere is set when another run holds the team.
	claimedElsewhere bool
}

// syncTeam moves one team through team check, team creation when absent,
// and the repository permission loop. Teams are created without members so
// an identity provider can own membership; only repository permissions are
// applied. In dry-run mode destination writes are logged instead and no
// mapping row is touched.
//
//nolint:gocyclo // one sequential protocol with an exit per failure
func (o *Orchestrator) syncTeam(ctx context.Context, mapping *models.TeamMapping, dryRun bool) teamResult {
	var result teamResult

	if !mapping.HasDestination() {
		result.err = fmt.Errorf("%w: destination org or team slug is not set", ErrDestinationCreateFailed)
		result.storeErr = o.markFailed(ctx, mapping, result.err, dryRun)
		return result
	}

	sourceOrg, sourceSlug := mapping.SourceOrg, mapping.SourceTeamSlug
	destOrg, destSlug := *mapping.DestinationOrg, *mapping.DestinationTeamSlug
	team := mapping.SourceFullSlug()

	o.logger.Info("Processing team mapping",
		"source", team,
		"destination", destOrg+"/"+destSlug,
		"dry_run", dryRun,
		"is_resync", mapping.TeamCreatedInDest,
		"previous_repos_synced", mapping.ReposSynced)

	if !dryRun {
		claimed, err := o.store.ClaimTeamMigration(ctx, sourceOrg, sourceSlug)
		if err != nil {
			result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
			return result
		}
		if !claimed {
			result.claimedElsewhere = true
			return result
		}
	}

	// Team check
	existing, err := o.dest.GetTeamBySlug(ctx, destOrg, destSlug)
	if err != nil {
		result.err = fmt.Errorf("%w: failed to check destination team %s/%s: %w", ErrDestinationCreateFailed, destOrg, destSlug, err)
		result.storeErr = o.markFailed(ctx, mapping, result.err, dryRun)
		return result
	}

	// Team create
	if existing == nil {
		created, err := o.createTeam(ctx, mapping, destOrg, destSlug, dryRun)
		switch {
		case err != nil && github.IsUnprocessableError(err):
			// Lost a race with another writer, or the name already exists
			existing, err = o.dest.GetTeamBySlug(ctx, destOrg, destSlug)
			if err != nil || existing == nil {
				if err == nil {
					err = fmt.Errorf("team name is taken but %s/%s does not exist", destOrg, destSlug)
				}
				result.err = fmt.Errorf("%w: %w", ErrDestinationCreateFailed, err)
				result.storeErr = o.markFailed(ctx, mapping, result.err, dryRun)
				return result
			}
			o.logger.Info("Team already exists in destination", "org", destOrg, "slug", destSlug)
		case err != nil:
			result.err = fmt.Errorf("%w: %w", ErrDestinationCreateFailed, err)
			result.storeErr = o.markFailed(ctx, mapping, result.err, dryRun)
			return result
		default:
			result.created = true
			if created != nil && created.Slug != "" && created.Slug != destSlug {
				o.logger.Warn("Destination assigned a different team slug",
					"expected", destSlug,
					"actual", created.Slug)
				destSlug = created.Slug
			}
		}
	} else if mapping.TeamCreatedInDest {
		o.logger.Info("Re-syncing team permissions (team already exists)", "org", destOrg, "slug", destSlug)
	} else {
		o.logger.Info("Team already exists in destination", "org", destOrg, "slug", destSlug)
	}

	if !dryRun && (result.created || !mapping.TeamCreatedInDest) {
		teamCreated := true
		if err := o.store.UpdateTeamMigrationTracking(ctx, sourceOrg, sourceSlug, storage.TeamMigrationTrackingUpdate{
			TeamCreatedInDest: &teamCreated,
		}); err != nil {
			result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
			return result
		}
	}

	// Repository permissions
	repos, err := o.store.ListEligibleTeamRepositories(ctx, sourceOrg, sourceSlug)
	if err != nil {
		result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
		_ = o.markFailed(ctx, mapping, result.storeErr, dryRun)
		return result
	}

	for _, repo := range repos {
		if repo.Synced {
			continue
		}
		result.reposAttempted++
		owner, name := destinationRepo(repo, destOrg)

		if dryRun {
			o.logger.Info("DRY RUN: Would apply repo permission",
				"team", destOrg+"/"+destSlug,
				"repo", owner+"/"+name,
				"permission", repo.Permission)
			result.reposSynced++
			continue
		}

		if err := o.dest.AddTeamRepoPermission(ctx, destOrg, destSlug, owner, name, repo.Permission); err != nil {
			result.reposFailed++
			result.lastRepoErr = fmt.Errorf("%w: %s: %w", ErrDestinationPermissionFailed, owner+"/"+name, err)
			o.logger.Warn("Failed to apply repo permission",
				"team", destOrg+"/"+destSlug,
				"repo", owner+"/"+name,
				"permission", repo.Permission,
				"error", err)
			if markErr := o.store.MarkTeamRepositoryFailed(ctx, sourceOrg, sourceSlug, repo.SourceRepoFullName, err.Error()); markErr != nil {
				result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, markErr)
				return result
			}
			continue
		}

		if err := o.store.MarkTeamRepositorySynced(ctx, sourceOrg, sourceSlug, repo.SourceRepoFullName); err != nil {
			result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
			return result
		}
		result.reposSynced++
		o.logger.Debug("Applied repo permission",
			"team", destOrg+"/"+destSlug,
			"repo", owner+"/"+name,
			"permission", repo.Permission)
	}

	if dryRun {
		o.logger.Info("DRY RUN: Team migration preview complete",
			"team", team,
			"would_create", result.created,
			"repos_to_sync", result.reposSynced,
			"repos_eligible", len(repos))
		return result
	}

	counts, err := o.store.RefreshTeamRepoCounts(ctx, sourceOrg, sourceSlug)
	if err != nil {
		result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
		return result
	}
	reposFailed := result.reposFailed
	tracking := storage.TeamMigrationTrackingUpdate{ReposFailed: &reposFailed}
	if result.reposSynced > 0 {
		// Also stamps last_synced_at.
		tracking.ReposSynced = &counts.Synced
	}
	if err := o.store.UpdateTeamMigrationTracking(ctx, sourceOrg, sourceSlug, tracking); err != nil {
		result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
		return result
	}

	var errMsg *string
	if result.reposFailed > 0 {
		msg := fmt.Sprintf("%d of %d repository permissions failed; last error: %s",
			result.reposFailed, result.reposAttempted, result.lastRepoErr.Error())
		errMsg = &msg
	}
	if err := o.store.UpdateTeamMigrationStatus(ctx, sourceOrg, sourceSlug, models.MigrationCompleted, errMsg); err != nil {
		result.storeErr = fmt.Errorf("%w: %w", errStoreUnavailable, err)
		return result
	}

	o.logger.Info("Team migration completed",
		"team", team,
		"created", result.created,
		"sync_status", models.DeriveSyncStatus(models.MigrationCompleted, true, counts.Eligible, counts.Synced),
		"repos_synced", counts.Synced,
		"repos_eligible", counts.Eligible,
		"repos_failed", result.reposFailed)

	return result
}

// createTeam creates the destination team empty. With a personal access
// token GitHub makes the token owner a maintainer; they are removed again
// when configured.
func (o *Orchestrator) createTeam(ctx context.Context, mapping *models.TeamMapping, destOrg, destSlug string, dryRun bool) (*github.TeamInfo, error) {
	name := mapping.DestinationName()

	if dryRun {
		o.logger.Info("DRY RUN: Would create team", "org", destOrg, "slug", destSlug, "name", name)
		if o.removePATOwner && o.dest.IsPATAuthenticated() {
			o.logger.Info("DRY RUN: Would remove PAT owner from team after creation")
		}
		return nil, nil
	}

	created, err := o.dest.CreateTeam(ctx, destOrg, github.CreateTeamInput{
		Name:    name,
		Privacy: github.TeamPrivacyClosed,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Info("Created team in destination", "org", destOrg, "slug", created.Slug, "name", name)

	if o.removePATOwner && o.dest.IsPATAuthenticated() {
		o.removeTokenOwner(ctx, destOrg, created.Slug)
	}
	return created, nil
}

func (o *Orchestrator) removeTokenOwner(ctx context.Context, org, slug string) {
	login, err := o.dest.GetAuthenticatedUserLogin(ctx)
	if err != nil || login == "" {
		o.logger.Warn("Failed to get PAT owner login, cannot remove from team",
			"team", org+"/"+slug,
			"error", err)
		return
	}
	if err := o.dest.RemoveTeamMembership(ctx, org, slug, login); err != nil && !github.IsNotFoundError(err) {
		o.logger.Warn("Failed to remove PAT owner from team",
			"team", org+"/"+slug,
			"user", login,
			"error", err)
		return
	}
	o.logger.Info("Removed PAT owner from team", "team", org+"/"+slug, "user", login)
}

// markFailed records a team-level failure. Failed teams stay mapped so a
// later run retries them. A non-nil return means the store itself failed.
func (o *Orchestrator) markFailed(ctx context.Context, mapping *models.TeamMapping, cause error, dryRun bool) error {
	if dryRun {
		return nil
	}
	msg := cause.Error()
	if err := o.store.UpdateTeamMigrationStatus(ctx, mapping.SourceOrg, mapping.SourceTeamSlug, models.MigrationFailed, &msg); err != nil {
		if errors.Is(cause, errStoreUnavailable) {
			return cause
		}
		return fmt.Errorf("%w: %w", errStoreUnavailable, err)
	}
	return nil
}

// destinationRepo resolves where a permission is granted. Repositories land
// in the destination org unless an explicit owner/name override is stored.
func destinationRepo(repo *models.TeamRepository, destOrg string) (owner, name string) {
	if repo.DestinationRepoFullName != nil {
		if ow, n, ok := strings.Cut(*repo.DestinationRepoFullName, "/"); ok && ow != "" && n != "" {
			return ow, n
		}
	}
	return destOrg, repo.DestinationRepoName()
}
