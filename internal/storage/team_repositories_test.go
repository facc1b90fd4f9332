package storage

import (
	"context"
	"testing"

	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTeamRepositories(t *testing.T) {
	db := setupTeamMappingsTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTeamMapping(ctx, createTestTeamMapping("org1", "alpha")))

	counts, err := db.ReplaceTeamRepositories(ctx, "org1", "alpha", []*models.TeamRepository{
		{SourceRepoFullName: "org1/api", Permission: "push", Eligible: true},
		{SourceRepoFullName: "org1/web", Permission: "pull", Eligible: true},
		{SourceRepoFullName: "org1/old", Permission: "admin", Archived: true, Eligible: false},
	})
	require.NoError(t, err)
	assert.Equal(t, TeamRepoCounts{Total: 3, Eligible: 2, Synced: 0}, counts)

	require.NoError(t, db.MarkTeamRepositorySynced(ctx, "org1", "alpha", "org1/api"))
	require.NoError(t, db.MarkTeamRepositorySynced(ctx, "org1", "alpha", "org1/web"))

	t.Run("unchanged permission keeps synced state", func(t *testing.T) {
		counts, err := db.ReplaceTeamRepositories(ctx, "org1", "alpha", []*models.TeamRepository{
			{SourceRepoFullName: "org1/api", Permission: "push", Eligible: true},
			{SourceRepoFullName: "org1/web", Permission: "maintain", Eligible: true},
			{SourceRepoFullName: "org1/new", Permission: "pull", Eligible: true},
		})
		require.NoError(t, err)
		assert.Equal(t, TeamRepoCounts{Total: 3, Eligible: 3, Synced: 1}, counts)

		repos, err := db.ListTeamRepositories(ctx, "org1", "alpha")
		require.NoError(t, err)
		require.Len(t, repos, 3)
		byName := map[string]*models.TeamRepository{}
		for _, r := range repos {
			byName[r.SourceRepoFullName] = r
		}
		assert.True(t, byName["org1/api"].Synced)
		assert.False(t, byName["org1/web"].Synced, "permission change must be re-applied")
		assert.Equal(t, "maintain", byName["org1/web"].Permission)
		assert.NotContains(t, byName, "org1/old")
	})

	t.Run("mapping counters follow repository rows", func(t *testing.T) {
		m, err := db.GetTeamMapping(ctx, "org1", "alpha")
		require.NoError(t, err)
		assert.Equal(t, 3, m.TotalSourceRepos)
		assert.Equal(t, 3, m.ReposEligible)
		assert.Equal(t, 1, m.ReposSynced)
		assert.LessOrEqual(t, m.ReposSynced, m.ReposEligible)
		assert.LessOrEqual(t, m.ReposEligible, m.TotalSourceRepos)
	})
}

func TestListEligibleTeamRepositories(t *testing.T) {
	db := setupTeamMappingsTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTeamMapping(ctx, createTestTeamMapping("org1", "alpha")))

	_, err := db.ReplaceTeamRepositories(ctx, "org1", "alpha", []*models.TeamRepository{
		{SourceRepoFullName: "org1/b", Permission: "push", Eligible: true},
		{SourceRepoFullName: "org1/a", Permission: "push", Eligible: true},
		{SourceRepoFullName: "org1/archived", Permission: "push", Archived: true},
	})
	require.NoError(t, err)

	repos, err := db.ListEligibleTeamRepositories(ctx, "org1", "alpha")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "org1/a", repos[0].SourceRepoFullName)
	assert.Equal(t, "org1/b", repos[1].SourceRepoFullName)
}

func TestMarkTeamRepositoryFailed(t *testing.T) {
	db := setupTeamMappingsTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTeamMapping(ctx, createTestTeamMapping("org1", "alpha")))
	_, err := db.ReplaceTeamRepositories(ctx, "org1", "alpha", []*models.TeamRepository{
		{SourceRepoFullName: "org1/api", Permission: "push", Eligible: true},
	})
	require.NoError(t, err)

	require.NoError(t, db.MarkTeamRepositoryFailed(ctx, "org1", "alpha", "org1/api", "404 Not Found"))
	repos, err := db.ListTeamRepositories(ctx, "org1", "alpha")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.False(t, repos[0].Synced)
	require.NotNil(t, repos[0].ErrorMessage)
	assert.Equal(t, "404 Not Found", *repos[0].ErrorMessage)

	require.NoError(t, db.MarkTeamRepositorySynced(ctx, "org1", "alpha", "org1/api"))
	counts, err := db.RefreshTeamRepoCounts(ctx, "org1", "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Synced)

	repos, err = db.ListTeamRepositories(ctx, "org1", "alpha")
	require.NoError(t, err)
	assert.Nil(t, repos[0].ErrorMessage)
}
