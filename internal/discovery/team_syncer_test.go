package discovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/source"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

type fakeConnector struct {
	mu         sync.Mutex
	teams      []source.Team
	repos      map[string][]source.Repository
	members    map[string][]source.Member
	repoErrs   map[string]error
	memberErrs map[string]error
	listErr    error
}

func (f *fakeConnector) Type() source.ConnectorType { return source.ConnectorGitHub }
func (f *fakeConnector) Name() string               { return "fake" }

func (f *fakeConnector) ListTeams(context.Context, string) ([]source.Team, error) {
	return f.teams, f.listErr
}

func (f *fakeConnector) ListTeamMembers(_ context.Context, _, slug string) ([]source.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.memberErrs[slug]; err != nil {
		return nil, err
	}
	return f.members[slug], nil
}

func (f *fakeConnector) ListTeamRepositories(_ context.Context, _, slug string) ([]source.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.repoErrs[slug]; err != nil {
		return nil, err
	}
	return f.repos[slug], nil
}

func (f *fakeConnector) ValidateCredentials(context.Context) error { return nil }

func setupStore(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTeamSyncer_Defaults(t *testing.T) {
	s := NewTeamSyncer(TeamSyncerConfig{Workers: -1, ExcludeVisibilities: []string{" Public ", ""}})
	assert.Equal(t, 5, s.workers)
	assert.Equal(t, []string{"public"}, s.excludeVisibilities)
	assert.NotNil(t, s.logger)
}

func TestTeamSyncer_IsEligible(t *testing.T) {
	tests := []struct {
		name            string
		includeArchived bool
		exclude         []string
		repo            source.Repository
		want            bool
	}{
		{name: "plain private repo", repo: source.Repository{Visibility: "private"}, want: true},
		{name: "archived excluded by default", repo: source.Repository{Archived: true}, want: false},
		{name: "archived included", includeArchived: true, repo: source.Repository{Archived: true}, want: true},
		{name: "excluded visibility", exclude: []string{"public"}, repo: source.Repository{Visibility: "Public"}, want: false},
		{name: "other visibility kept", exclude: []string{"public"}, repo: source.Repository{Visibility: "internal"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTeamSyncer(TeamSyncerConfig{IncludeArchived: tt.includeArchived, ExcludeVisibilities: tt.exclude})
			assert.Equal(t, tt.want, s.IsEligible(tt.repo))
		})
	}
}

func TestTeamSyncer_SyncOrganization(t *testing.T) {
	ctx := context.Background()
	db := setupStore(t)

	// An existing mapped team keeps its mapping and migration state
	existing := &models.TeamMapping{
		SourceOrg:           "src",
		SourceTeamSlug:      "platform",
		DestinationOrg:      strPtr("dest"),
		DestinationTeamSlug: strPtr("platform"),
		MappingStatus:       models.MappingStatusMapped,
		MigrationStatus:     models.MigrationCompleted,
	}
	require.NoError(t, db.SaveTeamMapping(ctx, existing))

	conn := &fakeConnector{
		teams: []source.Team{
			{Org: "src", Slug: "platform", Name: "Platform"},
			{Org: "src", Slug: "web", Name: "Web", MemberCount: 7},
			{Org: "src", Slug: "broken", Name: "Broken"},
		},
		repos: map[string][]source.Repository{
			"platform": {
				{FullName: "src/api", Permission: "admin", Visibility: "private"},
				{FullName: "src/site", Permission: "write", Visibility: "public"},
				{FullName: "src/old", Permission: "pull", Archived: true},
			},
			"web": {},
		},
		members: map[string][]source.Member{
			"platform": {{Login: "alice"}, {Login: "bob"}},
		},
		memberErrs: map[string]error{"web": errors.New("graphql down")},
		repoErrs:   map[string]error{"broken": errors.New("502 Bad Gateway")},
	}

	syncer := NewTeamSyncer(TeamSyncerConfig{
		Store:               db,
		Connector:           conn,
		Logger:              testLogger(),
		Workers:             2,
		ExcludeVisibilities: []string{"public"},
	})

	result, err := syncer.SyncOrganization(ctx, "src")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TeamsFound)
	assert.Equal(t, 1, result.TeamsCreated, "web is new")
	assert.Equal(t, 1, result.TeamsUpdated, "platform already existed")
	assert.Equal(t, 3, result.ReposRecorded)
	assert.Equal(t, 1, result.ReposEligible)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "src/broken")

	platform, err := db.GetTeamMapping(ctx, "src", "platform")
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusMapped, platform.MappingStatus)
	assert.Equal(t, models.MigrationCompleted, platform.MigrationStatus)
	assert.Equal(t, 2, platform.SourceMemberCount)
	assert.Equal(t, 3, platform.TotalSourceRepos)
	assert.Equal(t, 1, platform.ReposEligible)

	repos, err := db.ListTeamRepositories(ctx, "src", "platform")
	require.NoError(t, err)
	perms := map[string]string{}
	for _, r := range repos {
		perms[r.SourceRepoFullName] = r.Permission
	}
	assert.Equal(t, "push", perms["src/site"], "legacy write alias is normalized")

	web, err := db.GetTeamMapping(ctx, "src", "web")
	require.NoError(t, err)
	require.NotNil(t, web)
	assert.Equal(t, models.MappingStatusUnmapped, web.MappingStatus)
	assert.Equal(t, 7, web.SourceMemberCount, "falls back to listed count when members fail")

	broken, err := db.GetTeamMapping(ctx, "src", "broken")
	require.NoError(t, err)
	require.NotNil(t, broken, "team row is recorded before repositories are listed")
}

func TestTeamSyncer_ListTeamsError(t *testing.T) {
	syncer := NewTeamSyncer(TeamSyncerConfig{
		Store:     setupStore(t),
		Connector: &fakeConnector{listErr: errors.New("401 Unauthorized")},
		Logger:    testLogger(),
	})

	_, err := syncer.SyncOrganization(context.Background(), "src")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list teams")
}

func TestTeamSyncer_EmptyOrganization(t *testing.T) {
	syncer := NewTeamSyncer(TeamSyncerConfig{
		Store:     setupStore(t),
		Connector: &fakeConnector{},
		Logger:    testLogger(),
	})

	result, err := syncer.SyncOrganization(context.Background(), "src")
	require.NoError(t, err)
	assert.Equal(t, &SyncResult{Org: "src"}, result)
}

func strPtr(s string) *string { return &s }
