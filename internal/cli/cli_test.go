package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/team-migrator/internal/app"
	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/discovery"
	"github.com/kuhlman-labs/team-migrator/internal/github"
	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// acceptingDestination is a destination org that accepts every write.
type acceptingDestination struct {
	mu     sync.Mutex
	teams  map[string]*github.TeamInfo
	grants []string
}

func (d *acceptingDestination) GetTeamBySlug(_ context.Context, _, slug string) (*github.TeamInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.teams[slug], nil
}

func (d *acceptingDestination) CreateTeam(_ context.Context, _ string, input github.CreateTeamInput) (*github.TeamInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	team := &github.TeamInfo{ID: int64(len(d.teams) + 1), Slug: input.Name, Name: input.Name}
	d.teams[team.Slug] = team
	return team, nil
}

func (d *acceptingDestination) AddTeamRepoPermission(_ context.Context, _, teamSlug, owner, repo, permission string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grants = append(d.grants, teamSlug+":"+owner+"/"+repo+":"+permission)
	return nil
}

func (d *acceptingDestination) RemoveTeamMembership(context.Context, string, string, string) error {
	return nil
}

func (d *acceptingDestination) GetAuthenticatedUserLogin(context.Context) (string, error) {
	return "octocat", nil
}

func (d *acceptingDestination) IsPATAuthenticated() bool { return false }

type fakeSyncer struct {
	org    string
	result *discovery.SyncResult
	err    error
}

func (s *fakeSyncer) SyncOrganization(_ context.Context, org string) (*discovery.SyncResult, error) {
	s.org = org
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// blockingOrchestrator runs until CancelMigration is called.
type blockingOrchestrator struct {
	release   chan struct{}
	cancelled atomic.Bool
}

func newBlockingOrchestrator() *blockingOrchestrator {
	return &blockingOrchestrator{release: make(chan struct{})}
}

func (o *blockingOrchestrator) ExecuteMigration(context.Context, migration.Scope, bool) (*migration.Progress, error) {
	return &migration.Progress{RunID: "run-1", Status: models.RunInProgress, TotalTeams: 3}, nil
}

func (o *blockingOrchestrator) CancelMigration() bool {
	if o.cancelled.CompareAndSwap(false, true) {
		close(o.release)
	}
	return true
}

func (o *blockingOrchestrator) ResetMigrationStatus(context.Context, string) (int64, error) {
	return 0, migration.ErrAlreadyRunning
}

func (o *blockingOrchestrator) Recover(context.Context) (int64, error) {
	return 0, migration.ErrAlreadyRunning
}

func (o *blockingOrchestrator) Progress() *migration.Progress {
	if o.cancelled.Load() {
		return &migration.Progress{RunID: "run-1", Status: models.RunCancelled, TotalTeams: 3, ProcessedTeams: 1}
	}
	return &migration.Progress{RunID: "run-1", Status: models.RunInProgress, TotalTeams: 3}
}

func (o *blockingOrchestrator) Wait(ctx context.Context) error {
	select {
	case <-o.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type testEnv struct {
	db     *storage.Database
	dest   *acceptingDestination
	syncer *fakeSyncer
	env    *Env
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.NewDatabase(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	dest := &acceptingDestination{teams: map[string]*github.TeamInfo{}}
	orch, err := migration.NewOrchestrator(migration.Config{
		Store:       db,
		Destination: dest,
		Logger:      testLogger(),
		Workers:     2,
	})
	require.NoError(t, err)

	syncer := &fakeSyncer{}
	return &testEnv{
		db:     db,
		dest:   dest,
		syncer: syncer,
		env:    &Env{Store: db, Orchestrator: orch, Syncer: syncer, Logger: testLogger()},
	}
}

func (e *testEnv) factory(context.Context) (*Env, func(), error) {
	return e.env, nil, nil
}

// run executes the command tree and returns stdout and stderr.
func run(t *testing.T, factory EnvFactory, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(factory)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func strPtr(s string) *string { return &s }

func (e *testEnv) seedMapped(t *testing.T, org, slug string, repos ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.SaveTeamMapping(ctx, &models.TeamMapping{
		SourceOrg:           org,
		SourceTeamSlug:      slug,
		DestinationOrg:      strPtr("new-" + org),
		DestinationTeamSlug: strPtr(slug),
		MappingStatus:       models.MappingStatusMapped,
		MigrationStatus:     models.MigrationPending,
	}))
	var rows []*models.TeamRepository
	for _, r := range repos {
		rows = append(rows, &models.TeamRepository{SourceRepoFullName: org + "/" + r, Permission: models.PermissionPush, Eligible: true})
	}
	_, err := e.db.ReplaceTeamRepositories(ctx, org, slug, rows)
	require.NoError(t, err)
}

func TestExecuteCommand(t *testing.T) {
	env := setupTestEnv(t)
	env.seedMapped(t, "acme", "platform", "api", "web")

	stdout, _, err := run(t, env.factory, "execute", "--progress-interval", "5ms")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Started run")
	assert.Contains(t, stdout, "completed")
	assert.Contains(t, stdout, "Repos:   2 synced")
	assert.ElementsMatch(t, []string{
		"platform:new-acme/api:push",
		"platform:new-acme/web:push",
	}, env.dest.grants)

	m, err := env.db.GetTeamMapping(context.Background(), "acme", "platform")
	require.NoError(t, err)
	assert.Equal(t, models.MigrationCompleted, m.MigrationStatus)
}

func TestExecuteCommand_DryRun(t *testing.T) {
	env := setupTestEnv(t)
	env.seedMapped(t, "acme", "platform", "api")

	stdout, _, err := run(t, env.factory, "execute", "--dry-run", "--source-org", "acme", "--team", "platform")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(dry run)")
	assert.Empty(t, env.dest.grants)
	assert.Empty(t, env.dest.teams)
}

func TestExecuteCommand_Errors(t *testing.T) {
	t.Run("team without org", func(t *testing.T) {
		env := setupTestEnv(t)
		_, _, err := run(t, env.factory, "execute", "--team", "platform")
		assert.ErrorIs(t, err, migration.ErrInvalidScope)
	})

	t.Run("no destination", func(t *testing.T) {
		env := setupTestEnv(t)
		env.env.Orchestrator = nil
		_, _, err := run(t, env.factory, "execute")
		assert.ErrorIs(t, err, app.ErrDestinationNotConfigured)
	})

	t.Run("factory failure", func(t *testing.T) {
		failing := func(context.Context) (*Env, func(), error) {
			return nil, nil, errors.New("unsupported database type: oracle")
		}
		_, _, err := run(t, failing, "execute")
		assert.EqualError(t, err, "unsupported database type: oracle")
	})
}

func TestRunExecute_InterruptCancelsRun(t *testing.T) {
	orch := newBlockingOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	var stopped atomic.Bool

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var out bytes.Buffer
	err := runExecute(ctx, &out, orch, &executeOptions{interval: time.Hour}, func() { stopped.Store(true) })
	require.NoError(t, err)

	assert.True(t, stopped.Load())
	assert.True(t, orch.cancelled.Load())
	assert.Contains(t, out.String(), "Cancelling")
	assert.Contains(t, out.String(), "Run run-1 cancelled")
}

func TestResetCommand(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	for _, key := range [][2]string{{"acme", "platform"}, {"globex", "infra"}} {
		require.NoError(t, env.db.SaveTeamMapping(ctx, &models.TeamMapping{
			SourceOrg:           key[0],
			SourceTeamSlug:      key[1],
			DestinationOrg:      strPtr("new-" + key[0]),
			DestinationTeamSlug: strPtr(key[1]),
			MappingStatus:       models.MappingStatusMapped,
			MigrationStatus:     models.MigrationFailed,
		}))
	}

	stdout, _, err := run(t, env.factory, "reset", "--source-org", "acme")
	require.NoError(t, err)
	assert.Equal(t, "Reset 1 teams (acme)\n", stdout)

	m, err := env.db.GetTeamMapping(ctx, "globex", "infra")
	require.NoError(t, err)
	assert.Equal(t, models.MigrationFailed, m.MigrationStatus)

	env.env.Orchestrator = newBlockingOrchestrator()
	_, _, err = run(t, env.factory, "reset")
	assert.ErrorIs(t, err, migration.ErrAlreadyRunning)
}

func TestResetCommand_Interrupted(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.seedMapped(t, "acme", "platform", "api")
	require.NoError(t, env.db.UpdateTeamMigrationStatus(ctx, "acme", "platform", models.MigrationInProgress, nil))

	// A plain reset leaves the team alone; another process may own it.
	stdout, _, err := run(t, env.factory, "reset")
	require.NoError(t, err)
	assert.Equal(t, "Reset 0 teams (all organizations)\n", stdout)
	m, err := env.db.GetTeamMapping(ctx, "acme", "platform")
	require.NoError(t, err)
	assert.Equal(t, models.MigrationInProgress, m.MigrationStatus)

	stdout, _, err = run(t, env.factory, "reset", "--interrupted")
	require.NoError(t, err)
	assert.Equal(t, "Recovered 1 interrupted teams\n", stdout)
	m, err = env.db.GetTeamMapping(ctx, "acme", "platform")
	require.NoError(t, err)
	assert.Equal(t, models.MigrationPending, m.MigrationStatus)

	_, _, err = run(t, env.factory, "reset", "--interrupted", "--source-org", "acme")
	assert.Error(t, err)

	env.env.Orchestrator = newBlockingOrchestrator()
	_, _, err = run(t, env.factory, "reset", "--interrupted")
	assert.ErrorIs(t, err, migration.ErrAlreadyRunning)
}

func TestStatusCommand(t *testing.T) {
	env := setupTestEnv(t)
	env.seedMapped(t, "acme", "platform", "api")
	require.NoError(t, env.db.SaveTeamMapping(context.Background(), &models.TeamMapping{
		SourceOrg:      "acme",
		SourceTeamSlug: "design",
		MappingStatus:  models.MappingStatusUnmapped,
	}))

	stdout, _, err := run(t, env.factory, "status", "--json")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.EqualValues(t, 2, report.MappingStats.Total)
	assert.EqualValues(t, 1, report.MappingStats.Mapped)
	assert.EqualValues(t, 1, report.ExecutionStats.Pending)

	stdout, _, err = run(t, env.factory, "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "MAPPINGS")
	assert.Contains(t, stdout, "repos synced")
}

func TestMappingsImportExport(t *testing.T) {
	env := setupTestEnv(t)
	dir := t.TempDir()

	input := filepath.Join(dir, "mappings.csv")
	require.NoError(t, os.WriteFile(input, []byte(strings.Join([]string{
		"source_org,source_team_slug,destination_org,destination_team_slug,mapping_status",
		"acme,platform,new-acme,platform,",
		"acme,design,,,",
		"acme,,new-acme,x,",
		"acme,infra,,,mapped",
	}, "\n")), 0o600))

	stdout, stderr, err := run(t, env.factory, "mappings", "import", "--file", input)
	require.NoError(t, err)
	assert.Equal(t, "Imported team mappings: 2 created, 0 updated, 2 errors\n", stdout)
	assert.Contains(t, stderr, "Line 4")
	assert.Contains(t, stderr, "Line 5")

	m, err := env.db.GetTeamMapping(context.Background(), "acme", "platform")
	require.NoError(t, err)
	assert.Equal(t, models.MappingStatusMapped, m.MappingStatus)

	output := filepath.Join(dir, "out.yaml")
	_, stderr, err = run(t, env.factory, "mappings", "export", "--file", output, "--status", "mapped")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported 1 team mappings")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "source_team_slug: platform")
	assert.NotContains(t, string(data), "design")

	stdout, _, err = run(t, env.factory, "mappings", "export", "--format", "json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	assert.Len(t, rows, 2)
}

func TestMappingsCommand_Errors(t *testing.T) {
	env := setupTestEnv(t)

	_, _, err := run(t, env.factory, "mappings", "import")
	assert.Error(t, err, "--file is required")

	_, _, err = run(t, env.factory, "mappings", "import", "--file", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, _, err = run(t, env.factory, "mappings", "export", "--format", "xml")
	assert.Error(t, err)

	_, _, err = run(t, env.factory, "mappings", "export", "--status", "bogus")
	assert.Error(t, err)
}

func TestSyncCommand(t *testing.T) {
	env := setupTestEnv(t)
	env.syncer.result = &discovery.SyncResult{
		Org: "acme", TeamsFound: 3, TeamsCreated: 2, TeamsUpdated: 1,
		ReposRecorded: 10, ReposEligible: 8, Errors: []string{"acme/legacy: 404 Not Found"},
	}

	stdout, stderr, err := run(t, env.factory, "sync", "--org", " acme ")
	require.NoError(t, err)
	assert.Equal(t, "acme", env.syncer.org)
	assert.Contains(t, stdout, "3 teams found (2 new, 1 updated)")
	assert.Contains(t, stderr, "acme/legacy: 404 Not Found")

	_, _, err = run(t, env.factory, "sync")
	assert.EqualError(t, err, "--org is required")

	env.env.Syncer = nil
	_, _, err = run(t, env.factory, "sync", "--org", "acme")
	assert.ErrorIs(t, err, ErrSourceNotConfigured)
}

func TestRootFlagsBindToViper(t *testing.T) {
	t.Cleanup(viper.Reset)
	env := setupTestEnv(t)

	_, _, err := run(t, env.factory, "status", "--database-dsn", "/tmp/other.db", "--workers", "9")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", viper.GetString("database.dsn"))
	assert.Equal(t, 9, viper.GetInt("migration.workers"))
	assert.Empty(t, viper.GetString("logging.level"))
}
