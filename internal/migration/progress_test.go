package migration

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

func TestRunSnapshot_CapsDisplayedErrors(t *testing.T) {
	run := newRun(Scope{SourceOrg: "acme"}, false, 60)
	for i := range 60 {
		run.addError(fmt.Sprintf("acme/team-%02d: boom", i))
	}

	p := run.Snapshot(50)
	assert.Equal(t, 60, p.TotalErrors)
	require.Len(t, p.Errors, 50)
	assert.Equal(t, "acme/team-10: boom", p.Errors[0])
	assert.Equal(t, "acme/team-59: boom", p.Errors[49])

	all := run.Snapshot(0)
	assert.Len(t, all.Errors, 60)
	assert.Equal(t, "acme/team-00: boom", all.Errors[0])

	// Snapshots are copies.
	p.Errors[0] = "changed"
	assert.Equal(t, "acme/team-10: boom", run.Snapshot(50).Errors[0])
}

func TestRunFinish(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *Run)
		cancelled bool
		want      models.RunStatus
	}{
		{name: "clean", setup: func(*Run) {}, want: models.RunCompleted},
		{name: "failed team", setup: func(r *Run) { r.failedTeams.Add(1) }, want: models.RunCompletedWithErrors},
		{name: "repository errors", setup: func(r *Run) { r.addError("acme/x: 1 of 2 repository permissions failed") }, want: models.RunCompletedWithErrors},
		{name: "store failure", setup: func(r *Run) { r.fatal.Store(true) }, want: models.RunCompletedWithErrors},
		{name: "cancelled wins", setup: func(r *Run) { r.failedTeams.Add(1) }, cancelled: true, want: models.RunCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := newRun(Scope{}, false, 1)
			run.setCurrentTeam("acme/x")
			tt.setup(run)

			assert.Equal(t, tt.want, run.finish(tt.cancelled))
			assert.Equal(t, tt.want, run.finish(!tt.cancelled), "terminal status is sticky")

			p := run.Snapshot(10)
			assert.Equal(t, tt.want, p.Status)
			assert.NotNil(t, p.CompletedAt)
			assert.Empty(t, p.CurrentTeam)
		})
	}
}

func TestRunCountersAreConcurrencySafe(t *testing.T) {
	run := newRun(Scope{}, true, 100)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.setCurrentTeam(fmt.Sprintf("acme/team-%d", i))
			run.createdTeams.Add(1)
			run.totalReposSynced.Add(3)
			run.processedTeams.Add(1)
			if i%10 == 0 {
				run.addError("boom")
			}
		}()
	}
	wg.Wait()

	p := run.Snapshot(5)
	assert.True(t, p.DryRun)
	assert.NotEmpty(t, p.RunID)
	assert.Equal(t, int64(100), p.ProcessedTeams)
	assert.Equal(t, int64(100), p.CreatedTeams)
	assert.Equal(t, int64(300), p.TotalReposSynced)
	assert.Equal(t, 10, p.TotalErrors)
	assert.Len(t, p.Errors, 5)
	assert.Equal(t, models.RunInProgress, p.Status)
}

func TestScope(t *testing.T) {
	assert.False(t, Scope{}.IsSingleTeam())
	assert.False(t, Scope{SourceOrg: "acme"}.IsSingleTeam())
	assert.True(t, Scope{SourceOrg: "acme", SourceTeamSlug: "platform"}.IsSingleTeam())
}
