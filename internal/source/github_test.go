package source

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/team-migrator/internal/github"
)

type fakeGitHubAPI struct {
	baseURL string
	teams   []*github.TeamInfo
	repos   map[string][]*github.TeamRepository
	members map[string][]*github.TeamMember
	authErr error
}

func (f *fakeGitHubAPI) BaseURL() string { return f.baseURL }

func (f *fakeGitHubAPI) ListOrganizationTeams(_ context.Context, _ string) ([]*github.TeamInfo, error) {
	return f.teams, nil
}

func (f *fakeGitHubAPI) ListTeamRepositories(_ context.Context, _, slug string) ([]*github.TeamRepository, error) {
	repos, ok := f.repos[slug]
	if !ok {
		return nil, &github.APIError{StatusCode: 404, Err: github.ErrNotFound}
	}
	return repos, nil
}

func (f *fakeGitHubAPI) ListTeamMembersGraphQL(_ context.Context, _, slug string) ([]*github.TeamMember, error) {
	return f.members[slug], nil
}

func (f *fakeGitHubAPI) TestAuthentication(context.Context) error { return f.authErr }

func TestGitHubConnector_Name(t *testing.T) {
	assert.Equal(t, "GitHub.com", NewGitHubConnector(&fakeGitHubAPI{}).Name())
	assert.Equal(t, "GitHub.com", NewGitHubConnector(&fakeGitHubAPI{baseURL: github.GitHubAPIURL}).Name())
	assert.Equal(t, "GHES (ghe.example.com)",
		NewGitHubConnector(&fakeGitHubAPI{baseURL: "https://ghe.example.com/api/v3"}).Name())
}

func TestGitHubConnector_ListTeams(t *testing.T) {
	c := NewGitHubConnector(&fakeGitHubAPI{
		teams: []*github.TeamInfo{
			{Slug: "platform", Name: "Platform", MemberCount: 3},
			{Slug: "web", Name: "Web"},
		},
	})

	teams, err := c.ListTeams(context.Background(), "src-org")
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, Team{Org: "src-org", Slug: "platform", Name: "Platform", MemberCount: 3}, teams[0])
	assert.Equal(t, ConnectorGitHub, c.Type())
}

func TestGitHubConnector_ListTeamRepositories(t *testing.T) {
	c := NewGitHubConnector(&fakeGitHubAPI{
		repos: map[string][]*github.TeamRepository{
			"platform": {
				{FullName: "src-org/api", Permission: "maintain", Visibility: "internal"},
				{FullName: "src-org/old", Permission: "pull", Archived: true},
			},
		},
	})

	repos, err := c.ListTeamRepositories(context.Background(), "src-org", "platform")
	require.NoError(t, err)
	assert.Equal(t, []Repository{
		{FullName: "src-org/api", Permission: "maintain", Visibility: "internal"},
		{FullName: "src-org/old", Permission: "pull", Archived: true},
	}, repos)

	_, err = c.ListTeamRepositories(context.Background(), "src-org", "ghost")
	assert.ErrorIs(t, err, ErrTeamNotFound)
}

func TestGitHubConnector_ListTeamMembers(t *testing.T) {
	c := NewGitHubConnector(&fakeGitHubAPI{
		members: map[string][]*github.TeamMember{
			"platform": {{Login: "alice", Role: "maintainer"}},
		},
	})

	members, err := c.ListTeamMembers(context.Background(), "src-org", "platform")
	require.NoError(t, err)
	assert.Equal(t, []Member{{Login: "alice", Role: "maintainer"}}, members)
}

func TestGitHubConnector_ValidateCredentials(t *testing.T) {
	ok := NewGitHubConnector(&fakeGitHubAPI{})
	assert.NoError(t, ok.ValidateCredentials(context.Background()))

	bad := NewGitHubConnector(&fakeGitHubAPI{authErr: &github.APIError{StatusCode: 401, Err: github.ErrUnauthorized}})
	assert.ErrorIs(t, bad.ValidateCredentials(context.Background()), ErrAuthenticationFailed)

	network := NewGitHubConnector(&fakeGitHubAPI{authErr: fmt.Errorf("dial tcp: %w", errors.New("refused"))})
	err := network.ValidateCredentials(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
}
