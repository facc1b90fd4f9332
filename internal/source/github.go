package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kuhlman-labs/team-migrator/internal/github"
)

// gitHubTeamAPI is the part of the GitHub client the connector needs
type gitHubTeamAPI interface {
	BaseURL() string
	ListOrganizationTeams(ctx context.Context, org string) ([]*github.TeamInfo, error)
	ListTeamRepositories(ctx context.Context, org, teamSlug string) ([]*github.TeamRepository, error)
	ListTeamMembersGraphQL(ctx context.Context, org, teamSlug string) ([]*github.TeamMember, error)
	TestAuthentication(ctx context.Context) error
}

// GitHubConnector reads teams from GitHub.com or GitHub Enterprise Server
type GitHubConnector struct {
	client gitHubTeamAPI
	name   string
}

// NewGitHubConnector creates a connector over an existing GitHub client
func NewGitHubConnector(client gitHubTeamAPI) *GitHubConnector {
	name := "GitHub.com"
	if base := client.BaseURL(); base != "" && base != github.GitHubAPIURL {
		if parsed, err := url.Parse(base); err == nil && parsed.Host != "" {
			name = fmt.Sprintf("GHES (%s)", parsed.Host)
		}
	}
	return &GitHubConnector{client: client, name: name}
}

// Type returns the connector type
func (c *GitHubConnector) Type() ConnectorType {
	return ConnectorGitHub
}

// Name returns a human-readable name for this connector instance
func (c *GitHubConnector) Name() string {
	return c.name
}

// ListTeams lists every team in the organization
func (c *GitHubConnector) ListTeams(ctx context.Context, org string) ([]Team, error) {
	teams, err := c.client.ListOrganizationTeams(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for %s: %w", org, err)
	}

	result := make([]Team, 0, len(teams))
	for _, t := range teams {
		result = append(result, Team{
			Org:         org,
			Slug:        t.Slug,
			Name:        t.Name,
			Description: t.Description,
			MemberCount: t.MemberCount,
		})
	}
	return result, nil
}

// ListTeamMembers lists the members of a team with their team role
func (c *GitHubConnector) ListTeamMembers(ctx context.Context, org, slug string) ([]Member, error) {
	members, err := c.client.ListTeamMembersGraphQL(ctx, org, slug)
	if err != nil {
		if github.IsNotFoundError(err) {
			return nil, fmt.Errorf("%s/%s: %w", org, slug, ErrTeamNotFound)
		}
		return nil, fmt.Errorf("failed to list members of %s/%s: %w", org, slug, err)
	}

	result := make([]Member, 0, len(members))
	for _, m := range members {
		result = append(result, Member{Login: m.Login, Role: m.Role})
	}
	return result, nil
}

// ListTeamRepositories lists the repositories a team can access and the
// team's permission on each
func (c *GitHubConnector) ListTeamRepositories(ctx context.Context, org, slug string) ([]Repository, error) {
	repos, err := c.client.ListTeamRepositories(ctx, org, slug)
	if err != nil {
		if github.IsNotFoundError(err) {
			return nil, fmt.Errorf("%s/%s: %w", org, slug, ErrTeamNotFound)
		}
		return nil, fmt.Errorf("failed to list repositories of %s/%s: %w", org, slug, err)
	}

	result := make([]Repository, 0, len(repos))
	for _, r := range repos {
		result = append(result, Repository{
			FullName:   r.FullName,
			Permission: r.Permission,
			Visibility: r.Visibility,
			Archived:   r.Archived,
		})
	}
	return result, nil
}

// ValidateCredentials validates that the connector's credentials are valid
func (c *GitHubConnector) ValidateCredentials(ctx context.Context) error {
	if err := c.client.TestAuthentication(ctx); err != nil {
		if github.IsAuthError(err) {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return err
	}
	return nil
}
