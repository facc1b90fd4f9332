package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
)

// Permission constants for team repository access levels
const (
	PermissionAdmin    = "admin"
	PermissionMaintain = "maintain"
	PermissionPush     = "push"
	PermissionTriage   = "triage"
	PermissionPull     = "pull"
)

// Team privacy levels accepted by CreateTeam
const (
	TeamPrivacyClosed = "closed"
	TeamPrivacySecret = "secret"
)

// TeamInfo represents basic team information
type TeamInfo struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	Privacy     string
	MemberCount int
}

// TeamRepository represents a repository associated with a team
type TeamRepository struct {
	FullName   string // org/repo format
	Permission string // pull, triage, push, maintain, admin
	Visibility string
	Archived   bool
}

// TeamMember represents a member of a GitHub team
type TeamMember struct {
	Login string
	Role  string // member or maintainer
}

func teamInfoFromGitHub(team *github.Team) *TeamInfo {
	return &TeamInfo{
		ID:          team.GetID(),
		Slug:        team.GetSlug(),
		Name:        team.GetName(),
		Description: team.GetDescription(),
		Privacy:     team.GetPrivacy(),
		MemberCount: team.GetMembersCount(),
	}
}

// highestPermission picks the strongest role from a repository permissions map.
func highestPermission(perms map[string]bool) string {
	for _, p := range []string{PermissionAdmin, PermissionMaintain, PermissionPush, PermissionTriage} {
		if perms[p] {
			return p
		}
	}
	return PermissionPull
}

// ListOrganizationTeams lists all teams for an organization
func (c *Client) ListOrganizationTeams(ctx context.Context, org string) ([]*TeamInfo, error) {
	c.logger.Info("Listing teams for organization", "org", org)

	var allTeams []*TeamInfo
	opts := &github.ListOptions{PerPage: 100}

	for {
		var teams []*github.Team
		resp, err := c.DoWithRetry(ctx, "ListTeams", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			teams, resp, err = c.rest.Teams.ListTeams(ctx, org, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, team := range teams {
			allTeams = append(allTeams, teamInfoFromGitHub(team))
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Info("Team listing complete",
		"org", org,
		"total_teams", len(allTeams))

	return allTeams, nil
}

// ListTeamRepositories lists all repositories a team can access, with the
// team's effective permission on each.
func (c *Client) ListTeamRepositories(ctx context.Context, org, teamSlug string) ([]*TeamRepository, error) {
	c.logger.Debug("Listing repositories for team", "org", org, "team", teamSlug)

	var allRepos []*TeamRepository
	opts := &github.ListOptions{PerPage: 100}

	for {
		var repos []*github.Repository
		resp, err := c.DoWithRetry(ctx, "ListTeamReposBySlug", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			repos, resp, err = c.rest.Teams.ListTeamReposBySlug(ctx, org, teamSlug, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, repo := range repos {
			allRepos = append(allRepos, &TeamRepository{
				FullName:   repo.GetFullName(),
				Permission: highestPermission(repo.Permissions),
				Visibility: repo.GetVisibility(),
				Archived:   repo.GetArchived(),
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("Team repository listing complete",
		"org", org,
		"team", teamSlug,
		"total_repos", len(allRepos))

	return allRepos, nil
}

// ListTeamMembers lists all members of a team over REST. Roles need one extra
// call per member, so prefer ListTeamMembersGraphQL.
func (c *Client) ListTeamMembers(ctx context.Context, org, teamSlug string) ([]*TeamMember, error) {
	c.logger.Debug("Listing members for team", "org", org, "team", teamSlug)

	var allMembers []*TeamMember
	opts := &github.TeamListTeamMembersOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var members []*github.User
		resp, err := c.DoWithRetry(ctx, "ListTeamMembersBySlug", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			members, resp, err = c.rest.Teams.ListTeamMembersBySlug(ctx, org, teamSlug, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, member := range members {
			role := "member"
			var membership *github.Membership
			_, err := c.DoWithRetry(ctx, "GetTeamMembershipBySlug", func(ctx context.Context) (*github.Response, error) {
				var resp *github.Response
				var err error
				membership, resp, err = c.rest.Teams.GetTeamMembershipBySlug(ctx, org, teamSlug, member.GetLogin())
				return resp, err
			})
			if err == nil && membership != nil {
				role = membership.GetRole()
			}

			allMembers = append(allMembers, &TeamMember{
				Login: member.GetLogin(),
				Role:  role,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("Team member listing complete",
		"org", org,
		"team", teamSlug,
		"total_members", len(allMembers))

	return allMembers, nil
}

// ListTeamMembersGraphQL lists team members and their roles in one paginated
// query, falling back to REST when the GraphQL API rejects it.
func (c *Client) ListTeamMembersGraphQL(ctx context.Context, org, teamSlug string) ([]*TeamMember, error) {
	c.logger.Debug("Listing members for team via GraphQL", "org", org, "team", teamSlug)

	var allMembers []*TeamMember
	var cursor *githubv4.String

	var query struct {
		Organization struct {
			Team struct {
				Members struct {
					PageInfo struct {
						HasNextPage githubv4.Boolean
						EndCursor   githubv4.String
					}
					Edges []struct {
						Role githubv4.String
						Node struct {
							Login githubv4.String
						}
					}
				} `graphql:"members(first: 100, after: $cursor)"`
			} `graphql:"team(slug: $slug)"`
		} `graphql:"organization(login: $org)"`
	}

	variables := map[string]any{
		"org":  githubv4.String(org),
		"slug": githubv4.String(teamSlug),
	}

	for {
		variables["cursor"] = cursor
		query.Organization.Team.Members.Edges = nil

		if err := c.QueryWithRetry(ctx, "ListTeamMembersGraphQL", &query, variables); err != nil {
			c.logger.Debug("GraphQL query failed for team members, falling back to REST",
				"org", org,
				"team", teamSlug,
				"error", err)
			return c.ListTeamMembers(ctx, org, teamSlug)
		}

		for _, edge := range query.Organization.Team.Members.Edges {
			allMembers = append(allMembers, &TeamMember{
				Login: string(edge.Node.Login),
				Role:  strings.ToLower(string(edge.Role)),
			})
		}

		if !bool(query.Organization.Team.Members.PageInfo.HasNextPage) {
			break
		}
		next := query.Organization.Team.Members.PageInfo.EndCursor
		cursor = &next
	}

	c.logger.Debug("Team member listing via GraphQL complete",
		"org", org,
		"team", teamSlug,
		"total_members", len(allMembers))

	return allMembers, nil
}

// GetTeamBySlug retrieves a team by organization and slug.
// Returns nil, nil if the team doesn't exist.
func (c *Client) GetTeamBySlug(ctx context.Context, org, slug string) (*TeamInfo, error) {
	c.logger.Debug("Getting team by slug", "org", org, "slug", slug)

	var team *github.Team
	_, err := c.DoWithRetry(ctx, "GetTeamBySlug", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		team, resp, err = c.rest.Teams.GetTeamBySlug(ctx, org, slug)
		return resp, err
	})
	if err != nil {
		if IsNotFoundError(err) {
			c.logger.Debug("Team not found", "org", org, "slug", slug)
			return nil, nil
		}
		return nil, err
	}

	info := teamInfoFromGitHub(team)
	c.logger.Debug("Team found", "org", org, "slug", slug, "team_id", info.ID)
	return info, nil
}

// CreateTeamInput contains the parameters for creating a team
type CreateTeamInput struct {
	Name        string
	Description *string
	Privacy     string // closed or secret, defaults to closed
	ParentTeam  *int64
}

// CreateTeam creates a new team in the organization. Teams are created
// without members so IdP-managed membership can take over.
func (c *Client) CreateTeam(ctx context.Context, org string, input CreateTeamInput) (*TeamInfo, error) {
	c.logger.Info("Creating team", "org", org, "name", input.Name)

	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("team name is required")
	}

	privacy := input.Privacy
	if privacy == "" {
		privacy = TeamPrivacyClosed
	}

	newTeam := github.NewTeam{
		Name:         input.Name,
		Description:  input.Description,
		Privacy:      &privacy,
		ParentTeamID: input.ParentTeam,
	}

	var team *github.Team
	_, err := c.DoWithRetry(ctx, "CreateTeam", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		team, resp, err = c.rest.Teams.CreateTeam(ctx, org, newTeam)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	info := teamInfoFromGitHub(team)
	c.logger.Info("Team created successfully",
		"org", org,
		"team_slug", info.Slug,
		"team_id", info.ID)

	return info, nil
}

// IsValidPermission reports whether p is a GitHub team repository role.
func IsValidPermission(p string) bool {
	switch p {
	case PermissionPull, PermissionTriage, PermissionPush, PermissionMaintain, PermissionAdmin:
		return true
	}
	return false
}

// AddTeamRepoPermission adds or updates a repository's permission for a team
func (c *Client) AddTeamRepoPermission(ctx context.Context, org, teamSlug, repoOwner, repoName, permission string) error {
	c.logger.Debug("Adding team repo permission",
		"org", org,
		"team", teamSlug,
		"repo", repoOwner+"/"+repoName,
		"permission", permission)

	if !IsValidPermission(permission) {
		return fmt.Errorf("invalid permission %q, must be one of: %s, %s, %s, %s, %s",
			permission, PermissionPull, PermissionTriage, PermissionPush, PermissionMaintain, PermissionAdmin)
	}

	opts := &github.TeamAddTeamRepoOptions{Permission: permission}
	_, err := c.DoWithRetry(ctx, "AddTeamRepoBySlug", func(ctx context.Context) (*github.Response, error) {
		return c.rest.Teams.AddTeamRepoBySlug(ctx, org, teamSlug, repoOwner, repoName, opts)
	})
	if err != nil {
		return err
	}

	c.logger.Debug("Team repo permission added",
		"org", org,
		"team", teamSlug,
		"repo", repoOwner+"/"+repoName,
		"permission", permission)
	return nil
}

// RemoveTeamMembership removes a user from a team. GitHub adds the token
// owner as maintainer when a team is created with a PAT.
func (c *Client) RemoveTeamMembership(ctx context.Context, org, teamSlug, username string) error {
	c.logger.Debug("Removing team membership",
		"org", org,
		"team", teamSlug,
		"username", username)

	_, err := c.DoWithRetry(ctx, "RemoveTeamMembershipBySlug", func(ctx context.Context) (*github.Response, error) {
		return c.rest.Teams.RemoveTeamMembershipBySlug(ctx, org, teamSlug, username)
	})
	return err
}
