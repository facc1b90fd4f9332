package source

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"

	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// adoTeamAPI is the part of the Azure DevOps client the connector needs
type adoTeamAPI interface {
	OrganizationURL() string
	GetTeams(ctx context.Context, projectName string) ([]core.WebApiTeam, error)
	GetTeamMembers(ctx context.Context, projectName, teamID string) ([]webapi.TeamMember, error)
	GetRepositories(ctx context.Context, projectName string) ([]git.GitRepository, error)
	ValidateCredentials(ctx context.Context) error
}

// AzureDevOpsConnector reads teams from Azure DevOps. An ADO project plays the
// role of the source organization, and team names are slugified the way
// GitHub would slug them. ADO teams own no repositories, so every repository
// in the project is reported for every team with a configured permission.
type AzureDevOpsConnector struct {
	client     adoTeamAPI
	permission string

	mu    sync.Mutex
	teams map[string]map[string]core.WebApiTeam // project -> slug -> team
}

// NewAzureDevOpsConnector creates a connector over an existing ADO client.
// defaultPermission accepts GitHub roles and their read/write aliases.
func NewAzureDevOpsConnector(client adoTeamAPI, defaultPermission string) (*AzureDevOpsConnector, error) {
	perm := models.PermissionPush
	if defaultPermission != "" {
		perm = models.NormalizePermission(strings.ToLower(defaultPermission))
		if perm == "" {
			return nil, fmt.Errorf("invalid Azure DevOps default permission %q", defaultPermission)
		}
	}
	return &AzureDevOpsConnector{
		client:     client,
		permission: perm,
		teams:      make(map[string]map[string]core.WebApiTeam),
	}, nil
}

// Type returns the connector type
func (c *AzureDevOpsConnector) Type() ConnectorType {
	return ConnectorAzureDevOps
}

// Name returns a human-readable name for this connector instance
func (c *AzureDevOpsConnector) Name() string {
	return fmt.Sprintf("Azure DevOps (%s)", c.client.OrganizationURL())
}

// ListTeams lists every team in the project and refreshes the slug index
func (c *AzureDevOpsConnector) ListTeams(ctx context.Context, project string) ([]Team, error) {
	adoTeams, err := c.client.GetTeams(ctx, project)
	if err != nil {
		return nil, err
	}

	index := make(map[string]core.WebApiTeam, len(adoTeams))
	result := make([]Team, 0, len(adoTeams))
	for _, t := range adoTeams {
		name := deref(t.Name)
		slug := Slugify(name)
		if slug == "" {
			continue
		}
		index[slug] = t
		result = append(result, Team{
			Org:         project,
			Slug:        slug,
			Name:        name,
			Description: deref(t.Description),
		})
	}

	c.mu.Lock()
	c.teams[project] = index
	c.mu.Unlock()

	return result, nil
}

// lookupTeam resolves a slug to its ADO team, listing the project once if
// the slug index has not been built yet.
func (c *AzureDevOpsConnector) lookupTeam(ctx context.Context, project, slug string) (core.WebApiTeam, error) {
	c.mu.Lock()
	index, ok := c.teams[project]
	c.mu.Unlock()

	if !ok {
		if _, err := c.ListTeams(ctx, project); err != nil {
			return core.WebApiTeam{}, err
		}
		c.mu.Lock()
		index = c.teams[project]
		c.mu.Unlock()
	}

	team, ok := index[slug]
	if !ok {
		return core.WebApiTeam{}, fmt.Errorf("%s/%s: %w", project, slug, ErrTeamNotFound)
	}
	return team, nil
}

// ListTeamMembers lists the members of a team. Team administrators are
// reported as maintainers.
func (c *AzureDevOpsConnector) ListTeamMembers(ctx context.Context, project, slug string) ([]Member, error) {
	team, err := c.lookupTeam(ctx, project, slug)
	if err != nil {
		return nil, err
	}

	teamID := deref(team.Name)
	if team.Id != nil {
		teamID = team.Id.String()
	}

	members, err := c.client.GetTeamMembers(ctx, project, teamID)
	if err != nil {
		return nil, err
	}

	result := make([]Member, 0, len(members))
	for _, m := range members {
		if m.Identity == nil {
			continue
		}
		login := deref(m.Identity.UniqueName)
		if login == "" {
			login = deref(m.Identity.DisplayName)
		}
		role := "member"
		if m.IsTeamAdmin != nil && *m.IsTeamAdmin {
			role = "maintainer"
		}
		result = append(result, Member{Login: login, Role: role})
	}
	return result, nil
}

// ListTeamRepositories returns every Git repository in the team's project
func (c *AzureDevOpsConnector) ListTeamRepositories(ctx context.Context, project, slug string) ([]Repository, error) {
	if _, err := c.lookupTeam(ctx, project, slug); err != nil {
		return nil, err
	}

	repos, err := c.client.GetRepositories(ctx, project)
	if err != nil {
		return nil, err
	}

	result := make([]Repository, 0, len(repos))
	for _, r := range repos {
		visibility := models.VisibilityPrivate
		if r.Project != nil && r.Project.Visibility != nil && *r.Project.Visibility == core.ProjectVisibilityValues.Public {
			visibility = models.VisibilityPublic
		}
		result = append(result, Repository{
			FullName:   project + "/" + deref(r.Name),
			Permission: c.permission,
			Visibility: visibility,
			Archived:   r.IsDisabled != nil && *r.IsDisabled,
		})
	}
	return result, nil
}

// ValidateCredentials validates that the connector's credentials are valid
func (c *AzureDevOpsConnector) ValidateCredentials(ctx context.Context) error {
	if err := c.client.ValidateCredentials(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
