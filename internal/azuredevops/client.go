package azuredevops

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/webapi"
)

// teamPageSize is the largest page the teams endpoints accept
const teamPageSize = 100

// Client wraps the Azure DevOps core and git API clients
type Client struct {
	connection *azuredevops.Connection
	coreClient core.Client
	gitClient  git.Client
	orgURL     string
	logger     *slog.Logger
}

// ClientConfig contains configuration for creating an ADO client
type ClientConfig struct {
	OrganizationURL     string
	PersonalAccessToken string
	Logger              *slog.Logger
}

// Validate checks if the configuration is valid
func (c ClientConfig) Validate() error {
	if c.OrganizationURL == "" {
		return fmt.Errorf("organization URL is required")
	}
	if !strings.HasPrefix(c.OrganizationURL, "https://") && !strings.HasPrefix(c.OrganizationURL, "http://") {
		return fmt.Errorf("organization URL must be an http(s) URL: %s", c.OrganizationURL)
	}
	if c.PersonalAccessToken == "" {
		return fmt.Errorf("personal access token is required")
	}
	return nil
}

// NewClient creates a new Azure DevOps client. Creating the service clients
// resolves their resource areas, so this needs network access.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connection := azuredevops.NewPatConnection(cfg.OrganizationURL, cfg.PersonalAccessToken)

	coreClient, err := core.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create core client: %w", err)
	}

	gitClient, err := git.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create git client: %w", err)
	}

	return &Client{
		connection: connection,
		coreClient: coreClient,
		gitClient:  gitClient,
		orgURL:     strings.TrimSuffix(cfg.OrganizationURL, "/"),
		logger:     logger,
	}, nil
}

// OrganizationURL returns the organization URL the client talks to
func (c *Client) OrganizationURL() string {
	return c.orgURL
}

// GetProjects returns all projects in the organization
func (c *Client) GetProjects(ctx context.Context) ([]core.TeamProjectReference, error) {
	var all []core.TeamProjectReference
	args := core.GetProjectsArgs{}

	for {
		page, err := c.coreClient.GetProjects(ctx, args)
		if err != nil {
			return nil, fmt.Errorf("failed to get projects: %w", err)
		}
		if page == nil {
			break
		}
		all = append(all, page.Value...)
		if page.ContinuationToken == "" {
			break
		}
		token, err := strconv.Atoi(page.ContinuationToken)
		if err != nil {
			return nil, fmt.Errorf("failed to parse projects continuation token: %w", err)
		}
		args.ContinuationToken = &token
	}

	return all, nil
}

// GetProject returns a specific project by name
func (c *Client) GetProject(ctx context.Context, projectName string) (*core.TeamProject, error) {
	project, err := c.coreClient.GetProject(ctx, core.GetProjectArgs{
		ProjectId: &projectName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// GetRepositories returns all Git repositories in a project
func (c *Client) GetRepositories(ctx context.Context, projectName string) ([]git.GitRepository, error) {
	repos, err := c.gitClient.GetRepositories(ctx, git.GetRepositoriesArgs{
		Project: &projectName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get repositories: %w", err)
	}

	if repos == nil {
		return []git.GitRepository{}, nil
	}
	return *repos, nil
}

// GetTeams returns every team in a project
func (c *Client) GetTeams(ctx context.Context, projectName string) ([]core.WebApiTeam, error) {
	var all []core.WebApiTeam
	top := teamPageSize

	for skip := 0; ; skip += teamPageSize {
		skip := skip
		page, err := c.coreClient.GetTeams(ctx, core.GetTeamsArgs{
			ProjectId: &projectName,
			Top:       &top,
			Skip:      &skip,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get teams for project %s: %w", projectName, err)
		}
		if page == nil {
			break
		}
		all = append(all, *page...)
		if len(*page) < teamPageSize {
			break
		}
	}

	c.logger.Debug("Listed Azure DevOps teams", "project", projectName, "count", len(all))
	return all, nil
}

// GetTeamMembers returns the members of a team. teamID may be the team name
// or its GUID.
func (c *Client) GetTeamMembers(ctx context.Context, projectName, teamID string) ([]webapi.TeamMember, error) {
	var all []webapi.TeamMember
	top := teamPageSize

	for skip := 0; ; skip += teamPageSize {
		skip := skip
		page, err := c.coreClient.GetTeamMembersWithExtendedProperties(ctx, core.GetTeamMembersWithExtendedPropertiesArgs{
			ProjectId: &projectName,
			TeamId:    &teamID,
			Top:       &top,
			Skip:      &skip,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get members of team %s/%s: %w", projectName, teamID, err)
		}
		if page == nil {
			break
		}
		all = append(all, *page...)
		if len(*page) < teamPageSize {
			break
		}
	}

	return all, nil
}

// ValidateCredentials validates the PAT by attempting to list projects
func (c *Client) ValidateCredentials(ctx context.Context) error {
	if _, err := c.GetProjects(ctx); err != nil {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	return nil
}
