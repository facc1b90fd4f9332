package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

const testPrefix = "team-mig-test-"

// TestTeamConfig defines a source team and the repository access it gets
type TestTeamConfig struct {
	Name        string
	Description string
	// Repos maps repository suffix to permission
	Repos map[string]string
}

// TestRepoConfig defines a test repository
type TestRepoConfig struct {
	Name     string
	Private  bool
	Archived bool
}

func main() {
	orgName := flag.String("org", "", "GitHub source organization name (required)")
	token := flag.String("token", os.Getenv("GITHUB_TOKEN"), "GitHub token (or set GITHUB_TOKEN env var)")
	cleanupOnly := flag.Bool("cleanup", false, "Only cleanup existing test teams and repositories")
	flag.Parse()

	if *orgName == "" {
		log.Fatal("Organization name is required: -org <org-name>")
	}
	if *token == "" {
		log.Fatal("GitHub token is required: -token <token> or set GITHUB_TOKEN env var")
	}

	ctx := context.Background()
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: *token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if _, _, err := client.Organizations.Get(ctx, *orgName); err != nil {
		log.Fatalf("Failed to access organization %s: %v", *orgName, err)
	}
	log.Printf("Successfully connected to organization: %s", *orgName)

	if *cleanupOnly {
		cleanup(ctx, client, *orgName)
		return
	}

	for _, repo := range testRepos() {
		if err := createTestRepo(ctx, client, *orgName, repo); err != nil {
			log.Printf("Failed to create repository %s: %v", repo.Name, err)
		}
	}

	for _, team := range testTeams() {
		if err := createTestTeam(ctx, client, *orgName, team); err != nil {
			log.Printf("Failed to create team %s: %v", team.Name, err)
		}
	}

	log.Println("Test fixtures ready. Run `team-migrator sync --org " + *orgName + "` to discover them.")
}

func testRepos() []TestRepoConfig {
	return []TestRepoConfig{
		{Name: testPrefix + "api", Private: true},
		{Name: testPrefix + "web", Private: true},
		{Name: testPrefix + "docs", Private: false},
		{Name: testPrefix + "infra", Private: true},
		{Name: testPrefix + "legacy", Private: true, Archived: true},
	}
}

// testTeams covers the sync outcomes: full access, a mix of permissions,
// archived repositories only, and no repositories at all.
func testTeams() []TestTeamConfig {
	return []TestTeamConfig{
		{
			Name:        testPrefix + "platform",
			Description: "Owns the API and infrastructure",
			Repos:       map[string]string{"api": "push", "infra": "maintain", "docs": "pull"},
		},
		{
			Name:        testPrefix + "frontend",
			Description: "Owns the web app",
			Repos:       map[string]string{"web": "push", "api": "triage", "docs": "pull"},
		},
		{
			Name:        testPrefix + "admins",
			Description: "Administers every repository",
			Repos:       map[string]string{"api": "admin", "web": "admin", "docs": "admin", "infra": "admin", "legacy": "admin"},
		},
		{
			Name:        testPrefix + "archivists",
			Description: "Only has access to archived repositories",
			Repos:       map[string]string{"legacy": "push"},
		},
		{
			Name:        testPrefix + "empty",
			Description: "Has no repository access",
		},
	}
}

func createTestRepo(ctx context.Context, client *github.Client, org string, config TestRepoConfig) error {
	_, resp, err := client.Repositories.Get(ctx, org, config.Name)
	if err == nil {
		log.Printf("  Repository %s already exists, skipping creation", config.Name)
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected error checking repository: %w", err)
	}

	created, _, err := client.Repositories.Create(ctx, org, &github.Repository{
		Name:     github.Ptr(config.Name),
		Private:  github.Ptr(config.Private),
		AutoInit: github.Ptr(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create repository: %w", err)
	}
	log.Printf("  Repository created: %s", created.GetHTMLURL())

	if config.Archived {
		// Permissions are granted before archiving; teams keep them afterwards.
		time.Sleep(2 * time.Second)
		if _, _, err := client.Repositories.Edit(ctx, org, config.Name, &github.Repository{Archived: github.Ptr(true)}); err != nil {
			return fmt.Errorf("failed to archive repository: %w", err)
		}
		log.Printf("  Repository archived: %s", config.Name)
	}
	return nil
}

func createTestTeam(ctx context.Context, client *github.Client, org string, config TestTeamConfig) error {
	team, resp, err := client.Teams.GetTeamBySlug(ctx, org, config.Name)
	switch {
	case err == nil:
		log.Printf("  Team %s already exists, updating repository access", config.Name)
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		team, _, err = client.Teams.CreateTeam(ctx, org, github.NewTeam{
			Name:        config.Name,
			Description: github.Ptr(config.Description),
			Privacy:     github.Ptr("closed"),
		})
		if err != nil {
			return fmt.Errorf("failed to create team: %w", err)
		}
		log.Printf("  Team created: %s", team.GetSlug())
	default:
		return fmt.Errorf("unexpected error checking team: %w", err)
	}

	for suffix, permission := range config.Repos {
		repo := testPrefix + suffix
		_, err := client.Teams.AddTeamRepoBySlug(ctx, org, team.GetSlug(), org, repo, &github.TeamAddTeamRepoOptions{
			Permission: permission,
		})
		if err != nil {
			log.Printf("    Failed to grant %s on %s: %v", permission, repo, err)
			continue
		}
		log.Printf("    Granted %s on %s", permission, repo)
	}
	return nil
}

// cleanup deletes every team and repository with the test prefix
func cleanup(ctx context.Context, client *github.Client, org string) {
	log.Printf("Cleaning up test fixtures in organization: %s", org)

	teamOpt := &github.ListOptions{PerPage: 100}
	for {
		teams, resp, err := client.Teams.ListTeams(ctx, org, teamOpt)
		if err != nil {
			log.Fatalf("Failed to list teams: %v", err)
		}
		for _, team := range teams {
			if !strings.HasPrefix(team.GetSlug(), testPrefix) {
				continue
			}
			if _, err := client.Teams.DeleteTeamBySlug(ctx, org, team.GetSlug()); err != nil {
				log.Printf("  Failed to delete team %s: %v", team.GetSlug(), err)
			} else {
				log.Printf("  Deleted team %s", team.GetSlug())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		teamOpt.Page = resp.NextPage
	}

	for _, repo := range testRepos() {
		if repo.Archived {
			// Archived repositories must be unarchived before deletion
			if _, _, err := client.Repositories.Edit(ctx, org, repo.Name, &github.Repository{Archived: github.Ptr(false)}); err != nil {
				log.Printf("  Failed to unarchive %s: %v", repo.Name, err)
			}
		}
		if _, err := client.Repositories.Delete(ctx, org, repo.Name); err != nil {
			log.Printf("  Failed to delete repository %s: %v", repo.Name, err)
		} else {
			log.Printf("  Deleted repository %s", repo.Name)
		}
		time.Sleep(1 * time.Second)
	}

	log.Println("Cleanup complete")
}
