// Package source reads teams, their repositories and their members from the
// system teams are migrated from.
package source

import (
	"context"
	"errors"
	"strings"
)

// ErrAuthenticationFailed indicates authentication to the source system failed
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrTeamNotFound indicates the team does not exist in the source
var ErrTeamNotFound = errors.New("team not found")

// ConnectorType represents the type of source system
type ConnectorType string

const (
	// ConnectorGitHub represents GitHub.com or GitHub Enterprise Server
	ConnectorGitHub ConnectorType = "github"
	// ConnectorAzureDevOps represents Azure DevOps Services or Server
	ConnectorAzureDevOps ConnectorType = "azuredevops"
)

// Team is a source team
type Team struct {
	Org         string
	Slug        string
	Name        string
	Description string
	MemberCount int
}

// Repository is a repository a source team can access
type Repository struct {
	FullName   string // owner/name
	Permission string // pull, triage, push, maintain or admin
	Visibility string
	Archived   bool
}

// Member is a member of a source team
type Member struct {
	Login string
	Role  string // member or maintainer
}

// Connector reads teams from a source system. Implementations must be safe
// for concurrent use.
type Connector interface {
	// Type returns the connector type
	Type() ConnectorType

	// Name returns a human-readable name for this connector instance
	Name() string

	ListTeams(ctx context.Context, org string) ([]Team, error)
	ListTeamMembers(ctx context.Context, org, slug string) ([]Member, error)
	ListTeamRepositories(ctx context.Context, org, slug string) ([]Repository, error)

	// ValidateCredentials validates that the connector's credentials are valid
	ValidateCredentials(ctx context.Context) error
}

// Slugify derives a GitHub-style team slug from a display name:
// lowercase, runs of other characters collapsed to a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
