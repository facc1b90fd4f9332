// Package models provides domain types and constants for the team migrator.
//
// This file consolidates the string constants shared across packages. Typed
// status enums live in status.go.
package models

// Visibility constants for repository access control.
// These values align with GitHub's visibility settings.
const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityInternal = "internal"
)

// ValidVisibilities returns all valid visibility values.
func ValidVisibilities() []string {
	return []string{VisibilityPublic, VisibilityPrivate, VisibilityInternal}
}

// IsValidVisibility checks if a visibility value is valid.
func IsValidVisibility(visibility string) bool {
	for _, v := range ValidVisibilities() {
		if v == visibility {
			return true
		}
	}
	return false
}

// Source type constants for team origins.
const (
	SourceTypeGitHub      = "github"
	SourceTypeAzureDevOps = "azuredevops"
)

// Team privacy values accepted by the GitHub teams API.
const (
	TeamPrivacyClosed = "closed"
	TeamPrivacySecret = "secret"
)

// Repository permission levels granted to a team.
const (
	PermissionPull     = "pull"
	PermissionTriage   = "triage"
	PermissionPush     = "push"
	PermissionMaintain = "maintain"
	PermissionAdmin    = "admin"
)

// ValidPermissions returns the permission levels in ascending order of access.
func ValidPermissions() []string {
	return []string{PermissionPull, PermissionTriage, PermissionPush, PermissionMaintain, PermissionAdmin}
}

// NormalizePermission maps GitHub role names and their legacy aliases onto
// the canonical permission levels. Unknown values return "".
func NormalizePermission(p string) string {
	switch p {
	case PermissionPull, "read":
		return PermissionPull
	case PermissionTriage:
		return PermissionTriage
	case PermissionPush, "write":
		return PermissionPush
	case PermissionMaintain:
		return PermissionMaintain
	case PermissionAdmin:
		return PermissionAdmin
	default:
		return ""
	}
}
