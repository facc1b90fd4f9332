package handlers

// UpdateTeamMappingRequest is the body of a manual mapping edit. Omitted
// fields are left unchanged; an empty string clears a destination field.
type UpdateTeamMappingRequest struct {
	DestinationOrg      *string `json:"destination_org,omitempty"`
	DestinationTeamSlug *string `json:"destination_team_slug,omitempty"`
	DestinationTeamName *string `json:"destination_team_name,omitempty"`
	MappingStatus       *string `json:"mapping_status,omitempty"`
}

// MigrateTeamsRequest is the body of POST /api/v1/team-mappings/execute.
// Both source fields select a single team; source_org alone selects one
// organization.
type MigrateTeamsRequest struct {
	SourceOrg      string `json:"source_org,omitempty"`
	SourceTeamSlug string `json:"source_team_slug,omitempty"`
	DryRun         bool   `json:"dry_run,omitempty"`
}

// ResetTeamMigrationRequest is the optional body of POST /api/v1/team-mappings/reset.
type ResetTeamMigrationRequest struct {
	SourceOrg string `json:"source_org,omitempty"`
}

// SyncTeamsRequest is the body of POST /api/v1/teams/sync.
type SyncTeamsRequest struct {
	Organization string `json:"organization"`
}

// ImportResult is the response of a mapping import.
type ImportResult struct {
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Errors   int      `json:"errors"`
	Messages []string `json:"messages"`
}
