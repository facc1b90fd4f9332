package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// handleListTeamMappings implements the list_team_mappings tool
func (s *Server) handleListTeamMappings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	filters := storage.TeamMappingFilters{
		SourceOrg: req.GetString("source_org", ""),
		Search:    req.GetString("search", ""),
		Limit:     limit,
	}
	if status := req.GetString("status", ""); status != "" {
		parsed := models.ParseMappingStatus(status)
		if !parsed.IsValid() {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid mapping status: %s", status)), nil
		}
		filters.Status = string(parsed)
	}
	if syncStatus := req.GetString("sync_status", ""); syncStatus != "" {
		parsed := models.ParseSyncStatus(syncStatus)
		if parsed == models.SyncStatusUnknown {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid sync status: %s", syncStatus)), nil
		}
		filters.SyncStatus = parsed
	}

	mappings, total, err := s.store.ListTeamMappings(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to list team mappings", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query team mappings: %v", err)), nil
	}

	summaries := make([]TeamMappingSummary, 0, len(mappings))
	for _, m := range mappings {
		summaries = append(summaries, mappingToSummary(m))
	}

	return s.jsonResult(ListTeamMappingsOutput{
		Mappings: summaries,
		Returned: len(summaries),
		Total:    total,
		Message:  fmt.Sprintf("Found %d team mappings matching criteria", total),
	})
}

// handleGetTeamRepositories implements the get_team_repositories tool
func (s *Server) handleGetTeamRepositories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	team, err := req.RequireString("team")
	if err != nil {
		return mcp.NewToolResultError("team parameter is required"), nil
	}
	org, slug, ok := strings.Cut(strings.TrimSpace(team), "/")
	if !ok || org == "" || slug == "" {
		return mcp.NewToolResultError("team must be in format org/team-slug"), nil
	}

	mapping, err := s.store.GetTeamMapping(ctx, org, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load team mapping: %v", err)), nil
	}
	if mapping == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Team not found: %s", team)), nil
	}

	repos, err := s.store.ListTeamRepositories(ctx, org, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list team repositories: %v", err)), nil
	}

	destOrg := ""
	if mapping.DestinationOrg != nil {
		destOrg = *mapping.DestinationOrg
	}
	summaries := make([]TeamRepositorySummary, 0, len(repos))
	for _, r := range repos {
		summaries = append(summaries, repoToSummary(destOrg, r))
	}

	return s.jsonResult(TeamRepositoriesOutput{
		Team:         mappingToSummary(mapping),
		Repositories: summaries,
		Message:      fmt.Sprintf("%s has %d repositories, %d of %d eligible granted", team, len(repos), mapping.ReposSynced, mapping.ReposEligible),
	})
}

// handleGetMigrationStatus implements the get_team_migration_status tool
func (s *Server) handleGetMigrationStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	execStats, err := s.store.GetTeamMigrationExecutionStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load execution stats: %v", err)), nil
	}
	mappingStats, err := s.store.GetTeamMappingStats(ctx, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load mapping stats: %v", err)), nil
	}

	return s.jsonResult(MigrationStatusOutput{
		IsRunning:      s.orchestrator.IsRunning(),
		Progress:       s.orchestrator.Progress(),
		ExecutionStats: execStats,
		MappingStats:   mappingStats,
	})
}

// handleExecuteMigration implements the execute_team_migration tool
func (s *Server) handleExecuteMigration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := migration.Scope{
		SourceOrg:      strings.TrimSpace(req.GetString("source_org", "")),
		SourceTeamSlug: strings.TrimSpace(req.GetString("source_team_slug", "")),
	}
	dryRun := req.GetBool("dry_run", false)

	progress, err := s.orchestrator.ExecuteMigration(ctx, scope, dryRun)
	switch {
	case errors.Is(err, migration.ErrAlreadyRunning):
		return mcp.NewToolResultError("A team migration is already running; check get_team_migration_status or cancel it first"), nil
	case errors.Is(err, migration.ErrInvalidScope):
		return mcp.NewToolResultError("source_team_slug requires source_org"), nil
	case errors.Is(err, migration.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Team mapping not found: %s/%s", scope.SourceOrg, scope.SourceTeamSlug)), nil
	case errors.Is(err, migration.ErrNotMapped):
		return mcp.NewToolResultError(fmt.Sprintf("Team %s/%s is not mapped to a destination team", scope.SourceOrg, scope.SourceTeamSlug)), nil
	case err != nil:
		s.logger.Error("Failed to start team migration via MCP", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start team migration: %v", err)), nil
	}

	s.logger.Info("Team migration started via MCP", "run_id", progress.RunID, "dry_run", dryRun)

	msg := fmt.Sprintf("Started run %s over %d teams", progress.RunID, progress.TotalTeams)
	if dryRun {
		msg += " (dry run)"
	}
	return s.jsonResult(ExecuteOutput{
		RunID:    progress.RunID,
		DryRun:   dryRun,
		Progress: progress,
		Message:  msg,
	})
}

// handleCancelMigration implements the cancel_team_migration tool
func (s *Server) handleCancelMigration(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.orchestrator.CancelMigration() {
		return mcp.NewToolResultText("No team migration is running"), nil
	}
	s.logger.Info("Team migration cancellation requested via MCP")
	return mcp.NewToolResultText("Cancellation requested; teams in flight will finish"), nil
}

// jsonResult is a helper to create a JSON result
func (s *Server) jsonResult(data any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
