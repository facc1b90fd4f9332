package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
)

// ExecuteTeamMigration handles POST /api/v1/team-mappings/execute
// Starts a run over all mapped teams, one source org, or a single team when
// both source_org and source_team_slug are given. Returns 202 right away.
func (h *Handler) ExecuteTeamMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req MigrateTeamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, ErrInvalidJSON)
		return
	}
	if dryRun, err := strconv.ParseBool(r.URL.Query().Get("dry_run")); err == nil && dryRun {
		req.DryRun = true
	}

	scope := migration.Scope{SourceOrg: req.SourceOrg, SourceTeamSlug: req.SourceTeamSlug}
	progress, err := h.orchestrator.ExecuteMigration(ctx, scope, req.DryRun)
	switch {
	case errors.Is(err, migration.ErrAlreadyRunning):
		h.sendJSON(w, http.StatusConflict, map[string]any{
			"error":    ErrMigrationRunning.Message,
			"progress": h.orchestrator.Progress(),
		})
		return
	case errors.Is(err, migration.ErrInvalidScope):
		WriteError(w, ErrMissingField.WithField("source_org").WithDetails(err.Error()))
		return
	case errors.Is(err, migration.ErrNotFound):
		WriteError(w, ErrTeamMappingNotFound.WithDetails(req.SourceOrg+"/"+req.SourceTeamSlug))
		return
	case errors.Is(err, migration.ErrNotMapped):
		WriteError(w, ErrNotMapped.WithDetails(req.SourceOrg+"/"+req.SourceTeamSlug))
		return
	case err != nil:
		if h.handleContextError(ctx, err, "execute team migration", r) {
			return
		}
		h.logger.Error("Failed to start team migration", "error", err)
		WriteError(w, ErrInternal.WithDetails("Failed to start team migration"))
		return
	}

	h.sendJSON(w, http.StatusAccepted, map[string]any{
		"message":          "Team migration started",
		"run_id":           progress.RunID,
		"dry_run":          req.DryRun,
		"source_org":       req.SourceOrg,
		"source_team_slug": req.SourceTeamSlug,
		"progress":         progress,
	})
}

// CancelTeamMigration handles POST /api/v1/team-mappings/cancel
// Teams already being processed finish; nothing happens when idle.
func (h *Handler) CancelTeamMigration(w http.ResponseWriter, r *http.Request) {
	if !h.orchestrator.CancelMigration() {
		h.sendJSON(w, http.StatusAccepted, map[string]any{
			"message":   "No team migration is running",
			"cancelled": false,
		})
		return
	}

	h.sendJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Team migration cancellation requested",
		"cancelled": true,
	})
}

// ResetTeamMigrationStatus handles POST /api/v1/team-mappings/reset
// The optional source org comes from ?source_org or the JSON body.
func (h *Handler) ResetTeamMigrationStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sourceOrg := r.URL.Query().Get("source_org")
	if sourceOrg == "" {
		var req ResetTeamMigrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, ErrInvalidJSON)
			return
		}
		sourceOrg = req.SourceOrg
	}

	count, err := h.orchestrator.ResetMigrationStatus(ctx, sourceOrg)
	if errors.Is(err, migration.ErrAlreadyRunning) {
		WriteError(w, ErrConflict.WithDetails("Cannot reset while migration is running"))
		return
	}
	if err != nil {
		if h.handleContextError(ctx, err, "reset team migration status", r) {
			return
		}
		h.logger.Error("Failed to reset team migration status", "error", err)
		WriteError(w, ErrDatabaseUpdate.WithDetails("team migration status reset"))
		return
	}

	h.sendJSON(w, http.StatusOK, map[string]any{
		"message": "Team migration status reset to pending",
		"reset":   count,
	})
}

// ExecutionStatus is the body of the execution status endpoints.
type ExecutionStatus struct {
	IsRunning      bool                       `json:"is_running"`
	Progress       *migration.Progress        `json:"progress"`
	ExecutionStats *models.TeamExecutionStats `json:"execution_stats,omitempty"`
	MappingStats   *models.TeamMappingStats   `json:"mapping_stats,omitempty"`
}

// GetTeamMigrationStatus handles GET /api/v1/team-mappings/execution-status
func (h *Handler) GetTeamMigrationStatus(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, h.executionStatus(r))
}

// executionStatus gathers the run snapshot and store statistics. Store
// failures are logged and leave the stats out.
func (h *Handler) executionStatus(r *http.Request) ExecutionStatus {
	ctx := r.Context()
	status := ExecutionStatus{
		IsRunning: h.orchestrator.IsRunning(),
		Progress:  h.orchestrator.Progress(),
	}

	executionStats, err := h.db.GetTeamMigrationExecutionStats(ctx)
	if err != nil {
		h.logger.Warn("Failed to get team migration execution stats", "error", err)
	} else {
		status.ExecutionStats = executionStats
	}

	mappingStats, err := h.db.GetTeamMappingStats(ctx, "")
	if err != nil {
		h.logger.Warn("Failed to get team mapping stats", "error", err)
	} else {
		status.MappingStats = mappingStats
	}
	return status
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamTeamMigrationStatus handles GET /api/v1/team-mappings/execution-status/stream
// It upgrades to a websocket and pushes the execution status every stream
// interval until the client disconnects.
func (h *Handler) StreamTeamMigrationStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Reads only serve to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	send := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(h.executionStatus(r)); err != nil {
			h.logger.Debug("Execution status stream closed", "error", err)
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
