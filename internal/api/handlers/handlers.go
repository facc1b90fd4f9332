// Package handlers implements the team mapping and team migration HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/discovery"
	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/source"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// Orchestrator is the part of *migration.Orchestrator the API drives.
type Orchestrator interface {
	ExecuteMigration(ctx context.Context, scope migration.Scope, dryRun bool) (*migration.Progress, error)
	CancelMigration() bool
	ResetMigrationStatus(ctx context.Context, sourceOrg string) (int64, error)
	IsRunning() bool
	Progress() *migration.Progress
}

// TeamSyncer records source teams in the mapping store.
type TeamSyncer interface {
	SyncOrganization(ctx context.Context, org string) (*discovery.SyncResult, error)
}

var (
	_ Orchestrator = (*migration.Orchestrator)(nil)
	_ TeamSyncer   = (*discovery.TeamSyncer)(nil)
)

// Config holds the dependencies of Handler. Syncer and Connector are
// optional; the endpoints that need them answer 503 without them.
type Config struct {
	Store        storage.TeamMappingStore
	Orchestrator Orchestrator
	Syncer       TeamSyncer
	Connector    source.Connector
	Logger       *slog.Logger

	// StreamInterval is how often the execution status stream pushes a
	// snapshot. Defaults to one second.
	StreamInterval time.Duration
}

// Handler contains the HTTP handlers for the API
type Handler struct {
	db             storage.TeamMappingStore
	orchestrator   Orchestrator
	syncer         TeamSyncer
	connector      source.Connector
	logger         *slog.Logger
	streamInterval time.Duration
}

// NewHandler creates a new Handler instance
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	return &Handler{
		db:             cfg.Store,
		orchestrator:   cfg.Orchestrator,
		syncer:         cfg.Syncer,
		connector:      cfg.Connector,
		logger:         cfg.Logger,
		streamInterval: cfg.StreamInterval,
	}, nil
}

// RegisterRoutes registers every API route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/team-mappings", h.ListTeamMappings)
	mux.HandleFunc("GET /api/v1/team-mappings/stats", h.GetTeamMappingStats)
	mux.HandleFunc("GET /api/v1/team-mappings/source-orgs", h.GetTeamSourceOrgs)
	mux.HandleFunc("GET /api/v1/team-mappings/export", h.ExportTeamMappings)
	mux.HandleFunc("POST /api/v1/team-mappings/import", h.ImportTeamMappings)

	mux.HandleFunc("POST /api/v1/team-mappings/execute", h.ExecuteTeamMigration)
	mux.HandleFunc("POST /api/v1/team-mappings/cancel", h.CancelTeamMigration)
	mux.HandleFunc("POST /api/v1/team-mappings/reset", h.ResetTeamMigrationStatus)
	mux.HandleFunc("GET /api/v1/team-mappings/execution-status", h.GetTeamMigrationStatus)
	mux.HandleFunc("GET /api/v1/team-mappings/execution-status/stream", h.StreamTeamMigrationStatus)

	mux.HandleFunc("POST /api/v1/team-mappings/{org}/{slug}", h.UpdateTeamMapping)
	mux.HandleFunc("PATCH /api/v1/team-mappings/{org}/{slug}", h.UpdateTeamMapping)
	mux.HandleFunc("DELETE /api/v1/team-mappings/{org}/{slug}", h.DeleteTeamMapping)

	mux.HandleFunc("POST /api/v1/teams/sync", h.SyncTeams)
	mux.HandleFunc("GET /api/v1/teams/{org}/{slug}/members", h.GetTeamMembers)
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// handleContextError reports whether err is explained by the request
// context ending, in which case no response should be written.
func (h *Handler) handleContextError(ctx context.Context, err error, operation string, r *http.Request) bool {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		h.logger.Debug("Request canceled by client",
			"operation", operation,
			"path", r.URL.Path,
			"method", r.Method)
		return true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		h.logger.Warn("Request timeout",
			"operation", operation,
			"path", r.URL.Path,
			"method", r.Method,
			"error", err)
		return true
	}
	return false
}

// teamPath returns the {org} and {slug} path values, unescaping any
// percent-encoding the router left in place.
func teamPath(r *http.Request) (org, slug string) {
	return decodePathComponent(r.PathValue("org")), decodePathComponent(r.PathValue("slug"))
}

func decodePathComponent(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

// pageParams reads limit and offset. Invalid values fall back to the defaults.
func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			offset = o
		}
	}
	return limit, offset
}
