package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kuhlman-labs/team-migrator/internal/source"
)

// SyncTeams handles POST /api/v1/teams/sync
// Reads the organization's teams, members and repositories from the source
// and records them. It runs synchronously so the caller gets the summary.
func (h *Handler) SyncTeams(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		WriteError(w, ErrClientNotConfigured.WithDetails("Source connector"))
		return
	}

	var req SyncTeamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ErrInvalidJSON)
		return
	}
	req.Organization = strings.TrimSpace(req.Organization)
	if req.Organization == "" {
		WriteError(w, ErrMissingField.WithField("organization"))
		return
	}

	ctx := r.Context()
	result, err := h.syncer.SyncOrganization(ctx, req.Organization)
	if err != nil {
		if h.handleContextError(ctx, err, "sync teams", r) {
			return
		}
		h.logger.Error("Team sync failed", "error", err, "org", req.Organization)
		WriteError(w, ErrSourceUnavailable.WithDetails(err.Error()))
		return
	}

	h.sendJSON(w, http.StatusOK, result)
}

// TeamMember is one entry of the team members response.
type TeamMember struct {
	Login string `json:"login"`
	Role  string `json:"role"`
}

// GetTeamMembers handles GET /api/v1/teams/{org}/{slug}/members
// Members are read live from the source.
func (h *Handler) GetTeamMembers(w http.ResponseWriter, r *http.Request) {
	if h.connector == nil {
		WriteError(w, ErrClientNotConfigured.WithDetails("Source connector"))
		return
	}

	ctx := r.Context()
	org, slug := teamPath(r)

	members, err := h.connector.ListTeamMembers(ctx, org, slug)
	if errors.Is(err, source.ErrTeamNotFound) {
		WriteError(w, ErrNotFound.WithDetails("team "+org+"/"+slug))
		return
	}
	if err != nil {
		if h.handleContextError(ctx, err, "get team members", r) {
			return
		}
		h.logger.Error("Failed to get team members", "error", err, "team", org+"/"+slug)
		WriteError(w, ErrSourceUnavailable.WithDetails(err.Error()))
		return
	}

	out := make([]TeamMember, 0, len(members))
	for _, m := range members {
		out = append(out, TeamMember{Login: m.Login, Role: m.Role})
	}
	h.sendJSON(w, http.StatusOK, map[string]any{
		"members": out,
		"total":   len(out),
	})
}
