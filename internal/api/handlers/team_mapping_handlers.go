package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kuhlman-labs/team-migrator/internal/mappingio"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// maxImportSize bounds uploaded mapping files.
const maxImportSize = 10 << 20

// ListTeamMappings handles GET /api/v1/team-mappings
// Supports ?search, ?status (mapping status), ?sync_status, ?source_org,
// ?destination_org, ?limit (default 100) and ?offset.
func (h *Handler) ListTeamMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filters := storage.TeamMappingFilters{
		SourceOrg:      q.Get("source_org"),
		DestinationOrg: q.Get("destination_org"),
		Search:         q.Get("search"),
	}
	if status := q.Get("status"); status != "" {
		parsed := models.ParseMappingStatus(status)
		if !parsed.IsValid() {
			WriteError(w, ErrInvalidField.WithField("status").WithDetails(status))
			return
		}
		filters.Status = string(parsed)
	}
	if syncStatus := q.Get("sync_status"); syncStatus != "" {
		parsed := models.ParseSyncStatus(syncStatus)
		if parsed == models.SyncStatusUnknown {
			WriteError(w, ErrInvalidField.WithField("sync_status").WithDetails(syncStatus))
			return
		}
		filters.SyncStatus = parsed
	}
	filters.Limit, filters.Offset = pageParams(r, 100)

	mappings, total, err := h.db.ListTeamMappings(ctx, filters)
	if err != nil {
		if h.handleContextError(ctx, err, "list team mappings", r) {
			return
		}
		h.logger.Error("Failed to list team mappings", "error", err)
		WriteError(w, ErrDatabaseFetch.WithDetails("team mappings"))
		return
	}
	if mappings == nil {
		mappings = []*models.TeamMapping{}
	}

	h.sendJSON(w, http.StatusOK, map[string]any{
		"mappings": mappings,
		"total":    total,
	})
}

// GetTeamMappingStats handles GET /api/v1/team-mappings/stats
func (h *Handler) GetTeamMappingStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.db.GetTeamMappingStats(ctx, r.URL.Query().Get("source_org"))
	if err != nil {
		if h.handleContextError(ctx, err, "get team mapping stats", r) {
			return
		}
		h.logger.Error("Failed to get team mapping stats", "error", err)
		WriteError(w, ErrDatabaseFetch.WithDetails("team mapping stats"))
		return
	}

	h.sendJSON(w, http.StatusOK, stats)
}

// GetTeamSourceOrgs handles GET /api/v1/team-mappings/source-orgs
func (h *Handler) GetTeamSourceOrgs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgs, err := h.db.GetTeamSourceOrgs(ctx)
	if err != nil {
		if h.handleContextError(ctx, err, "get team source orgs", r) {
			return
		}
		h.logger.Error("Failed to get team source orgs", "error", err)
		WriteError(w, ErrDatabaseFetch.WithDetails("source organizations"))
		return
	}
	if orgs == nil {
		orgs = []string{}
	}

	h.sendJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

// UpdateTeamMapping handles POST and PATCH /api/v1/team-mappings/{org}/{slug}.
// A mapping that does not exist yet is created. Completing the destination
// without naming a status marks the team mapped.
func (h *Handler) UpdateTeamMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceOrg, sourceTeamSlug := teamPath(r)

	var req UpdateTeamMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, ErrInvalidJSON)
		return
	}

	existing, err := h.db.GetTeamMapping(ctx, sourceOrg, sourceTeamSlug)
	if err != nil {
		if h.handleContextError(ctx, err, "get team mapping", r) {
			return
		}
		h.logger.Error("Failed to get team mapping", "error", err)
		WriteError(w, ErrDatabaseFetch.WithDetails("team mapping"))
		return
	}

	edit := storage.TeamMappingEdit{
		DestinationOrg:      trimmed(req.DestinationOrg),
		DestinationTeamSlug: trimmed(req.DestinationTeamSlug),
		DestinationTeamName: trimmed(req.DestinationTeamName),
	}
	if req.MappingStatus != nil {
		status := models.ParseMappingStatus(*req.MappingStatus)
		if !status.IsValid() {
			WriteError(w, ErrInvalidField.WithField("mapping_status").WithDetails(*req.MappingStatus))
			return
		}
		edit.MappingStatus = &status
	}

	// Validate against the row as it will look after the edit.
	merged := applyEdit(existing, sourceOrg, sourceTeamSlug, edit)
	updatingDestination := req.DestinationOrg != nil || req.DestinationTeamSlug != nil
	if edit.MappingStatus == nil && updatingDestination && merged.HasDestination() {
		mapped := models.MappingStatusMapped
		edit.MappingStatus = &mapped
		merged.MappingStatus = mapped
	}
	if merged.MappingStatus == models.MappingStatusMapped && !merged.HasDestination() {
		WriteError(w, ErrBadRequest.WithDetails("Cannot set status to 'mapped' without destination_org and destination_team_slug"))
		return
	}

	var saved *models.TeamMapping
	if existing == nil {
		err = h.db.SaveTeamMapping(ctx, merged)
		saved = merged
	} else {
		saved, err = h.db.UpdateTeamMapping(ctx, sourceOrg, sourceTeamSlug, edit)
	}
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, ErrTeamMappingNotFound.WithDetails(sourceOrg+"/"+sourceTeamSlug))
		return
	}
	if err != nil {
		if h.handleContextError(ctx, err, "update team mapping", r) {
			return
		}
		h.logger.Error("Failed to update team mapping", "error", err)
		WriteError(w, ErrDatabaseUpdate.WithDetails("team mapping"))
		return
	}

	h.logger.Info("Team mapping updated",
		"team", saved.SourceFullSlug(),
		"destination", saved.DestinationFullSlug(),
		"mapping_status", saved.MappingStatus)
	h.sendJSON(w, http.StatusOK, saved)
}

// applyEdit returns a copy of existing (or a fresh unmapped row) with edit applied.
func applyEdit(existing *models.TeamMapping, sourceOrg, sourceTeamSlug string, edit storage.TeamMappingEdit) *models.TeamMapping {
	var m models.TeamMapping
	if existing != nil {
		m = *existing
	} else {
		m = models.TeamMapping{
			SourceOrg:       sourceOrg,
			SourceTeamSlug:  sourceTeamSlug,
			MappingStatus:   models.MappingStatusUnmapped,
			MigrationStatus: models.MigrationPending,
		}
	}
	if edit.DestinationOrg != nil {
		m.DestinationOrg = nilIfEmpty(*edit.DestinationOrg)
	}
	if edit.DestinationTeamSlug != nil {
		m.DestinationTeamSlug = nilIfEmpty(*edit.DestinationTeamSlug)
	}
	if edit.DestinationTeamName != nil {
		m.DestinationTeamName = nilIfEmpty(*edit.DestinationTeamName)
	}
	if edit.MappingStatus != nil {
		m.MappingStatus = *edit.MappingStatus
	}
	return &m
}

// DeleteTeamMapping handles DELETE /api/v1/team-mappings/{org}/{slug}
func (h *Handler) DeleteTeamMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sourceOrg, sourceTeamSlug := teamPath(r)

	err := h.db.DeleteTeamMapping(ctx, sourceOrg, sourceTeamSlug)
	if errors.Is(err, storage.ErrNotFound) {
		WriteError(w, ErrTeamMappingNotFound.WithDetails(sourceOrg+"/"+sourceTeamSlug))
		return
	}
	if err != nil {
		if h.handleContextError(ctx, err, "delete team mapping", r) {
			return
		}
		h.logger.Error("Failed to delete team mapping", "error", err)
		WriteError(w, ErrDatabaseDelete.WithDetails("team mapping"))
		return
	}

	h.sendJSON(w, http.StatusOK, map[string]string{"message": "Team mapping deleted"})
}

// ImportTeamMappings handles POST /api/v1/team-mappings/import
// The file comes from the multipart "file" field or the raw request body.
// The format is taken from ?format, then the uploaded file name, then CSV.
func (h *Handler) ImportTeamMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, filename, apiErr := readImportBody(r)
	if apiErr != nil {
		WriteError(w, *apiErr)
		return
	}

	formatHint := r.URL.Query().Get("format")
	if formatHint == "" {
		formatHint = filename
	}
	format, err := mappingio.ParseFormat(formatHint)
	if err != nil {
		WriteError(w, ErrInvalidField.WithField("format").WithDetails(err.Error()))
		return
	}

	decoded, err := mappingio.Decode(bytes.NewReader(body), format)
	if err != nil {
		WriteError(w, ErrBadRequest.WithDetails(err.Error()))
		return
	}

	result := ImportResult{
		Errors:   len(decoded.Errors),
		Messages: decoded.Errors,
	}
	if result.Messages == nil {
		result.Messages = []string{}
	}

	if len(decoded.Mappings) > 0 {
		result.Created, result.Updated, err = h.db.ImportTeamMappings(ctx, decoded.Mappings)
		if err != nil {
			if h.handleContextError(ctx, err, "import team mappings", r) {
				return
			}
			h.logger.Error("Failed to import team mappings", "error", err)
			WriteError(w, ErrDatabaseSave.WithDetails("team mappings"))
			return
		}
	}

	h.logger.Info("Imported team mappings",
		"format", format,
		"created", result.Created,
		"updated", result.Updated,
		"errors", result.Errors)
	h.sendJSON(w, http.StatusOK, result)
}

func readImportBody(r *http.Request) ([]byte, string, *APIError) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportSize); err != nil {
			e := ErrBadRequest.WithDetails("Failed to parse form data")
			return nil, "", &e
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			e := ErrMissingField.WithField("file")
			return nil, "", &e
		}
		defer file.Close()
		body, err := io.ReadAll(file)
		if err != nil {
			e := ErrBadRequest.WithDetails("Failed to read uploaded file")
			return nil, "", &e
		}
		return body, header.Filename, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize+1))
	if err != nil {
		e := ErrBadRequest.WithDetails("Failed to read request body")
		return nil, "", &e
	}
	if len(body) > maxImportSize {
		e := ErrBadRequest.WithDetails(fmt.Sprintf("File exceeds %d bytes", maxImportSize))
		return nil, "", &e
	}
	if len(bytes.TrimSpace(body)) == 0 {
		e := ErrMissingField.WithField("file")
		return nil, "", &e
	}
	return body, "", nil
}

// ExportTeamMappings handles GET /api/v1/team-mappings/export?format=csv|json|yaml
// Supports the same ?status, ?source_org and ?search filters as the list.
func (h *Handler) ExportTeamMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	format, err := mappingio.ParseFormat(q.Get("format"))
	if err != nil {
		WriteError(w, ErrInvalidField.WithField("format").WithDetails(err.Error()))
		return
	}

	filters := storage.TeamMappingFilters{
		SourceOrg: q.Get("source_org"),
		Search:    q.Get("search"),
	}
	if status := q.Get("status"); status != "" {
		filters.Status = string(models.ParseMappingStatus(status))
	}

	mappings, _, err := h.db.ListTeamMappings(ctx, filters)
	if err != nil {
		if h.handleContextError(ctx, err, "export team mappings", r) {
			return
		}
		h.logger.Error("Failed to export team mappings", "error", err)
		WriteError(w, ErrDatabaseFetch.WithDetails("team mappings"))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=team-mappings.%s", format))
	if err := mappingio.Encode(w, format, mappings); err != nil {
		// Headers already sent, can only log the error
		h.logger.Error("Failed to write team mappings export", "format", format, "error", err)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
