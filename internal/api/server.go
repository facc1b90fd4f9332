// Package api assembles the HTTP server: routes, handlers and middleware.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/api/handlers"
	"github.com/kuhlman-labs/team-migrator/internal/api/middleware"
	"github.com/kuhlman-labs/team-migrator/internal/logging"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// Pinger reports whether the mapping store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

var _ Pinger = (*storage.Database)(nil)

type Server struct {
	db      Pinger
	logger  *slog.Logger
	handler *handlers.Handler
}

// NewServer builds the server. deps.Store defaults to db.
func NewServer(db *storage.Database, logger *slog.Logger, deps handlers.Config) (*Server, error) {
	if deps.Store == nil {
		deps.Store = db
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	h, err := handlers.NewHandler(deps)
	if err != nil {
		return nil, err
	}
	return &Server{
		db:      db,
		logger:  logger,
		handler: h,
	}, nil
}

// Router returns the fully wrapped HTTP handler.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/log-level", s.handleGetLogLevel)
	mux.HandleFunc("PUT /api/v1/log-level", s.handleSetLogLevel)
	s.handler.RegisterRoutes(mux)

	return middleware.CORS(middleware.Logging(s.logger)(middleware.Recovery(s.logger)(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("Health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"level": logging.GetLogLevelManager().GetLevel()})
}

// handleSetLogLevel changes the level at runtime. "default" restores the
// configured level.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.WriteError(w, handlers.ErrBadRequest.WithDetails("Invalid JSON body"))
		return
	}

	manager := logging.GetLogLevelManager()
	switch strings.ToLower(strings.TrimSpace(req.Level)) {
	case "default":
		manager.ResetToDefault()
	case "debug", "info", "warn", "warning", "error":
		manager.SetLevel(req.Level)
	default:
		handlers.WriteError(w, handlers.ErrInvalidField.WithField("level").WithDetails(req.Level))
		return
	}

	level := manager.GetLevel()
	s.logger.Info("Log level changed", "level", level)
	writeJSON(w, http.StatusOK, map[string]string{"level": level})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
