package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kuhlman-labs/team-migrator/internal/migration"
	"github.com/kuhlman-labs/team-migrator/internal/models"
	"github.com/kuhlman-labs/team-migrator/internal/storage"
)

// Store is the read side of the mapping store the tools query
type Store interface {
	storage.TeamMappingReader
	ListTeamRepositories(ctx context.Context, sourceOrg, sourceTeamSlug string) ([]*models.TeamRepository, error)
}

// Orchestrator starts, stops and reports team migration runs
type Orchestrator interface {
	ExecuteMigration(ctx context.Context, scope migration.Scope, dryRun bool) (*migration.Progress, error)
	CancelMigration() bool
	IsRunning() bool
	Progress() *migration.Progress
}

var (
	_ Store        = (*storage.Database)(nil)
	_ Orchestrator = (*migration.Orchestrator)(nil)
)

// Server wraps the MCP server and provides team migration tools
type Server struct {
	mcpServer    *server.MCPServer
	sseServer    *server.SSEServer
	store        Store
	orchestrator Orchestrator
	logger       *slog.Logger
	addr         string
	mu           sync.RWMutex
	running      bool
}

// Config holds configuration for the MCP server
type Config struct {
	// Address to listen on (e.g., ":8081")
	Address string
}

// NewServer creates a new MCP server with team migration tools
func NewServer(store Store, orchestrator Orchestrator, logger *slog.Logger, cfg Config) *Server {
	mcpServer := server.NewMCPServer(
		"Team Migrator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(`You are the Team Migrator assistant. Teams discovered in a source
organization are mapped to destination GitHub teams; a migration run creates the
destination teams and grants them the repository permissions they held in the source.

Key capabilities:
- List team mappings and their migration and repository sync status
- Show the repositories of a team and which grants are still missing
- Check the progress of the current run
- Start a run (use dry_run first) or cancel the running one`),
	)

	s := &Server{
		mcpServer:    mcpServer,
		store:        store,
		orchestrator: orchestrator,
		logger:       logger,
		addr:         cfg.Address,
	}

	s.registerTools()

	return s
}

// Start starts the MCP server on the configured address. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("MCP server already running")
	}
	s.running = true
	s.sseServer = server.NewSSEServer(s.mcpServer,
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
	)
	sse := s.sseServer
	s.mu.Unlock()

	s.logger.Info("Starting MCP server", "address", s.addr)

	if err := sse.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the MCP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.logger.Info("Stopping MCP server")
	s.running = false

	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown MCP server: %w", err)
		}
	}

	return nil
}

// IsRunning returns true if the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server's listening address
func (s *Server) Address() string {
	return s.addr
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("list_team_mappings",
			mcp.WithDescription("List team mappings with their mapping, migration and repository sync status. Use the filters to find teams that are unmapped, failed or still missing repository permissions."),
			mcp.WithString("source_org",
				mcp.Description("Filter by source organization"),
			),
			mcp.WithString("status",
				mcp.Description("Filter by mapping status"),
				mcp.Enum("unmapped", "mapped", "skipped"),
			),
			mcp.WithString("sync_status",
				mcp.Description("Filter by repository sync status"),
				mcp.Enum("pending", "team_only", "needs_sync", "partial", "complete", "failed"),
			),
			mcp.WithString("search",
				mcp.Description("Search team slugs and names"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of mappings to return (default 20, max 100)"),
			),
		),
		s.handleListTeamMappings,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_team_repositories",
			mcp.WithDescription("Show the repositories a source team can access, the permission each will get in the destination, and whether it has been granted yet."),
			mcp.WithString("team",
				mcp.Required(),
				mcp.Description("Source team in format org/team-slug"),
			),
		),
		s.handleGetTeamRepositories,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("get_team_migration_status",
			mcp.WithDescription("Get the progress of the current or last team migration run together with mapping and execution counts."),
		),
		s.handleGetMigrationStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("execute_team_migration",
			mcp.WithDescription("Start a team migration run. Without arguments every mapped team that is not completed is processed. Only one run can be active."),
			mcp.WithString("source_org",
				mcp.Description("Only process teams of this source organization"),
			),
			mcp.WithString("source_team_slug",
				mcp.Description("Only process this team (requires source_org)"),
			),
			mcp.WithBoolean("dry_run",
				mcp.Description("Log what would change without writing to the destination"),
			),
		),
		s.handleExecuteMigration,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("cancel_team_migration",
			mcp.WithDescription("Stop the running team migration. Teams already being processed finish; queued teams are skipped."),
		),
		s.handleCancelMigration,
	)

	s.logger.Info("Registered MCP tools", "count", 5)
}
