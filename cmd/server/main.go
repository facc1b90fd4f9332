package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuhlman-labs/team-migrator/internal/api"
	"github.com/kuhlman-labs/team-migrator/internal/api/handlers"
	"github.com/kuhlman-labs/team-migrator/internal/app"
	"github.com/kuhlman-labs/team-migrator/internal/config"
	"github.com/kuhlman-labs/team-migrator/internal/logging"
	"github.com/kuhlman-labs/team-migrator/internal/mcp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	logger := logging.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Database, destination client, orchestrator and source connector
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	orchestrator, err := a.RequireOrchestrator()
	if err != nil {
		slog.Error("Cannot start server", "error", err)
		os.Exit(1)
	}
	a.Recover(context.Background())

	deps := handlers.Config{
		Orchestrator: orchestrator,
		Connector:    a.Connector,
	}
	// Assigning a nil *TeamSyncer would make the interface non-nil.
	if a.Syncer != nil {
		deps.Syncer = a.Syncer
	}

	server, err := api.NewServer(a.DB, logger, deps)
	if err != nil {
		slog.Error("Failed to create API server", "error", err)
		os.Exit(1)
	}

	// Cancellable context for background workers
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	resync, err := a.ResyncWorker()
	if err != nil {
		slog.Error("Failed to create re-sync worker", "error", err)
		os.Exit(1)
	}
	if resync != nil {
		if err := resync.Start(workerCtx); err != nil {
			slog.Error("Failed to start re-sync worker", "error", err)
			os.Exit(1)
		}
		slog.Info("Re-sync worker started", "interval_minutes", cfg.Migration.ResyncIntervalMinutes)
	}

	var mcpServer *mcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(a.DB, orchestrator, logger, mcp.Config{Address: cfg.MCP.Address})
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	cancelWorkers()

	if resync != nil {
		slog.Info("Stopping re-sync worker...")
		if err := resync.Stop(); err != nil {
			slog.Error("Failed to stop re-sync worker", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Teams already being processed finish; queued teams are skipped.
	if orchestrator.CancelMigration() {
		slog.Info("Waiting for the running team migration to stop...")
		if err := orchestrator.Wait(ctx); err != nil {
			slog.Warn("Team migration did not stop in time", "error", err)
		}
	}

	if mcpServer != nil {
		if err := mcpServer.Stop(ctx); err != nil {
			slog.Error("Failed to stop MCP server", "error", err)
		}
	}

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exited")
}
