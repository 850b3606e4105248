package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bloomshield/internal/server/api"
	"bloomshield/internal/server/config"
	"bloomshield/internal/server/database"
	"bloomshield/internal/server/service"
	"bloomshield/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_backend", cfg.Storage.Backend,
		"timestamp_mode", cfg.Timestamp.Mode,
		"content_hash_mode", cfg.ContentHashMode,
		"max_file_size", cfg.MaxFileSize,
	)

	// Connect to database
	ctx := context.Background()
	repo, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	// Run migrations
	if err := repo.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Storage, timestamping and services
	app, err := service.Wire(ctx, cfg, repo)
	if err != nil {
		slog.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Start orphan sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	var sweeper *storage.OrphanSweeper
	if app.Store != nil && cfg.SweepInterval > 0 {
		sweeper = storage.NewOrphanSweeper(repo, app.Store, cfg.SweepInterval, cfg.SweepGrace)
		sweeper.Start(sweepCtx)
	}

	// Setup HTTP router
	handler := api.NewHandler(app.Orchestrator, app.Protections, app.Ledger, cfg.MaxFileSize)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	sweepCancel()
	if sweeper != nil {
		sweeper.Wait()
	}

	slog.Info("server exited cleanly")
}
