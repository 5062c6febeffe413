// Package main provides the document QA HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mike-a-ellis/docqa/internal/api"
	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	mcpserver "github.com/mike-a-ellis/docqa/internal/mcp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, path, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("failed to load config %s: %v", path, err)
	}
	logger := app.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize services: %v", err)
	}
	defer services.Close()

	if err := os.MkdirAll(cfg.App.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload dir: %v", err)
	}

	// Jobs outlive the request that queued them and finish during shutdown.
	pool := ingest.NewPool(services.Pipeline, ingest.PoolConfig{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
		Logger:    logger,
	})
	pool.Start(context.Background())

	mcp := mcpserver.NewServer(&mcpserver.Config{
		Store:  services.Store,
		Search: services.Search,
		QA:     services.QA,
	})
	var mcpHandler http.Handler
	if cfg.App.MCP {
		mcpHandler = mcpserver.NewHTTPHandler(mcp, nil)
	}

	server := api.NewServer(api.Config{
		Store:          services.Store,
		Registry:       services.Registry,
		Search:         services.Search,
		QA:             services.QA,
		Tracker:        services.Tracker,
		Ingest:         pool,
		Embedding:      services.Embedder,
		Generation:     services.Generator,
		MCP:            mcpHandler,
		UploadDir:      cfg.App.UploadDir,
		MaxUploadBytes: cfg.App.MaxUploadMB << 20,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "vector_store", cfg.VectorStore, "mcp", cfg.App.MCP)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Stdio mode: serve MCP over stdin/stdout for local clients, HTTP keeps running
	if os.Getenv("SERVER_MODE") == "stdio" {
		logger.Info("Starting MCP server (stdio mode)")
		if err := mcp.Run(ctx); err != nil {
			logger.Error("MCP server error", "error", err)
		}
		cancel()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	pool.Stop()
}
