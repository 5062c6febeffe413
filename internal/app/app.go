// Package app wires the services shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mike-a-ellis/docqa/internal/chunking"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/ingest"
	"github.com/mike-a-ellis/docqa/internal/progress"
	"github.com/mike-a-ellis/docqa/internal/qa"
	"github.com/mike-a-ellis/docqa/internal/search"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Registry  *extract.Registry
	Embedder  *embedding.Embedder
	Generator *generation.Generator
	Tracker   *progress.Tracker
	Pipeline  *ingest.Pipeline
	Search    *search.Service
	QA        *qa.Assembler
	Logger    *slog.Logger

	closers []io.Closer
}

// NewLogger builds the process logger at the configured level.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// New connects to the configured backends and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	store, err := a.openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	embedClient, err := embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	a.Embedder = embedding.NewEmbedder(embedClient, logger)

	a.Generator = generation.NewGenerator(generation.NewClient(generation.ClientConfig{
		BaseURL: cfg.Generation.BaseURL,
		APIKey:  cfg.Generation.APIKey,
	}), cfg.Generation.Model, logger)

	a.Tracker = progress.NewTracker(a.openProgress(ctx, cfg, logger), logger)

	a.Registry = extract.NewDefaultRegistry(extract.Options{
		OCRLanguages: cfg.OCR.Languages,
		WholeSheet:   cfg.Ingest.WholeSheet,
		Logger:       logger,
	})

	pipelineCfg := ingest.PipelineConfig{
		Registry: a.Registry,
		Chunker:  chunking.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap),
		Embedder: a.Embedder,
		Store:    a.Store,
		Tracker:  a.Tracker,
		Logger:   logger,
	}
	if cfg.Generation.Describe {
		pipelineCfg.Describer = a.Generator
	}
	a.Pipeline = ingest.NewPipeline(pipelineCfg)

	a.Search = search.NewService(a.Store, a.Embedder, logger)
	a.QA = qa.NewAssembler(a.Search, a.Generator, logger)
	return a, nil
}

func (a *App) openStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.VectorStore == "memory" {
		logger.Warn("Using in-memory vector store, documents are lost on exit")
		return storage.NewMemoryStore(cfg.Qdrant.Collection), nil
	}

	qs, err := storage.NewQdrantStorage(storage.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to Qdrant at %s:%d: %w", cfg.Qdrant.Host, cfg.Qdrant.Port, err)
	}
	a.closers = append(a.closers, qs)
	return qs, nil
}

// openProgress falls back to memory when Redis is unreachable.
func (a *App) openProgress(ctx context.Context, cfg *config.Config, logger *slog.Logger) progress.Store {
	if cfg.Progress.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Progress.RedisAddr})
		err := client.Ping(ctx).Err()
		if err == nil {
			a.closers = append(a.closers, client)
			logger.Info("Progress stored in Redis", "addr", cfg.Progress.RedisAddr)
			return progress.NewRedisStore(client, cfg.Progress.TTL)
		}
		logger.Warn("Redis unavailable, keeping progress in memory", "addr", cfg.Progress.RedisAddr, "error", err)
		client.Close()
	}
	return progress.NewMemoryStore(cfg.Progress.TTL, cfg.Progress.MaxEntries)
}

// Close releases backend connections.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
