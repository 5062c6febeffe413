// Package search runs text queries against the vector store.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Request is a text search.
type Request struct {
	Query          string  `json:"query"`
	Limit          int     `json:"limit"`
	ScoreThreshold float64 `json:"score_threshold"`
	DocumentID     string  `json:"document_id,omitempty"`
	PageNumber     int     `json:"page_number,omitempty"`
	Collection     string  `json:"collection,omitempty"`
}

// Service embeds queries and searches the store.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	store    storage.Store
	embedder Embedder
	logger   *slog.Logger
}

// NewService creates a search service. A nil logger uses slog.Default().
func NewService(store storage.Store, embedder Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Store returns the store bound to collection, or the default one.
func (s *Service) Store(collection string) storage.Store {
	return s.store.WithCollection(collection)
}

// Search returns results ranked by similarity. A blank query returns no results.
func (s *Service) Search(ctx context.Context, req Request) ([]document.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return []document.SearchResult{}, nil
	}

	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) == 0 {
		return []document.SearchResult{}, nil
	}

	store := s.Store(req.Collection)
	results, err := store.Search(ctx, vec, storage.SearchOptions{
		Limit:          clampLimit(req.Limit),
		ScoreThreshold: req.ScoreThreshold,
		Filter: storage.Filter{
			DocumentID: req.DocumentID,
			PageNumber: req.PageNumber,
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search", "collection", store.CollectionName(), "query_len", len(req.Query), "results", len(results))
	if results == nil {
		results = []document.SearchResult{}
	}
	return results, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
