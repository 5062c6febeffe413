// Package qa answers questions from retrieved document chunks.
package qa

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mike-a-ellis/docqa/internal/document"
	"github.com/mike-a-ellis/docqa/internal/search"
)

const (
	DefaultMaxResults = 5
	DefaultMaxTokens  = 500

	NoResultsAnswer      = "Sorry, no relevant information was found."
	GenerationFailAnswer = "Sorry, an error occurred while generating the answer."
	SearchFailAnswer     = "Sorry, an error occurred while processing the question."
)

// Searcher retrieves ranked chunks for a query.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]document.SearchResult, error)
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Request is a question with its retrieval options.
type Request struct {
	Question        string `json:"question"`
	Collection      string `json:"collection,omitempty"`
	MaxResults      int    `json:"max_results"`
	MaxTokens       int    `json:"max_tokens"`
	DocumentID      string `json:"document_id,omitempty"`
	IncludeMetadata bool   `json:"include_metadata"`
	History         []Turn `json:"history,omitempty"`
}

// Response is the answer envelope. It is always well formed.
type Response struct {
	Question       string                  `json:"question"`
	Answer         string                  `json:"answer"`
	Sources        []Source                `json:"sources"`
	SearchResults  []document.SearchResult `json:"search_results"`
	ContextCount   int                     `json:"context_count"`
	ProcessingTime float64                 `json:"processing_time"`
	Documents      []DocumentHits          `json:"documents,omitempty"`
	Stats          *Stats                  `json:"stats,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// DocumentHits groups the retrieved chunks of one document.
type DocumentHits struct {
	DocumentID  string            `json:"document_id"`
	Metadata    document.Metadata `json:"metadata"`
	ChunksCount int               `json:"chunks_count"`
}

// Stats summarizes retrieval for a question.
type Stats struct {
	TotalResults    int     `json:"total_results"`
	UniqueDocuments int     `json:"unique_documents"`
	AvgScore        float64 `json:"avg_score"`
}

// Assembler turns retrieved chunks into a cited answer.
type Assembler struct {
	searcher  Searcher
	generator Generator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAssembler creates an assembler. A nil logger uses slog.Default().
func NewAssembler(searcher Searcher, generator Generator, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{searcher: searcher, generator: generator, logger: logger, now: time.Now}
}

// Ask answers req.Question. Failures are reported inside the envelope.
func (a *Assembler) Ask(ctx context.Context, req Request) Response {
	start := a.now()
	resp := a.ask(ctx, req)
	resp.ProcessingTime = a.now().Sub(start).Seconds()
	return resp
}

// AskWithMetadata is Ask plus per-document hit counts and score stats.
func (a *Assembler) AskWithMetadata(ctx context.Context, req Request) Response {
	start := a.now()
	resp := a.ask(ctx, req)
	resp.Documents = groupByDocument(resp.SearchResults)
	resp.Stats = computeStats(resp.SearchResults, len(resp.Documents))
	resp.ProcessingTime = a.now().Sub(start).Seconds()
	return resp
}

func (a *Assembler) ask(ctx context.Context, req Request) Response {
	resp := Response{
		Question:      req.Question,
		Sources:       []Source{},
		SearchResults: []document.SearchResult{},
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	results, err := a.searcher.Search(ctx, search.Request{
		Query:      req.Question,
		Limit:      maxResults,
		DocumentID: req.DocumentID,
		Collection: req.Collection,
	})
	if err != nil {
		a.logger.Error("qa search failed", "collection", req.Collection, "error", err)
		resp.Answer = SearchFailAnswer
		resp.Error = err.Error()
		return resp
	}
	if len(results) == 0 {
		resp.Answer = NoResultsAnswer
		return resp
	}
	resp.SearchResults = results

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		if text := strings.TrimSpace(r.Text); text != "" {
			blocks = append(blocks, text)
		}
	}
	blocks = FilterTables(blocks, req.Question)
	resp.ContextCount = len(blocks)

	prompt := BuildPrompt(req.Question, blocks, req.History)
	answer, err := a.generator.Generate(ctx, prompt, maxTokens)
	if err != nil {
		a.logger.Warn("qa generation failed", "error", err)
		answer = GenerationFailAnswer
	}

	resp.Sources = FormatSources(results)
	resp.Answer = answer + RenderSources(resp.Sources)
	a.logger.Info("qa answered", "collection", req.Collection, "results", len(results), "context_blocks", len(blocks))
	return resp
}

func groupByDocument(results []document.SearchResult) []DocumentHits {
	hits := []DocumentHits{}
	index := make(map[string]int)
	for _, r := range results {
		i, ok := index[r.DocumentID]
		if !ok {
			i = len(hits)
			index[r.DocumentID] = i
			hits = append(hits, DocumentHits{DocumentID: r.DocumentID, Metadata: r.Metadata.Clone()})
		}
		hits[i].ChunksCount++
	}
	return hits
}

func computeStats(results []document.SearchResult, unique int) *Stats {
	stats := &Stats{TotalResults: len(results), UniqueDocuments: unique}
	if len(results) == 0 {
		return stats
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
	}
	stats.AvgScore = sum / float64(len(results))
	return stats
}
