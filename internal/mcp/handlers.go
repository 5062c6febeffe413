package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mike-a-ellis/docqa/internal/qa"
	"github.com/mike-a-ellis/docqa/internal/search"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

// makeSearchHandler creates the search_documents tool handler.
func makeSearchHandler(svc *search.Service) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		results, err := svc.Search(ctx, search.Request{
			Query:          input.Query,
			Limit:          limit(input.MaxResults),
			ScoreThreshold: input.MinScore,
			DocumentID:     input.DocumentID,
			Collection:     input.Collection,
		})
		if err != nil {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchDocumentsOutput{Results: make([]ChunkResult, 0, len(results))}
		for _, r := range results {
			out.Results = append(out.Results, ChunkResult{
				DocumentID: r.DocumentID,
				Title:      r.Metadata.String("title"),
				Score:      r.Score,
				Text:       r.Text,
				PageNumber: r.PageNumber,
				Sheet:      r.Metadata.String("sheet"),
			})
		}
		if len(out.Results) == 0 {
			out.Message = "No matching chunks found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeAskHandler creates the ask_question tool handler.
// The assembler never fails, so neither does the tool.
func makeAskHandler(assembler *qa.Assembler) func(
	context.Context, *mcp.CallToolRequest, AskQuestionInput,
) (*mcp.CallToolResult, AskQuestionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskQuestionInput) (
		*mcp.CallToolResult, AskQuestionOutput, error,
	) {
		resp := assembler.Ask(ctx, qa.Request{
			Question:   input.Question,
			Collection: input.Collection,
			DocumentID: input.DocumentID,
			MaxResults: limit(input.MaxResults),
		})

		sources := make([]string, 0, len(resp.Sources))
		for _, s := range resp.Sources {
			sources = append(sources, s.Label())
		}
		return nil, AskQuestionOutput{
			Answer:       resp.Answer,
			Sources:      sources,
			ContextCount: resp.ContextCount,
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(store storage.Store) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		scoped := store.WithCollection(input.Collection)
		ids, err := scoped.ListDocumentIDs(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		return nil, ListDocumentsOutput{
			Collection:  scoped.CollectionName(),
			DocumentIDs: ids,
			Count:       len(ids),
		}, nil
	}
}

func limit(n int) int {
	if n <= 0 {
		return defaultMaxResults
	}
	return min(n, maxMaxResults)
}
