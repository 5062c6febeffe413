// Package mcp exposes document search and question answering as MCP tools.
package mcp

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"the natural language search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of chunks to return (default 5)"`
	// MinScore is the minimum relevance threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score between 0 and 1"`
	// Collection overrides the default collection.
	Collection string `json:"collection,omitempty" jsonschema:"collection (department) to search"`
	// DocumentID restricts the search to one document.
	DocumentID string `json:"document_id,omitempty" jsonschema:"restrict results to this document id"`
}

// SearchDocumentsOutput contains the search results.
type SearchDocumentsOutput struct {
	Results []ChunkResult `json:"results"`
	// Message provides informational context (e.g., "No matching chunks found").
	Message string `json:"message,omitempty"`
}

// ChunkResult is one matching chunk.
type ChunkResult struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	PageNumber int     `json:"page_number,omitempty"`
	Sheet      string  `json:"sheet,omitempty"`
}

// AskQuestionInput defines the input parameters for the ask_question tool.
type AskQuestionInput struct {
	Question   string `json:"question" jsonschema:"the question to answer from stored documents"`
	Collection string `json:"collection,omitempty" jsonschema:"collection (department) to search"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"restrict the answer to this document id"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"number of chunks used as context (default 5)"`
}

// AskQuestionOutput contains the generated answer.
type AskQuestionOutput struct {
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	ContextCount int      `json:"context_count"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
type ListDocumentsInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"collection (department) to list"`
}

// ListDocumentsOutput contains the ids of stored documents.
type ListDocumentsOutput struct {
	Collection  string   `json:"collection"`
	DocumentIDs []string `json:"document_ids"`
	Count       int      `json:"count"`
}
