package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// DefaultCollectionName is used when no collection is configured.
const DefaultCollectionName = "pdf_documents"

// Reserved payload keys. Document and chunk metadata never override them.
const (
	fieldText       = "text"
	fieldDocumentID = "document_id"
	fieldChunkIndex = "chunk_index"
	fieldChunkSize  = "chunk_size"
	fieldPageNumber = "page_number"
	fieldPageSize   = "page_size"
	fieldDimension  = "embedding_dimension"
)

// chunkFields are dropped from a payload when it is read back as document metadata.
var chunkFields = []string{fieldText, fieldChunkIndex, fieldChunkSize, fieldPageNumber, fieldPageSize, fieldDimension}

// Store is the vector store gateway used by ingestion, search and QA.
// Implementations are safe for concurrent use.
type Store interface {
	Health(ctx context.Context) error
	// EnsureCollection creates the collection for vectors of size dim, or
	// returns ErrDimensionMismatch if it exists with a different size.
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, chunks []document.EmbeddedChunk, documentID string, meta document.Metadata) (UpsertResult, error)
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]document.SearchResult, error)
	ListDocumentIDs(ctx context.Context) ([]string, error)
	GetDocumentMetadata(ctx context.Context, documentID string) (document.Metadata, error)
	CountDocumentChunks(ctx context.Context, documentID string) (int, error)
	// DeleteDocument removes every point of the document and returns how many
	// were removed. Zero matching points is not an error.
	DeleteDocument(ctx context.Context, documentID string) (int, error)
	Collections(ctx context.Context) ([]CollectionInfo, error)
	// WithCollection returns a Store bound to another collection on the same backend.
	WithCollection(name string) Store
	CollectionName() string
}

// UpsertResult reports how many chunks were written and how many skipped.
type UpsertResult struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
}

// Filter narrows a search. Zero values are ignored.
type Filter struct {
	DocumentID   string
	PageNumber   int
	MinChunkSize int
	MaxChunkSize int
}

// SearchOptions control a vector search.
type SearchOptions struct {
	Limit          int
	ScoreThreshold float64
	Filter         Filter
}

// CollectionInfo describes one collection.
type CollectionInfo struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	PointsCount   uint64 `json:"points_count"`
	SegmentsCount uint64 `json:"segments_count"`
	VectorSize    uint64 `json:"vector_size"`
}

// buildPayload flattens document metadata, chunk metadata and chunk fields
// into one point payload. Values are normalized to payload scalars.
func buildPayload(chunk document.EmbeddedChunk, documentID string, meta document.Metadata) map[string]any {
	payload := make(map[string]any, len(meta)+len(chunk.Metadata)+7)
	for k, v := range meta {
		payload[k] = normalizeValue(v)
	}
	for k, v := range chunk.Metadata {
		payload[k] = normalizeValue(v)
	}

	payload[fieldText] = chunk.Text
	payload[fieldDocumentID] = documentID
	payload[fieldChunkIndex] = int64(chunk.Index)
	payload[fieldChunkSize] = int64(chunk.Size)
	payload[fieldDimension] = int64(len(chunk.Embedding))
	if chunk.PageNumber > 0 {
		payload[fieldPageNumber] = int64(chunk.PageNumber)
	}
	if chunk.PageSize != "" {
		payload[fieldPageSize] = chunk.PageSize
	}
	return payload
}

// normalizeValue maps Go values onto the scalar types a payload can hold.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// resultFromPayload converts a decoded payload into a SearchResult.
func resultFromPayload(id string, score float64, payload map[string]any) document.SearchResult {
	result := document.SearchResult{
		ID:         id,
		Score:      score,
		Text:       asString(payload[fieldText]),
		DocumentID: asString(payload[fieldDocumentID]),
		ChunkIndex: asInt(payload[fieldChunkIndex]),
		ChunkSize:  asInt(payload[fieldChunkSize]),
		PageNumber: asInt(payload[fieldPageNumber]),
		Metadata:   document.Metadata{},
	}
	for k, v := range payload {
		switch k {
		case fieldText, fieldDocumentID, fieldChunkIndex, fieldChunkSize, fieldPageNumber:
			continue
		}
		result.Metadata[k] = v
	}
	return result
}

// documentMetadata strips chunk-level fields from a payload.
func documentMetadata(payload map[string]any) document.Metadata {
	meta := make(document.Metadata, len(payload))
	for k, v := range payload {
		meta[k] = v
	}
	for _, k := range chunkFields {
		delete(meta, k)
	}
	return meta
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var (
	_ Store = (*QdrantStorage)(nil)
	_ Store = (*MemoryStore)(nil)
)
