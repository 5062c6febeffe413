// Package document holds the types shared by extraction, chunking, embedding
// and storage.
package document

import "unicode/utf8"

// Metadata is a flat mapping of document or chunk attributes.
// Values are scalars (string, int, float64, bool).
type Metadata map[string]any

// Clone returns a shallow copy of m. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String returns the value stored under key as a string, or "".
func (m Metadata) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Chunk is the atomic retrievable unit derived from a document.
type Chunk struct {
	Text       string   `json:"text"`
	Index      int      `json:"chunk_index"`
	Size       int      `json:"chunk_size"`
	PageNumber int      `json:"page_number,omitempty"`
	PageSize   string   `json:"page_size,omitempty"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// NewChunk builds a chunk whose Size is the character length of text.
func NewChunk(text string) Chunk {
	return Chunk{Text: text, Size: utf8.RuneCountInString(text)}
}

// EmbeddedChunk is a Chunk paired with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32 `json:"-"`
}

// Dimension returns the embedding length.
func (c EmbeddedChunk) Dimension() int {
	return len(c.Embedding)
}

// SearchResult is one ranked hit returned by a vector search.
type SearchResult struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Text       string   `json:"text"`
	DocumentID string   `json:"document_id"`
	PageNumber int      `json:"page_number,omitempty"`
	ChunkIndex int      `json:"chunk_index"`
	ChunkSize  int      `json:"chunk_size"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// Page is the text of one page of a paged document.
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
	Size   string `json:"page_size,omitempty"` // "<width>x<height>" in points
}
