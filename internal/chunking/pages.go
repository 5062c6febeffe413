package chunking

import (
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// ChunkPages chunks each non-empty page independently and attaches
// page_number and page_size to every chunk. Indexes run across all pages.
func (c *Chunker) ChunkPages(pages []document.Page) []document.Chunk {
	var all []document.Chunk
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for _, chunk := range c.Chunk(page.Text) {
			chunk.Index = len(all)
			chunk.PageNumber = page.Number
			chunk.PageSize = page.Size
			all = append(all, chunk)
		}
	}
	return all
}

// Stats summarizes a set of chunks.
type Stats struct {
	TotalChunks     int     `json:"total_chunks"`
	AvgChunkSize    float64 `json:"avg_chunk_size"`
	MinChunkSize    int     `json:"min_chunk_size"`
	MaxChunkSize    int     `json:"max_chunk_size"`
	TotalTextLength int     `json:"total_text_length"`
}

// ComputeStats returns size statistics for chunks. Empty input yields zeros.
func ComputeStats(chunks []document.Chunk) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}

	s := Stats{
		TotalChunks:  len(chunks),
		MinChunkSize: chunks[0].Size,
		MaxChunkSize: chunks[0].Size,
	}
	for _, chunk := range chunks {
		s.TotalTextLength += chunk.Size
		s.MinChunkSize = min(s.MinChunkSize, chunk.Size)
		s.MaxChunkSize = max(s.MaxChunkSize, chunk.Size)
	}
	s.AvgChunkSize = float64(s.TotalTextLength) / float64(len(chunks))
	return s
}

// FilterBySize keeps chunks whose size is at least minSize and, when maxSize
// is positive, at most maxSize.
func FilterBySize(chunks []document.Chunk, minSize, maxSize int) []document.Chunk {
	var out []document.Chunk
	for _, chunk := range chunks {
		if chunk.Size < minSize {
			continue
		}
		if maxSize > 0 && chunk.Size > maxSize {
			continue
		}
		out = append(out, chunk)
	}
	return out
}
