package qa

import (
	"fmt"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
)

const excerptLength = 80

// Source attributes part of an answer to a stored chunk.
type Source struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Sheet      string `json:"sheet,omitempty"`
	Row        int    `json:"row,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Excerpt    string `json:"excerpt"`
}

// Label renders the document, sheet and page labels of s.
func (s Source) Label() string {
	name := s.Title
	if name == "" {
		name = s.DocumentID
	}
	parts := []string{"Document: " + name}
	if s.Sheet != "" {
		parts = append(parts, "Sheet: "+s.Sheet)
	}
	if s.PageNumber > 0 {
		parts = append(parts, fmt.Sprintf("Page: %d", s.PageNumber))
	}
	return strings.Join(parts, ", ")
}

// FormatSources builds one source per result.
func FormatSources(results []document.SearchResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		src := Source{
			DocumentID: r.DocumentID,
			PageNumber: r.PageNumber,
			ChunkIndex: r.ChunkIndex,
			Excerpt:    excerpt(r.Text),
		}
		if r.Metadata != nil {
			src.Title = r.Metadata.String("title")
			src.Sheet = r.Metadata.String("sheet")
			src.Row = metaInt(r.Metadata["row"])
			if src.DocumentID == "" {
				src.DocumentID = r.Metadata.String("document_id")
			}
		}
		sources = append(sources, src)
	}
	return sources
}

// RenderSources renders the visible sources section appended to an answer.
func RenderSources(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSources:")
	for _, s := range sources {
		fmt.Fprintf(&b, "\n- \"%s\" (%s)", s.Excerpt, s.Label())
	}
	return b.String()
}

func excerpt(text string) string {
	text = strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}

func metaInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
