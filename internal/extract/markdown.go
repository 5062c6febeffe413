package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// Markdown splits markdown documents at H1 and H2 boundaries. Each section
// becomes a candidate chunk whose text is prefixed with its header path.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates a markdown extractor configured with goldmark parser.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{parser: md}
}

func (m *Markdown) Extract(_ context.Context, path string) (Result, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}

	sections, title, err := m.Sections(source)
	if err != nil {
		return Result{}, err
	}

	chunks := make([]document.Chunk, 0, len(sections))
	for _, s := range sections {
		body := s.Content
		if s.HeaderPath != "" {
			body = s.HeaderPath + "\n\n" + s.Content
		}
		if strings.TrimSpace(body) == "" {
			continue
		}
		chunk := document.NewChunk(body)
		if s.HeaderPath != "" {
			chunk.Metadata = document.Metadata{"header_path": s.HeaderPath}
		}
		chunks = append(chunks, chunk)
	}

	meta := document.Metadata{}
	if title != "" {
		meta["heading"] = title
	}
	return ChunksResult(chunks, meta), nil
}

// Section is a markdown section with its header hierarchy.
type Section struct {
	HeaderPath string // "# Doc Title > ## Section Name"
	Content    string // section text including its own heading line
}

// Sections parses source and returns its H1/H2 sections and the first H1
// title. A document without headings is returned as a single section.
func (m *Markdown) Sections(source []byte) ([]Section, string, error) {
	doc := m.parser.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, "", fmt.Errorf("inspect TOC: %w", err)
	}

	if len(tree.Items) == 0 {
		return []Section{{Content: strings.TrimSpace(string(source))}}, "", nil
	}

	var sections []Section
	collectSections(doc, source, tree.Items, nil, &sections)
	return sections, string(tree.Items[0].Title), nil
}

// collectSections recursively walks TOC items to extract content with header paths.
func collectSections(doc ast.Node, source []byte, items toc.Items, ancestors []string, sections *[]Section) {
	for i, item := range items {
		currentPath := append(append([]string(nil), ancestors...), string(item.Title))

		headerNode := findHeaderByID(doc, string(item.ID))
		if headerNode == nil {
			continue
		}

		// A parent's content stops at its first child heading; the child
		// sections are collected separately below.
		var end text.Segment
		switch {
		case len(item.Items) > 0:
			if child := findHeaderByID(doc, string(item.Items[0].ID)); child != nil {
				end = child.Lines().At(0)
			}
		case i+1 < len(items):
			if next := findHeaderByID(doc, string(items[i+1].ID)); next != nil {
				end = next.Lines().At(0)
			}
		default:
			end = findNextHeaderBoundary(doc, headerNode, headerNode.(*ast.Heading).Level)
		}

		*sections = append(*sections, Section{
			HeaderPath: formatHeaderPath(currentPath),
			Content:    extractContent(source, headerNode.Lines().At(0), end),
		})

		if len(item.Items) > 0 {
			collectSections(doc, source, item.Items, currentPath, sections)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	parts := make([]string, 0, len(path))
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			headingID, ok := n.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// findNextHeaderBoundary finds the next heading at or above currentLevel after current.
func findNextHeaderBoundary(root ast.Node, current ast.Node, currentLevel int) text.Segment {
	var next ast.Node
	seen := false

	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !seen {
			seen = n == current
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level <= currentLevel {
			next = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if next != nil {
		return next.Lines().At(0)
	}
	return text.Segment{}
}

// extractContent returns the trimmed source from the line holding start up
// to the line holding end. A zero end segment means end of document.
// Heading segments point past the "#" markers, so both bounds are moved back
// to the beginning of their line.
func extractContent(source []byte, start, end text.Segment) string {
	from := lineStart(source, start.Start)

	var buf bytes.Buffer
	if end.Start == 0 && end.Stop == 0 {
		buf.Write(source[from:])
	} else {
		buf.Write(source[from:lineStart(source, end.Start)])
	}
	return strings.TrimSpace(buf.String())
}

func lineStart(source []byte, pos int) int {
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}
