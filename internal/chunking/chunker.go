package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/mike-a-ellis/docqa/internal/document"
)

const (
	// DefaultTargetSize is the window length in characters.
	DefaultTargetSize = 500

	// DefaultOverlap is the number of characters shared by consecutive windows.
	DefaultOverlap = 50

	// minBlockFloor is the lower bound for the small-block coalescing threshold.
	minBlockFloor = 100
)

// Chunker splits raw text into bounded-size chunks.
// It is structure-aware: table rows and paragraphs are segmented before
// windowing, and short blocks are coalesced with their neighbours.
// A Chunker holds no state between calls and is safe for concurrent use.
type Chunker struct {
	targetSize int
	overlap    int
}

// NewChunker creates a chunker. Non-positive targetSize falls back to
// DefaultTargetSize; a negative overlap falls back to DefaultOverlap.
func NewChunker(targetSize, overlap int) *Chunker {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{
		targetSize: targetSize,
		overlap:    overlap,
	}
}

// TargetSize returns the configured window length.
func (c *Chunker) TargetSize() int { return c.targetSize }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// MinBlockSize is the coalescing threshold: max(100, targetSize/5).
func (c *Chunker) MinBlockSize() int {
	return max(minBlockFloor, c.targetSize/5)
}

// Chunk splits text into chunks. Whitespace-only input yields no chunks.
// Chunks carry Text, Size and a sequential Index; page and structural
// metadata are left for the caller to attach.
func (c *Chunker) Chunk(text string) []document.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	blocks := c.mergeBlocks(segment(text))

	var chunks []document.Chunk
	for _, block := range blocks {
		for _, window := range c.windows(block) {
			if strings.TrimSpace(window) == "" {
				continue
			}
			chunk := document.NewChunk(window)
			chunk.Index = len(chunks)
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// segment scans lines and returns structural blocks. A pipe-delimited line is
// a table row and becomes its own block; a blank line ends a paragraph.
func segment(text string) []string {
	var blocks []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		switch {
		case isTableRow(trimmed):
			flush()
			blocks = append(blocks, line)
		case trimmed == "":
			flush()
		default:
			current = append(current, line)
		}
	}
	flush()

	return blocks
}

// mergeBlocks coalesces blocks shorter than MinBlockSize into a buffer joined
// with newlines. The buffer is flushed once it reaches the minimum. A pending
// short buffer is prepended to the next large block so that only the final
// block may fall below the minimum.
func (c *Chunker) mergeBlocks(blocks []string) []string {
	minSize := c.MinBlockSize()

	var merged []string
	var buf strings.Builder

	for _, block := range blocks {
		if utf8.RuneCountInString(block) < minSize {
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(block)
			if utf8.RuneCountInString(buf.String()) >= minSize {
				merged = append(merged, buf.String())
				buf.Reset()
			}
			continue
		}

		if buf.Len() > 0 {
			merged = append(merged, buf.String()+"\n"+block)
			buf.Reset()
			continue
		}
		merged = append(merged, block)
	}
	if buf.Len() > 0 {
		merged = append(merged, buf.String())
	}

	return merged
}

// windows slices block into windows of targetSize characters advancing by
// targetSize-overlap. An overlap at or above targetSize degrades to
// non-overlapping windows.
func (c *Chunker) windows(block string) []string {
	runes := []rune(block)
	step := c.targetSize - c.overlap
	if step <= 0 {
		step = c.targetSize
	}

	var out []string
	for i := 0; i < len(runes); i += step {
		end := min(i+c.targetSize, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}

func isTableRow(trimmed string) bool {
	return len(trimmed) > 0 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
}

// splitLines splits on \n, \r\n and \r.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
