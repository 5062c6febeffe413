package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// TestChunk_EmptyInput tests that blank input yields no chunks.
func TestChunk_EmptyInput(t *testing.T) {
	chunker := NewChunker(0, -1)

	for _, input := range []string{"", "   ", "\n\n\t\n"} {
		if chunks := chunker.Chunk(input); len(chunks) != 0 {
			t.Errorf("Chunk(%q): expected 0 chunks, got %d", input, len(chunks))
		}
	}
}

// TestChunk_SizeMatchesText tests that every chunk size equals its character length.
func TestChunk_SizeMatchesText(t *testing.T) {
	input := strings.Repeat("한국어 문장과 English words mixed together. ", 60) +
		"\n\n| 부서 | 인원 |\n| 개발 | 40 |\n\nShort tail."

	chunks := NewChunker(DefaultTargetSize, DefaultOverlap).Chunk(input)
	if len(chunks) == 0 {
		t.Fatal("expected chunks, got none")
	}

	for i, chunk := range chunks {
		if chunk.Size != utf8.RuneCountInString(chunk.Text) {
			t.Errorf("chunk %d: size %d, text length %d", i, chunk.Size, utf8.RuneCountInString(chunk.Text))
		}
		if strings.TrimSpace(chunk.Text) == "" {
			t.Errorf("chunk %d: empty text", i)
		}
		if chunk.Index != i {
			t.Errorf("chunk %d: index %d", i, chunk.Index)
		}
		if chunk.Size > DefaultTargetSize {
			t.Errorf("chunk %d: size %d exceeds target", i, chunk.Size)
		}
	}
}

// TestChunk_TableRowsAreSeparateBlocks tests that table rows never merge into a paragraph.
func TestChunk_TableRowsAreSeparateBlocks(t *testing.T) {
	paragraph := strings.Repeat("p", 120)
	input := paragraph + "\n| a | b |\n| 1 | 2 |"

	chunks := NewChunker(DefaultTargetSize, DefaultOverlap).Chunk(input)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != paragraph {
		t.Errorf("chunk 0: expected paragraph, got %q", chunks[0].Text)
	}
	if chunks[1].Text != "| a | b |\n| 1 | 2 |" {
		t.Errorf("chunk 1: expected merged table rows, got %q", chunks[1].Text)
	}
}

// TestChunk_SlidingWindow tests window length and overlap on a long block.
func TestChunk_SlidingWindow(t *testing.T) {
	input := strings.Repeat("x", 1000)

	chunks := NewChunker(500, 50).Chunk(input)

	// Windows start at 0, 450 and 900.
	expected := []int{500, 500, 100}
	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d", len(expected), len(chunks))
	}
	for i, size := range expected {
		if chunks[i].Size != size {
			t.Errorf("chunk %d: expected size %d, got %d", i, size, chunks[i].Size)
		}
	}
}

// TestChunk_OverlapNotSmallerThanTarget tests the non-overlapping fallback.
func TestChunk_OverlapNotSmallerThanTarget(t *testing.T) {
	input := strings.Repeat("y", 250)

	chunks := NewChunker(100, 100).Chunk(input)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[2].Size != 50 {
		t.Errorf("last chunk: expected size 50, got %d", chunks[2].Size)
	}
}

// TestChunk_SmallBlocksCoalesce tests that only the trailing merged block may be short.
func TestChunk_SmallBlocksCoalesce(t *testing.T) {
	var paragraphs []string
	for i := 0; i < 10; i++ {
		paragraphs = append(paragraphs, strings.Repeat(string(rune('a'+i)), 30))
	}
	input := strings.Join(paragraphs, "\n\n")

	chunker := NewChunker(DefaultTargetSize, DefaultOverlap)
	chunks := chunker.Chunk(input)

	// Four 30-char blocks joined by newlines reach 123 characters.
	expected := []int{123, 123, 61}
	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d", len(expected), len(chunks))
	}
	for i, size := range expected {
		if chunks[i].Size != size {
			t.Errorf("chunk %d: expected size %d, got %d", i, size, chunks[i].Size)
		}
	}
	for i := 0; i < len(chunks)-1; i++ {
		if chunks[i].Size < chunker.MinBlockSize() {
			t.Errorf("chunk %d: size %d below minimum %d", i, chunks[i].Size, chunker.MinBlockSize())
		}
	}
}

// TestChunk_ShortBufferJoinsNextLargeBlock tests that a pending short buffer is not emitted alone.
func TestChunk_ShortBufferJoinsNextLargeBlock(t *testing.T) {
	short := "Heading"
	long := strings.Repeat("z", 150)
	input := short + "\n\n" + long

	chunks := NewChunker(DefaultTargetSize, DefaultOverlap).Chunk(input)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != short+"\n"+long {
		t.Errorf("unexpected chunk text %q", chunks[0].Text)
	}
}

// TestChunk_Deterministic tests that repeated calls produce identical output.
func TestChunk_Deterministic(t *testing.T) {
	input := strings.Repeat("Deterministic paragraph text. ", 40)
	chunker := NewChunker(DefaultTargetSize, DefaultOverlap)

	first := chunker.Chunk(input)
	second := chunker.Chunk(input)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Errorf("chunk %d differs between calls", i)
		}
	}
}

// TestMinBlockSize tests the coalescing threshold formula.
func TestMinBlockSize(t *testing.T) {
	cases := map[int]int{100: 100, 500: 100, 1000: 200}
	for target, want := range cases {
		if got := NewChunker(target, 0).MinBlockSize(); got != want {
			t.Errorf("target %d: expected %d, got %d", target, want, got)
		}
	}
}

// TestChunkPages tests page metadata attachment and continuous indexing.
func TestChunkPages(t *testing.T) {
	pages := []document.Page{
		{Number: 1, Text: strings.Repeat("first ", 30), Size: "612x792"},
		{Number: 2, Text: "   "},
		{Number: 3, Text: strings.Repeat("third ", 30), Size: "612x792"},
	}

	chunks := NewChunker(DefaultTargetSize, DefaultOverlap).ChunkPages(pages)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].PageNumber != 1 || chunks[1].PageNumber != 3 {
		t.Errorf("unexpected page numbers %d, %d", chunks[0].PageNumber, chunks[1].PageNumber)
	}
	if chunks[1].Index != 1 {
		t.Errorf("expected continuous index 1, got %d", chunks[1].Index)
	}
	if chunks[0].PageSize != "612x792" {
		t.Errorf("expected page size to be attached, got %q", chunks[0].PageSize)
	}
}

// TestComputeStats tests aggregate chunk statistics.
func TestComputeStats(t *testing.T) {
	if s := ComputeStats(nil); s.TotalChunks != 0 || s.AvgChunkSize != 0 {
		t.Errorf("expected zero stats for empty input, got %+v", s)
	}

	chunks := []document.Chunk{
		document.NewChunk("abcd"),
		document.NewChunk("ab"),
		document.NewChunk("abcdef"),
	}
	s := ComputeStats(chunks)
	if s.TotalChunks != 3 || s.MinChunkSize != 2 || s.MaxChunkSize != 6 || s.TotalTextLength != 12 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.AvgChunkSize != 4 {
		t.Errorf("expected average 4, got %f", s.AvgChunkSize)
	}

	if filtered := FilterBySize(chunks, 3, 5); len(filtered) != 1 || filtered[0].Text != "abcd" {
		t.Errorf("unexpected filter result %+v", filtered)
	}
}
