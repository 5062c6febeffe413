package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mike-a-ellis/docqa/internal/chunking"
	"github.com/mike-a-ellis/docqa/internal/document"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/progress"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// wordBackend hashes words into a small bag-of-words vector of size dim
// (16 when unset).
type wordBackend struct {
	err error
	dim int
}

func (w wordBackend) EmbedText(_ context.Context, text string) ([]float32, error) {
	if w.err != nil {
		return nil, w.err
	}
	dim := w.dim
	if dim == 0 {
		dim = 16
	}
	vec := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,?!")))
		vec[h.Sum32()%uint32(dim)]++
	}
	return vec, nil
}

type stubDescriber struct{}

func (stubDescriber) Describe(_ context.Context, title, _ string) (*generation.DocumentSummary, error) {
	return &generation.DocumentSummary{Summary: "About " + title, Keywords: []string{"people"}}, nil
}

type fixture struct {
	pipeline *Pipeline
	store    *storage.MemoryStore
	tracker  *progress.Tracker
}

func newFixture(t *testing.T, backend embedding.Backend) *fixture {
	t.Helper()
	registry := extract.NewRegistry()
	registry.Register(extract.NewPlainText(), ".txt")
	registry.Register(extract.NewMarkdown(), ".md")

	store := storage.NewMemoryStore("")
	tracker := progress.NewTracker(progress.NewMemoryStore(time.Hour, 100), nil)
	p := NewPipeline(PipelineConfig{
		Registry:  registry,
		Chunker:   chunking.NewChunker(500, 50),
		Embedder:  embedding.NewEmbedder(backend, nil),
		Store:     store,
		Tracker:   tracker,
		Describer: stubDescriber{},
	})
	p.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	return &fixture{pipeline: p, store: store, tracker: tracker}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_StoresDocumentAndCompletesTask(t *testing.T) {
	f := newFixture(t, wordBackend{})
	ctx := context.Background()
	path := writeFile(t, "people.txt", "Alice is a teacher.")
	require.NoError(t, f.tracker.Start(ctx, "task-1"))

	result, err := f.pipeline.Run(ctx, Job{TaskID: "task-1", FilePath: path, Collection: "hr"})
	require.NoError(t, err)

	assert.Equal(t, "20261016_hr_people.txt", result.DocumentID)
	assert.Equal(t, "hr", result.Collection)
	assert.Equal(t, 1, result.Chunks)
	assert.Equal(t, 1, result.Stored)

	state, err := f.tracker.Status(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, progress.StatusDone, state.Status)
	assert.Equal(t, 100, state.Progress)

	hr := f.store.WithCollection("hr")
	ids, err := hr.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20261016_hr_people.txt"}, ids)

	meta, err := hr.GetDocumentMetadata(ctx, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "people.txt", meta["title"])
	assert.Equal(t, "txt", meta["file_type"])
	assert.Equal(t, "hr", meta["department"])
	assert.Equal(t, "About people.txt", meta["description"])
	assert.Equal(t, path, meta["file_path"])
	assert.NotNil(t, meta["file_size"])
}

func TestRun_ReingestReplacesChunks(t *testing.T) {
	f := newFixture(t, wordBackend{})
	ctx := context.Background()
	path := writeFile(t, "notes.txt", "First paragraph about Alice.\n\nSecond paragraph about Bob.")

	first, err := f.pipeline.Run(ctx, Job{FilePath: path, DocumentID: "notes"})
	require.NoError(t, err)
	second, err := f.pipeline.Run(ctx, Job{FilePath: path, DocumentID: "notes"})
	require.NoError(t, err)

	assert.Equal(t, 0, first.Replaced)
	assert.Equal(t, first.Stored, second.Replaced)

	count, err := f.store.CountDocumentChunks(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, first.Stored, count)
}

func TestRun_FailuresMarkTaskError(t *testing.T) {
	tests := []struct {
		name    string
		backend embedding.Backend
		file    string
		content string
		wantErr error
	}{
		{"empty file", wordBackend{}, "empty.txt", "  \n\n ", ErrEmptyResult},
		{"unsupported format", wordBackend{}, "archive.zip", "PK", extract.ErrUnsupportedFormat},
		{"embedding down", wordBackend{err: errors.New("refused")}, "people.txt", "Alice is a teacher.", embedding.ErrEmbeddingUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.backend)
			ctx := context.Background()
			path := writeFile(t, tt.file, tt.content)
			require.NoError(t, f.tracker.Start(ctx, "task"))

			_, err := f.pipeline.Run(ctx, Job{TaskID: "task", FilePath: path})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			state, err := f.tracker.Status(ctx, "task")
			require.NoError(t, err)
			assert.Equal(t, progress.StatusError, state.Status)
			assert.Equal(t, 0, state.Progress)
			assert.NotEmpty(t, state.Message)
		})
	}
}

func TestRun_MissingFile(t *testing.T) {
	f := newFixture(t, wordBackend{})
	_, err := f.pipeline.Run(context.Background(), Job{FilePath: filepath.Join(t.TempDir(), "gone.txt")})
	assert.ErrorIs(t, err, extract.ErrFileNotFound)
}

func TestChunk_ResplitsOversizedCandidates(t *testing.T) {
	f := newFixture(t, wordBackend{})
	long := strings.Repeat("x", 1200)
	r := extract.ChunksResult([]document.Chunk{
		document.NewChunk("short row"),
		{Text: long, Size: 1200, PageNumber: 3, Metadata: document.Metadata{"sheet": "Big"}},
		document.NewChunk("   "),
	}, nil)

	chunks := f.pipeline.chunk(r)

	require.Len(t, chunks, 4)
	assert.Equal(t, "short row", chunks[0].Text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		if i > 0 {
			assert.Equal(t, "Big", c.Metadata["sheet"])
			assert.Equal(t, 3, c.PageNumber)
			assert.LessOrEqual(t, c.Size, 500)
		}
	}
}

func TestChunk_UsesPagesWhenPresent(t *testing.T) {
	f := newFixture(t, wordBackend{})
	r := extract.TextResult("one\ntwo", nil)
	r.Pages = []document.Page{{Number: 1, Text: "one"}, {Number: 2, Text: "two"}}

	chunks := f.pipeline.chunk(r)

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[1].PageNumber)
}

func TestDocumentID(t *testing.T) {
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "20260102_finance_q1.xlsx", DocumentID(at, "finance", "q1.xlsx"))
	assert.Equal(t, "20260102_unknown_q1.xlsx", DocumentID(at, "", "q1.xlsx"))
}

func TestRun_DimensionChangeKeepsPreviousVersion(t *testing.T) {
	f := newFixture(t, wordBackend{dim: 4})
	ctx := context.Background()
	path := writeFile(t, "people.txt", "Alice is a teacher.")

	first, err := f.pipeline.Run(ctx, Job{FilePath: path, DocumentID: "people"})
	require.NoError(t, err)

	wider := NewPipeline(PipelineConfig{
		Registry: f.pipeline.registry,
		Chunker:  chunking.NewChunker(500, 50),
		Embedder: embedding.NewEmbedder(wordBackend{dim: 8}, nil),
		Store:    f.store,
	})
	_, err = wider.Run(ctx, Job{FilePath: path, DocumentID: "people"})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	count, err := f.store.CountDocumentChunks(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, first.Stored, count)
}

func TestRun_PDFUsesLayoutText(t *testing.T) {
	f := newFixture(t, wordBackend{})
	ctx := context.Background()
	f.pipeline.registry.Register(extract.NewPDFWithReaders(
		func(context.Context, string) (string, error) { return "Alice is a teacher.", nil },
		func(context.Context, string) ([]document.Page, error) {
			return []document.Page{{Number: 1, Text: "Bob is a plumber."}}, nil
		},
		nil,
	), ".pdf")

	_, err := f.pipeline.Run(ctx, Job{FilePath: writeFile(t, "people.pdf", "x"), DocumentID: "people"})
	require.NoError(t, err)

	query, err := wordBackend{}.EmbedText(ctx, "Alice is a teacher.")
	require.NoError(t, err)
	results, err := f.store.Search(ctx, query, storage.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Alice is a teacher.", results[0].Text)
	assert.Equal(t, 0, results[0].PageNumber)
}
