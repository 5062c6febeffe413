// Package ingest turns uploaded files into stored, searchable chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mike-a-ellis/docqa/internal/chunking"
	"github.com/mike-a-ellis/docqa/internal/document"
	"github.com/mike-a-ellis/docqa/internal/embedding"
	"github.com/mike-a-ellis/docqa/internal/extract"
	"github.com/mike-a-ellis/docqa/internal/generation"
	"github.com/mike-a-ellis/docqa/internal/progress"
	"github.com/mike-a-ellis/docqa/internal/storage"
)

// ErrEmptyResult means extraction succeeded but produced nothing to index.
var ErrEmptyResult = errors.New("no usable text extracted")

// Progress checkpoints reported while a job runs.
const (
	ProgressQueued    = 10
	ProgressExtracted = 20
	ProgressChunked   = 40
	ProgressEmbedded  = 80
	ProgressStored    = 100
)

// ChunkEmbedder embeds chunks, skipping the ones that fail.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []document.Chunk) []document.EmbeddedChunk
}

// Describer writes a short description of a document.
type Describer interface {
	Describe(ctx context.Context, title, content string) (*generation.DocumentSummary, error)
}

// Job is one file to ingest.
type Job struct {
	TaskID     string
	FilePath   string
	FileName   string
	DocumentID string
	Collection string
}

// Result contains statistics about an ingestion run.
type Result struct {
	DocumentID string
	Collection string
	Chunks     int
	Stored     int
	Skipped    int
	Replaced   int
	Duration   time.Duration
}

// PipelineConfig holds the components of a pipeline.
// Tracker and Describer are optional.
type PipelineConfig struct {
	Registry  *extract.Registry
	Chunker   *chunking.Chunker
	Embedder  ChunkEmbedder
	Store     storage.Store
	Tracker   *progress.Tracker
	Describer Describer
	Logger    *slog.Logger
}

// Pipeline orchestrates extraction, chunking, embedding and storage of one file.
type Pipeline struct {
	registry  *extract.Registry
	chunker   *chunking.Chunker
	embedder  ChunkEmbedder
	store     storage.Store
	tracker   *progress.Tracker
	describer Describer
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunker := cfg.Chunker
	if chunker == nil {
		chunker = chunking.NewChunker(0, 0)
	}
	return &Pipeline{
		registry:  cfg.Registry,
		chunker:   chunker,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		tracker:   cfg.Tracker,
		describer: cfg.Describer,
		logger:    logger,
		now:       time.Now,
	}
}

// Supports reports whether the pipeline can read path.
func (p *Pipeline) Supports(path string) bool {
	return p.registry.Supports(path)
}

// DocumentID builds the default id YYYYMMDD_<collection|unknown>_<filename>.
func DocumentID(at time.Time, collection, fileName string) string {
	if collection == "" {
		collection = "unknown"
	}
	return fmt.Sprintf("%s_%s_%s", at.Format("20060102"), collection, fileName)
}

// Run ingests job.FilePath. Any failure moves the task to the error state.
// Chunks already written are not rolled back.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Result, error) {
	if job.FileName == "" {
		job.FileName = filepath.Base(job.FilePath)
	}
	if job.DocumentID == "" {
		job.DocumentID = DocumentID(p.now(), job.Collection, job.FileName)
	}
	logger := p.logger.With("task_id", job.TaskID, "document_id", job.DocumentID)

	result, err := p.run(ctx, job, logger)
	if err != nil {
		logger.Error("ingestion failed", "file", job.FileName, "error", err)
		p.fail(ctx, job, err)
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, job Job, logger *slog.Logger) (*Result, error) {
	start := p.now()

	extracted, err := p.registry.Extract(ctx, job.FilePath)
	if err != nil {
		return nil, err
	}
	if extracted.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, job.FileName)
	}
	extractionTime := p.now().Sub(start)
	p.report(ctx, job, ProgressExtracted, "Text extracted")
	logger.Debug("extracted document", "kind", extracted.Kind, "pages", len(extracted.Pages), "candidates", len(extracted.Chunks))

	chunks := p.chunk(extracted)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s produced no chunks", ErrEmptyResult, job.FileName)
	}
	p.report(ctx, job, ProgressChunked, fmt.Sprintf("Split into %d chunks", len(chunks)))

	embedded := p.embedder.EmbedChunks(ctx, chunks)
	if len(embedded) == 0 {
		return nil, fmt.Errorf("%w: no chunk of %s could be embedded", embedding.ErrEmbeddingUnavailable, job.FileName)
	}
	p.report(ctx, job, ProgressEmbedded, fmt.Sprintf("Embedded %d of %d chunks", len(embedded), len(chunks)))

	meta := p.documentMetadata(ctx, job, extracted, extractionTime)

	// The old version is only removed once the new vectors are known to fit.
	store := p.store.WithCollection(job.Collection)
	if err := store.EnsureCollection(ctx, embedded[0].Dimension()); err != nil {
		return nil, err
	}
	replaced, err := store.DeleteDocument(ctx, job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("replace %s: %w", job.DocumentID, err)
	}
	stored, err := store.Upsert(ctx, embedded, job.DocumentID, meta)
	if err != nil {
		return nil, err
	}
	p.report(ctx, job, ProgressStored, "")

	result := &Result{
		DocumentID: job.DocumentID,
		Collection: store.CollectionName(),
		Chunks:     len(chunks),
		Stored:     stored.Stored,
		Skipped:    stored.Skipped + len(chunks) - len(embedded),
		Replaced:   replaced,
		Duration:   p.now().Sub(start),
	}
	logger.Info("ingested document",
		"file", job.FileName,
		"collection", result.Collection,
		"chunks", result.Chunks,
		"stored", result.Stored,
		"replaced", result.Replaced,
		"duration", result.Duration,
	)
	return result, nil
}

// chunk turns an extraction result into final chunks. Candidate chunks from
// structured extractors are kept unless they exceed the target size, in which
// case they are re-split and inherit the candidate's metadata.
func (p *Pipeline) chunk(r extract.Result) []document.Chunk {
	switch {
	case r.Kind == extract.KindChunks:
		var out []document.Chunk
		for _, candidate := range r.Chunks {
			if strings.TrimSpace(candidate.Text) == "" {
				continue
			}
			if utf8.RuneCountInString(candidate.Text) <= p.chunker.TargetSize() {
				out = append(out, candidate)
				continue
			}
			for _, piece := range p.chunker.Chunk(candidate.Text) {
				piece.PageNumber = candidate.PageNumber
				piece.PageSize = candidate.PageSize
				piece.Metadata = candidate.Metadata.Clone()
				out = append(out, piece)
			}
		}
		for i := range out {
			out[i].Index = i
		}
		return out
	case len(r.Pages) > 0:
		return p.chunker.ChunkPages(r.Pages)
	default:
		return p.chunker.Chunk(r.Text)
	}
}

func (p *Pipeline) documentMetadata(ctx context.Context, job Job, r extract.Result, extractionTime time.Duration) document.Metadata {
	meta := r.Metadata.Clone()
	meta["title"] = job.FileName
	meta["file_type"] = strings.TrimPrefix(strings.ToLower(filepath.Ext(job.FileName)), ".")
	meta["file_path"] = job.FilePath
	meta["extraction_time"] = extractionTime.Seconds()
	meta["upload_time"] = p.now().UTC().Format(time.RFC3339)
	if info, err := os.Stat(job.FilePath); err == nil {
		meta["file_size"] = info.Size()
	}
	if job.Collection != "" {
		meta["department"] = job.Collection
	}

	if p.describer != nil {
		summary, err := p.describer.Describe(ctx, job.FileName, fullText(r))
		if err != nil {
			p.logger.Warn("document description failed, continuing without", "file", job.FileName, "error", err)
		} else {
			meta["description"] = summary.Summary
			if len(summary.Keywords) > 0 {
				meta["keywords"] = strings.Join(summary.Keywords, ", ")
			}
		}
	}
	return meta
}

func fullText(r extract.Result) string {
	if r.Kind != extract.KindChunks {
		return r.Text
	}
	texts := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		texts = append(texts, c.Text)
	}
	return strings.Join(texts, "\n")
}

func (p *Pipeline) report(ctx context.Context, job Job, value int, message string) {
	if p.tracker == nil || job.TaskID == "" {
		return
	}
	if err := p.tracker.SetProgress(ctx, job.TaskID, value, message); err != nil {
		p.logger.Warn("progress update failed", "task_id", job.TaskID, "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, job Job, cause error) {
	if p.tracker == nil || job.TaskID == "" {
		return
	}
	if err := p.tracker.SetError(ctx, job.TaskID, cause.Error()); err != nil {
		p.logger.Warn("progress update failed", "task_id", job.TaskID, "error", err)
	}
}
