package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
)

const (
	// FallbackDimension is reported by Dimension when the probe fails.
	FallbackDimension = 1536

	dimensionProbe  = "This is a test text for dimension check."
	validationProbe = "Hello, world!"
)

// ErrEmbeddingUnavailable is returned when the remote endpoint cannot produce an embedding.
var ErrEmbeddingUnavailable = errors.New("embedding endpoint unavailable")

// Backend produces a vector for one text.
type Backend interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Embedder turns text and chunks into vectors using a Backend.
// It holds no mutable state and is safe for concurrent use.
type Embedder struct {
	backend Backend
	logger  *slog.Logger
}

// NewEmbedder creates an Embedder. A nil logger uses slog.Default().
func NewEmbedder(backend Backend, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		backend: backend,
		logger:  logger,
	}
}

// Embed returns the embedding of text. Blank text returns an empty vector
// without calling the endpoint. Transport failures wrap ErrEmbeddingUnavailable.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}

	vec, err := e.backend.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// EmbedChunks embeds each chunk independently. Chunks whose embedding fails
// or comes back empty are skipped and logged, so the result may be shorter
// than the input without that being an error.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []document.Chunk) []document.EmbeddedChunk {
	embedded := make([]document.EmbeddedChunk, 0, len(chunks))

	for _, chunk := range chunks {
		vec, err := e.Embed(ctx, chunk.Text)
		if err != nil {
			e.logger.Warn("Skipping chunk, embedding failed", "chunk_index", chunk.Index, "error", err)
			continue
		}
		if len(vec) == 0 {
			e.logger.Warn("Skipping chunk with empty embedding", "chunk_index", chunk.Index)
			continue
		}
		embedded = append(embedded, document.EmbeddedChunk{Chunk: chunk, Embedding: vec})
	}

	e.logger.Debug("Embedded chunks", "requested", len(chunks), "embedded", len(embedded))
	return embedded
}

// Dimension embeds a probe string and returns its length, or
// FallbackDimension if the probe fails.
func (e *Embedder) Dimension(ctx context.Context) int {
	vec, err := e.Embed(ctx, dimensionProbe)
	if err != nil || len(vec) == 0 {
		e.logger.Warn("Dimension probe failed, using fallback", "fallback", FallbackDimension, "error", err)
		return FallbackDimension
	}
	return len(vec)
}

// Validate checks that the endpoint returns a non-empty embedding.
func (e *Embedder) Validate(ctx context.Context) error {
	vec, err := e.Embed(ctx, validationProbe)
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrEmbeddingUnavailable)
	}
	return nil
}

// Similarity returns the cosine similarity of a and b. It returns 0 when
// either vector is empty, their lengths differ, or either norm is zero.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
