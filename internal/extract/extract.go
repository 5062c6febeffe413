// Package extract turns uploaded files into raw text or candidate chunks.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileNotFound      = errors.New("file not found")
	ErrExtractionFailed  = errors.New("extraction failed")
)

// Kind tags the shape of a Result.
type Kind int

const (
	// KindText carries a flat text stream that still needs chunking.
	KindText Kind = iota
	// KindChunks carries pre-segmented candidate chunks.
	KindChunks
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindChunks:
		return "chunks"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the output of an extractor. Callers branch on Kind:
// Text (with optional per-page breakdown in Pages) for KindText,
// Chunks for KindChunks. Metadata describes the whole document.
type Result struct {
	Kind     Kind
	Text     string
	Pages    []document.Page
	Chunks   []document.Chunk
	Metadata document.Metadata
}

// TextResult builds a KindText result.
func TextResult(text string, meta document.Metadata) Result {
	return Result{Kind: KindText, Text: text, Metadata: meta}
}

// ChunksResult builds a KindChunks result and numbers the chunks.
func ChunksResult(chunks []document.Chunk, meta document.Metadata) Result {
	for i := range chunks {
		chunks[i].Index = i
	}
	return Result{Kind: KindChunks, Chunks: chunks, Metadata: meta}
}

// Empty reports whether the result holds no usable text.
func (r Result) Empty() bool {
	switch r.Kind {
	case KindChunks:
		for _, c := range r.Chunks {
			if strings.TrimSpace(c.Text) != "" {
				return false
			}
		}
		return true
	default:
		return strings.TrimSpace(r.Text) == ""
	}
}

// Extractor reads one document format.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

// PageExtractor is implemented by extractors of paged formats.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]document.Page, error)
}

// Registry maps lower-case file extensions to extractors. It is built once
// at startup and read-only afterwards.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]Extractor)}
}

// Register binds ext (with or without the leading dot) to e.
func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.extractors[normalizeExt(ext)] = e
	}
}

// Lookup returns the extractor for path's extension.
func (r *Registry) Lookup(path string) (Extractor, error) {
	ext := normalizeExt(filepath.Ext(path))
	e, ok := r.extractors[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return e, nil
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, err := r.Lookup(path)
	return err == nil
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract dispatches on extension. Unknown extensions fail with
// ErrUnsupportedFormat before the file is touched; a missing file fails with
// ErrFileNotFound; extractor errors are wrapped in ErrExtractionFailed.
func (r *Registry) Extract(ctx context.Context, path string) (Result, error) {
	e, err := r.Lookup(path)
	if err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	result, err := e.Extract(ctx, path)
	if err != nil {
		if errors.Is(err, ErrExtractionFailed) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if result.Metadata == nil {
		result.Metadata = document.Metadata{}
	}
	return result, nil
}

// ExtractPages returns per-page text when the format supports it.
// ok is false for formats without pages.
func (r *Registry) ExtractPages(ctx context.Context, path string) (pages []document.Page, ok bool, err error) {
	e, err := r.Lookup(path)
	if err != nil {
		return nil, false, err
	}
	pe, ok := e.(PageExtractor)
	if !ok {
		return nil, false, nil
	}
	pages, err = pe.ExtractPages(ctx, path)
	return pages, true, err
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
