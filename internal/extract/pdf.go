package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/ledongthuc/pdf"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// TextReader reads the whole text of a file.
type TextReader func(ctx context.Context, path string) (string, error)

// PageReader reads the text of a file page by page.
type PageReader func(ctx context.Context, path string) ([]document.Page, error)

// PDF extracts text with docconv (pdftotext, layout-aware) and falls back to
// the pure-Go ledongthuc/pdf reader when that fails or yields nothing.
type PDF struct {
	primary  TextReader
	fallback PageReader
	logger   *slog.Logger
}

// NewPDF creates a PDF extractor.
func NewPDF(logger *slog.Logger) *PDF {
	p := NewPDFWithReaders(nil, nil, logger)
	p.primary = p.convert
	p.fallback = p.ExtractPages
	return p
}

// NewPDFWithReaders creates a PDF extractor from explicit readers.
func NewPDFWithReaders(primary TextReader, fallback PageReader, logger *slog.Logger) *PDF {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDF{primary: primary, fallback: fallback, logger: logger}
}

// Extract returns the layout-aware text when docconv produces any. Otherwise
// it returns the fallback reader's text with its pages, so chunks keep their
// page numbers. Metadata comes from ReadPDFMetadata.
func (p *PDF) Extract(ctx context.Context, path string) (Result, error) {
	meta := ReadPDFMetadata(path)

	text, err := p.primary(ctx, path)
	if err == nil && strings.TrimSpace(text) != "" {
		return TextResult(text, meta), nil
	}
	p.logger.Warn("docconv PDF extraction failed, falling back", "path", path, "error", err)

	pages, err := p.fallback(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	text = joinPages(pages)
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: no text from any PDF strategy", ErrExtractionFailed)
	}

	result := TextResult(text, meta)
	result.Pages = pages
	return result, nil
}

func (p *PDF) convert(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	text, _, err := docconv.ConvertPDF(f)
	return text, err
}

// ExtractPages returns one entry per page that has text, numbered from 1,
// with the page size taken from its MediaBox.
func (p *PDF) ExtractPages(_ context.Context, path string) (pages []document.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			p.logger.Warn("Null page encountered", "path", path, "page_number", i)
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, document.Page{
			Number: i,
			Text:   text,
			Size:   pageSize(page),
		})
	}
	return pages, nil
}

func pageSize(page pdf.Page) string {
	box := page.V.Key("MediaBox")
	if box.IsNull() || box.Len() < 4 {
		return ""
	}
	width := box.Index(2).Float64() - box.Index(0).Float64()
	height := box.Index(3).Float64() - box.Index(1).Float64()
	if width <= 0 || height <= 0 {
		return ""
	}
	return fmt.Sprintf("%.0fx%.0f", width, height)
}

func joinPages(pages []document.Page) string {
	texts := make([]string, 0, len(pages))
	for _, page := range pages {
		texts = append(texts, page.Text)
	}
	return strings.Join(texts, "\n")
}

// ReadPDFMetadata reads the document information dictionary. Any failure
// leaves the fields empty rather than returning an error.
func ReadPDFMetadata(path string) (meta document.Metadata) {
	meta = document.Metadata{
		"title":             "",
		"author":            "",
		"subject":           "",
		"creator":           "",
		"producer":          "",
		"creation_date":     "",
		"modification_date": "",
		"total_pages":       0,
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("failed to read PDF metadata", "path", path, "error", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		slog.Default().Warn("failed to read PDF metadata", "path", path, "error", err)
		return meta
	}
	defer f.Close()

	meta["total_pages"] = reader.NumPage()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	fields := map[string]string{
		"title":             "Title",
		"author":            "Author",
		"subject":           "Subject",
		"creator":           "Creator",
		"producer":          "Producer",
		"creation_date":     "CreationDate",
		"modification_date": "ModDate",
	}
	for field, key := range fields {
		meta[field] = info.Key(key).Text()
	}
	return meta
}
