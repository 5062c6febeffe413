package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"code.sajari.com/docconv/v2"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// Word extracts paragraph text from .docx files.
type Word struct{}

// NewWord creates a Word extractor.
func NewWord() *Word { return &Word{} }

func (w *Word) Extract(_ context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	text, props, err := docconv.ConvertDocx(f)
	if err != nil {
		return Result{}, fmt.Errorf("failed to convert Word document: %w", err)
	}

	meta := document.Metadata{}
	for k, v := range props {
		if v != "" {
			meta[strings.ToLower(k)] = v
		}
	}
	return TextResult(text, meta), nil
}
