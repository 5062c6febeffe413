package extract

import (
	"context"
	"os"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// PlainText reads UTF-8 text files as-is.
type PlainText struct{}

// NewPlainText creates a plain text extractor.
func NewPlainText() *PlainText { return &PlainText{} }

func (PlainText) Extract(_ context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return TextResult(text, document.Metadata{}), nil
}
