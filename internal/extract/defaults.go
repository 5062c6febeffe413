package extract

import "log/slog"

// Options configure the default extractor set.
type Options struct {
	// OCRLanguages are Tesseract language codes, e.g. "kor", "eng".
	OCRLanguages []string
	// WholeSheet flattens each spreadsheet into one text block instead of
	// one candidate chunk per row.
	WholeSheet bool
	Logger     *slog.Logger
}

// NewDefaultRegistry registers every supported format.
func NewDefaultRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := NewRegistry()
	r.Register(NewPDF(logger), ".pdf")
	r.Register(NewWord(), ".docx")
	r.Register(NewSpreadsheet(opts.WholeSheet), ".xlsx")
	r.Register(NewPresentation(), ".pptx")
	r.Register(NewImage(opts.OCRLanguages, logger), ".jpg", ".jpeg", ".png")
	r.Register(NewMarkdown(), ".md", ".markdown")
	r.Register(NewPlainText(), ".txt")
	return r
}
