package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/mike-a-ellis/docqa/internal/document"
)

// DefaultOCRLanguages are used when none are configured.
var DefaultOCRLanguages = []string{"kor", "eng"}

// OCREngine recognizes text in an encoded PNG image.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (string, error)
}

// Image runs OCR over preprocessed images. The primary engine runs first;
// the fallback runs only when the primary yields no text. If both come back
// empty the result is an empty string, not an error.
type Image struct {
	primary  OCREngine
	fallback OCREngine
	logger   *slog.Logger
}

// NewImage creates an image extractor using the Tesseract library binding
// as primary engine and the tesseract command line as fallback.
func NewImage(languages []string, logger *slog.Logger) *Image {
	if len(languages) == 0 {
		languages = DefaultOCRLanguages
	}
	return NewImageWithEngines(&TesseractLib{Languages: languages}, &TesseractCLI{Languages: languages}, logger)
}

// NewImageWithEngines creates an image extractor with explicit engines.
// fallback may be nil.
func NewImageWithEngines(primary, fallback OCREngine, logger *slog.Logger) *Image {
	if logger == nil {
		logger = slog.Default()
	}
	return &Image{primary: primary, fallback: fallback, logger: logger}
}

func (e *Image) Extract(ctx context.Context, path string) (Result, error) {
	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Preprocess(src), imaging.PNG); err != nil {
		return Result{}, fmt.Errorf("failed to encode preprocessed image: %w", err)
	}
	b := src.Bounds()
	meta := document.Metadata{"image_width": b.Dx(), "image_height": b.Dy()}

	for _, engine := range []OCREngine{e.primary, e.fallback} {
		if engine == nil {
			continue
		}
		text, err := engine.Recognize(ctx, buf.Bytes())
		if err != nil {
			e.logger.Warn("OCR engine failed", "engine", engine.Name(), "path", path, "error", err)
			continue
		}
		if strings.TrimSpace(text) != "" {
			meta["ocr_engine"] = engine.Name()
			return TextResult(text, meta), nil
		}
	}

	e.logger.Info("OCR found no text", "path", path)
	return TextResult("", meta), nil
}

// TesseractLib uses the libtesseract binding.
type TesseractLib struct {
	Languages []string
}

func (t *TesseractLib) Name() string { return "gosseract" }

func (t *TesseractLib) Recognize(_ context.Context, png []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Languages...); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", err
	}
	return client.Text()
}

// TesseractCLI shells out to the tesseract binary.
type TesseractCLI struct {
	Languages []string
	Binary    string // defaults to "tesseract"
}

func (t *TesseractCLI) Name() string { return "tesseract-cli" }

func (t *TesseractCLI) Recognize(ctx context.Context, png []byte) (string, error) {
	tmp, err := os.CreateTemp("", "docqa-ocr-*.png")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(png); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	binary := t.Binary
	if binary == "" {
		binary = "tesseract"
	}
	out, err := exec.CommandContext(ctx, binary, tmp.Name(), "stdout", "-l", strings.Join(t.Languages, "+")).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", binary, err)
	}
	return string(out), nil
}
