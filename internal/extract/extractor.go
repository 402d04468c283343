package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/the-outlaw-004/medai-backend/internal/config"
)

// ErrExtractionFailed marks a fatal extraction error: the file is missing,
// unreadable or an engine rejected it. Callers must let it fail the job so the
// queue can retry and eventually dead-letter it.
var ErrExtractionFailed = errors.New("extraction failed")

const MIMETypePDF = "application/pdf"

// Extractor turns an uploaded file into raw text, choosing an engine by the
// declared MIME type: image/* goes through OCR, PDF and anything unrecognized
// goes through the PDF text engine as the default fallback.
type Extractor struct {
	cfg    config.OCRConfig
	runner Runner
}

func NewExtractor(cfg config.OCRConfig) *Extractor {
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}}
}

// NewExtractorWithRunner is used by tests to stub the external binaries.
func NewExtractorWithRunner(cfg config.OCRConfig, runner Runner) *Extractor {
	e := NewExtractor(cfg)
	e.runner = runner
	return e
}

// Extract returns the raw text of the file at path. An empty string is a
// valid result for a genuinely empty source; errors always wrap
// ErrExtractionFailed and carry the engine's stderr where available.
func (e *Extractor) Extract(ctx context.Context, path, declaredType string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: stat %q: %v", ErrExtractionFailed, path, err)
	}

	if strings.HasPrefix(declaredType, "image/") {
		return e.imageOCR(ctx, path)
	}

	// application/pdf, missing or unrecognized types all take the PDF path.
	return e.pdfToText(ctx, path)
}

func (e *Extractor) imageOCR(ctx context.Context, path string) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("%w: tesseract: %v: %s", ErrExtractionFailed, err, truncate(string(errb), 1024))
	}
	return string(out), nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("%w: pdftotext: %v: %s", ErrExtractionFailed, err, truncate(string(errb), 1024))
	}
	return string(out), nil
}
