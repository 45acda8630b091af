package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config for the PDF text extractor.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages  int    // 0 = no limit
}

// PDFExtractor extracts page text from PDF bytes using pdftotext.
// Pages are concatenated in document order with a newline separator and
// the final result is trimmed of leading/trailing whitespace.
type PDFExtractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewPDFExtractor(cfg Config, logger *slog.Logger) *PDFExtractor {
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the command runner. Tests use this to stub pdftotext.
func (e *PDFExtractor) WithRunner(r Runner) *PDFExtractor {
	e.runner = r
	return e
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "ds-extract-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			e.logger.Warn("extract.tmp_cleanup_failed", "dir", tmpDir, "error", rerr)
		}
	}()

	path := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", e.cfg.MaxPages))
	}
	args = append(args, path, "-")

	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return "", fmt.Errorf("%s", firstLine(msg))
		}
		return "", err
	}

	// pdftotext emits a form-feed after each page; the pipeline wants
	// plain newline separation between pages.
	text := strings.TrimSpace(strings.ReplaceAll(string(out), "\f", "\n"))
	pages := 1 + strings.Count(string(out), "\f")

	e.logger.Info("extract.pdf.ok",
		"bytes_in", len(data),
		"text_len", len(text),
		"pages", pages,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
