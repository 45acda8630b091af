package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/docuscan/docuscan/internal/extract"
	"github.com/docuscan/docuscan/internal/llm/openai"
	"github.com/docuscan/docuscan/internal/pipeline"
	"github.com/docuscan/docuscan/internal/postproc"
	"github.com/docuscan/docuscan/internal/schemas"
)

// runpipe runs the extraction pipeline once against a local PDF and prints
// the structured result to stdout. Useful for prompt/schema iteration
// without standing up the queue.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 3 {
		logger.Error("usage", "cmd", "runpipe <document-type> <pdf-path>")
		os.Exit(2)
	}
	docType, pdfPath := os.Args[1], os.Args[2]

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		logger.Error("read pdf", "path", pdfPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	registry := postproc.Defaults()
	provider := schemas.NewFileProvider(os.Getenv("SCHEMAS_DIR"), registry, logger)
	schema, err := provider.GetSchema(ctx, docType)
	if err != nil {
		logger.Error("resolve schema", "document_type", docType, "error", err)
		os.Exit(1)
	}

	completer := openai.NewClient(openai.Config{}, logger)
	extractor := extract.NewPDFExtractor(extract.Config{}, logger)
	p := pipeline.New(extractor, completer, logger)

	start := time.Now()
	result, err := p.Run(ctx, data, schema)
	dur := time.Since(start)
	if err != nil {
		logger.Error("pipeline failed", "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}
	result = registry.Apply(docType, result)

	logger.Info("pipeline OK", "fields", len(result), "duration_ms", dur.Milliseconds())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
