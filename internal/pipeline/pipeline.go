package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/docuscan/docuscan/internal/entity"
	"github.com/docuscan/docuscan/internal/extract"
	"github.com/docuscan/docuscan/internal/llm"
)

// Stage names the steps of the document state machine.
type Stage string

const (
	StageExtracting        Stage = "EXTRACTING"
	StageCallingModel      Stage = "CALLING_MODEL"
	StageParsingValidating Stage = "PARSING_VALIDATING"
	StageDone              Stage = "DONE"
	StageErrored           Stage = "ERRORED"
)

// Pipeline turns raw document bytes into a validated structured result:
// extract text, call the model, recover JSON, validate required fields.
// Each stage consumes the previous stage's output; ERRORED is reachable
// from EXTRACTING and CALLING_MODEL only. Every internal failure is
// converted into one of the typed errors in this package, so Run yields
// exactly one of a result map or an error.
type Pipeline struct {
	Extractor extract.TextExtractor
	Completer llm.Completer
	Logger    *slog.Logger
}

func New(extractor extract.TextExtractor, completer llm.Completer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Extractor: extractor, Completer: completer, Logger: logger}
}

// Run executes the state machine for one document. A parse failure is
// not fatal: the result degrades to the raw model output (see
// llm.RecoverJSON). Only extraction failures, model-call failures, and
// an entirely empty result cross this boundary as errors.
func (p *Pipeline) Run(ctx context.Context, doc []byte, schema entity.ExtractionSchema) (map[string]any, error) {
	start := time.Now()

	// EXTRACTING
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := p.runExtract(ctx, doc)
	if err != nil {
		return nil, err
	}

	// CALLING_MODEL
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := p.runModel(ctx, schema, text)
	if err != nil {
		return nil, err
	}

	// PARSING/VALIDATING
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := p.runParseValidate(raw, schema)
	if err != nil {
		return nil, err
	}

	p.Logger.Info("pipeline.done",
		"keys", len(result),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) runExtract(ctx context.Context, doc []byte) (string, error) {
	text, err := p.Extractor.Extract(ctx, doc)
	if err != nil {
		p.Logger.Error("pipeline.extract.failed", "error", err)
		return "", &ExtractionError{Cause: err}
	}
	p.Logger.Info("pipeline.extract.ok", "text_len", len(text))
	return text, nil
}

func (p *Pipeline) runModel(ctx context.Context, schema entity.ExtractionSchema, text string) (string, error) {
	prompt := llm.BuildUserPrompt(schema, text)
	raw, err := p.Completer.Complete(ctx, schema.SystemInstruction, prompt)
	if err != nil {
		p.Logger.Error("pipeline.model.failed", "error", err)
		return "", &LLMError{Cause: err}
	}
	p.Logger.Info("pipeline.model.ok", "response_len", len(raw))
	return raw, nil
}

func (p *Pipeline) runParseValidate(raw string, schema entity.ExtractionSchema) (map[string]any, error) {
	data, parsed := llm.RecoverJSON(raw)
	if !parsed {
		p.Logger.Warn("pipeline.parse.degraded", "response_len", len(raw))
	}
	if len(data) == 0 {
		return nil, &EmptyResultError{}
	}
	return ValidateRequired(data, schema.RequiredFields), nil
}
