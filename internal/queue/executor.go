package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/docuscan/docuscan/internal/blob"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
	"github.com/docuscan/docuscan/internal/pipeline"
	"github.com/docuscan/docuscan/internal/postproc"
)

// JobExecutor runs one job to completion: fetch bytes, run the
// pipeline, apply the document type's post-processor, encode the result.
type JobExecutor interface {
	Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error)
}

// PipelineExecutor is the production JobExecutor.
type PipelineExecutor struct {
	Blob     blob.Store
	Pipeline *pipeline.Pipeline
	Registry *postproc.Registry
	Logger   *slog.Logger
}

func NewPipelineExecutor(store blob.Store, p *pipeline.Pipeline, reg *postproc.Registry, logger *slog.Logger) *PipelineExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineExecutor{Blob: store, Pipeline: p, Registry: reg, Logger: logger}
}

func (e *PipelineExecutor) Execute(ctx context.Context, job *entity.Job) (json.RawMessage, error) {
	// Document bytes are borrowed for this run only; nothing below
	// retains them past the pipeline call.
	data, err := e.Blob.Fetch(ctx, job.DocumentRef)
	if err != nil {
		e.Logger.Error("executor.fetch.failed", "job_id", job.ID, "ref", job.DocumentRef, "error", err)
		return nil, err
	}

	result, err := e.Pipeline.Run(ctx, data, job.Schema)
	if err != nil {
		return nil, err
	}

	if e.Registry != nil {
		result = e.Registry.Apply(job.DocumentType, result)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, common.WrapError(err, "encode result")
	}
	return encoded, nil
}
