package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/entity"
	"github.com/docuscan/docuscan/internal/schemas"
)

// Service is the enqueue/status/cancel/depth facade over the job store.
// Enqueue never rejects under load; admission control is the caller's
// concern and Depth exists so callers can implement it.
type Service struct {
	store       JobStore
	provider    schemas.Provider
	pool        *Pool // nil when no in-process workers run
	maxAttempts int
	logger      *slog.Logger
}

func NewService(store JobStore, provider schemas.Provider, pool *Pool, maxAttempts int, logger *slog.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, provider: provider, pool: pool, maxAttempts: maxAttempts, logger: logger}
}

// Enqueue resolves the schema for documentType, creates a QUEUED job
// for the stored document, and returns its id.
func (s *Service) Enqueue(ctx context.Context, documentRef, documentType string) (uuid.UUID, error) {
	schema, err := s.provider.GetSchema(ctx, documentType)
	if err != nil {
		return uuid.Nil, err
	}

	job := &entity.Job{
		ID:           uuid.New(),
		DocumentRef:  documentRef,
		DocumentType: documentType,
		Schema:       schema,
		State:        constants.JobStateQueued,
		MaxAttempts:  s.maxAttempts,
		EnqueuedAt:   time.Now().UTC(),
	}
	if err := s.store.Create(ctx, job); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("queue.enqueued",
		"job_id", job.ID,
		"document_ref", documentRef,
		"document_type", documentType,
	)
	return job.ID, nil
}

// Status returns the outward status view for a job.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (entity.JobStatus, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return entity.JobStatus{}, err
	}
	return job.StatusView(), nil
}

// Cancel requests cancellation: a QUEUED job is cancelled outright and
// will never run; a RUNNING job is stopped best-effort, no later than
// the next stage boundary for in-process workers.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.store.RequestCancel(ctx, id)
	if err != nil {
		return false, err
	}
	if ok && s.pool != nil {
		s.pool.CancelRunning(id)
	}
	if ok {
		s.logger.Info("queue.cancel_requested", "job_id", id)
	}
	return ok, nil
}

// Depth reports the number of jobs waiting to be claimed.
func (s *Service) Depth(ctx context.Context) (int, error) {
	return s.store.Depth(ctx)
}
