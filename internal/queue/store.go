package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/docuscan/docuscan/internal/entity"
)

// ErrNoJob is returned by ClaimNext when no QUEUED job is available.
var ErrNoJob = errors.New("no queued job available")

// JobStore persists jobs and owns every state transition. All methods
// must be safe under concurrent callers; ClaimNext must be atomic so no
// two workers ever hold the same job.
type JobStore interface {
	Create(ctx context.Context, job *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)

	// ClaimNext atomically moves the oldest QUEUED job to RUNNING,
	// increments its attempt counter, and stamps a lease that expires
	// after leaseTTL. Returns ErrNoJob when the queue is empty.
	ClaimNext(ctx context.Context, leaseTTL time.Duration) (*entity.Job, error)

	// MarkSucceeded records a successful terminal result. When
	// cancellation was requested while the job ran, the result is
	// discarded, the job is recorded CANCELLED, and recorded is false.
	MarkSucceeded(ctx context.Context, id uuid.UUID, result json.RawMessage) (recorded bool, err error)

	// MarkFailed records a failure reason. Under a pending cancellation
	// the job is recorded CANCELLED instead and recorded is false.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (recorded bool, err error)

	// RequestCancel cancels a QUEUED job outright, flags a RUNNING job
	// for best-effort cancellation, and reports false for terminal jobs.
	RequestCancel(ctx context.Context, id uuid.UUID) (bool, error)

	// Requeue returns a RUNNING job to QUEUED for another attempt,
	// unless cancellation is pending, in which case it is CANCELLED.
	Requeue(ctx context.Context, id uuid.UUID) error

	// ExpiredLeases lists RUNNING jobs whose lease expired before now.
	ExpiredLeases(ctx context.Context, now time.Time) ([]*entity.Job, error)

	// Depth reports how many jobs are waiting in QUEUED.
	Depth(ctx context.Context) (int, error)
}
