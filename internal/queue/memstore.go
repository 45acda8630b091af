package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
)

// MemStore is an in-memory JobStore. It backs tests and the runpipe
// tool; production deployments use the SQLite or Postgres stores.
type MemStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*entity.Job
	order []uuid.UUID // enqueue order, drives FIFO claims
}

func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[uuid.UUID]*entity.Job)}
}

func (s *MemStore) Create(_ context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s already exists", job.ID), common.ErrInvalidInput)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	s.order = append(s.order, job.ID)
	return nil
}

func (s *MemStore) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

func (s *MemStore) ClaimNext(_ context.Context, leaseTTL time.Duration) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		job := s.jobs[id]
		if job.State != constants.JobStateQueued {
			continue
		}
		now := time.Now().UTC()
		lease := now.Add(leaseTTL)
		job.State = constants.JobStateRunning
		job.Attempts++
		job.StartedAt = &now
		job.LeaseExpiresAt = &lease
		cp := *job
		return &cp, nil
	}
	return nil, ErrNoJob
}

func (s *MemStore) MarkSucceeded(_ context.Context, id uuid.UUID, result json.RawMessage) (bool, error) {
	return s.finish(id, constants.JobStateSucceeded, result, "")
}

func (s *MemStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) (bool, error) {
	return s.finish(id, constants.JobStateFailed, nil, reason)
}

func (s *MemStore) finish(id uuid.UUID, state constants.JobState, result json.RawMessage, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	if job.State != constants.JobStateRunning {
		return false, nil
	}
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.LeaseExpiresAt = nil
	if job.CancelRequested {
		job.State = constants.JobStateCancelled
		return false, nil
	}
	job.State = state
	if state == constants.JobStateSucceeded {
		job.Result = result
	} else {
		job.FailureReason = &reason
	}
	return true, nil
}

func (s *MemStore) RequestCancel(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	switch job.State {
	case constants.JobStateQueued:
		now := time.Now().UTC()
		job.State = constants.JobStateCancelled
		job.CancelRequested = true
		job.FinishedAt = &now
		return true, nil
	case constants.JobStateRunning:
		job.CancelRequested = true
		return true, nil
	default:
		return false, nil
	}
}

func (s *MemStore) Requeue(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	if job.State != constants.JobStateRunning {
		return nil
	}
	if job.CancelRequested {
		now := time.Now().UTC()
		job.State = constants.JobStateCancelled
		job.FinishedAt = &now
		job.LeaseExpiresAt = nil
		return nil
	}
	job.State = constants.JobStateQueued
	job.StartedAt = nil
	job.LeaseExpiresAt = nil
	return nil
}

func (s *MemStore) ExpiredLeases(_ context.Context, now time.Time) ([]*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*entity.Job
	for _, id := range s.order {
		job := s.jobs[id]
		if job.State == constants.JobStateRunning && job.LeaseExpiresAt != nil && job.LeaseExpiresAt.Before(now) {
			cp := *job
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

func (s *MemStore) Depth(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, job := range s.jobs {
		if job.State == constants.JobStateQueued {
			n++
		}
	}
	return n, nil
}
