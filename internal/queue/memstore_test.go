package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
)

func newJob() *entity.Job {
	return &entity.Job{
		ID:           uuid.New(),
		DocumentRef:  "ref.pdf",
		DocumentType: "invoice",
		State:        constants.JobStateQueued,
		MaxAttempts:  3,
		EnqueuedAt:   time.Now().UTC(),
	}
}

func TestMemStoreClaimFIFO(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	first, second := newJob(), newJob()
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	claimed, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, first.ID, claimed.ID)
	require.Equal(t, constants.JobStateRunning, claimed.State)
	require.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LeaseExpiresAt)

	claimed, err = s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, second.ID, claimed.ID)

	_, err = s.ClaimNext(ctx, time.Minute)
	require.ErrorIs(t, err, ErrNoJob)
}

func TestMemStoreSucceed(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	recorded, err := s.MarkSucceeded(ctx, job.ID, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.True(t, recorded)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateSucceeded, got.State)
	require.JSONEq(t, `{"a":1}`, string(got.Result))
	require.NotNil(t, got.FinishedAt)
	require.Nil(t, got.LeaseExpiresAt)
}

func TestMemStoreFail(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	recorded, err := s.MarkFailed(ctx, job.ID, "PDF extraction failed: bad input")
	require.NoError(t, err)
	require.True(t, recorded)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateFailed, got.State)
	require.Equal(t, "PDF extraction failed: bad input", *got.FailureReason)
}

// A cancelled QUEUED job is terminal immediately and can never be claimed.
func TestMemStoreCancelQueued(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))

	ok, err := s.RequestCancel(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateCancelled, got.State)

	_, err = s.ClaimNext(ctx, time.Minute)
	require.ErrorIs(t, err, ErrNoJob)
}

// Cancelling a RUNNING job discards its result when the worker reports in.
func TestMemStoreCancelRunningDiscardsResult(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	ok, err := s.RequestCancel(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	recorded, err := s.MarkSucceeded(ctx, job.ID, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.False(t, recorded)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateCancelled, got.State)
	require.Nil(t, got.Result)
}

func TestMemStoreCancelTerminalIsNoop(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	_, err = s.MarkFailed(ctx, job.ID, "boom")
	require.NoError(t, err)

	ok, err := s.RequestCancel(ctx, job.ID)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateFailed, got.State)
}

func TestMemStoreRequeue(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Requeue(ctx, job.ID))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateQueued, got.State)
	require.Equal(t, 1, got.Attempts, "attempts survive a requeue")

	claimed, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, claimed.Attempts)
}

func TestMemStoreRequeueUnderCancellation(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	_, err = s.RequestCancel(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, s.Requeue(ctx, job.ID))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateCancelled, got.State)
}

func TestMemStoreExpiredLeases(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	job := newJob()
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, -time.Second) // lease already expired
	require.NoError(t, err)

	expired, err := s.ExpiredLeases(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, job.ID, expired[0].ID)
}

func TestMemStoreDepth(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newJob()))
	require.NoError(t, s.Create(ctx, newJob()))

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, depth)

	_, err = s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	depth, err = s.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, depth)
}

func TestMemStoreGetUnknown(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
}
