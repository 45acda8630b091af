package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSQLiteJob(enqueued time.Time) *entity.Job {
	return &entity.Job{
		ID:           uuid.New(),
		DocumentRef:  "ref.pdf",
		DocumentType: "invoice",
		Schema: entity.ExtractionSchema{
			SystemInstruction:     "sys",
			ExtractionInstruction: "extract",
			RequiredFields:        []string{"invoice_number"},
		},
		State:       constants.JobStateQueued,
		MaxAttempts: 3,
		EnqueuedAt:  enqueued,
	}
}

func TestSQLiteCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newSQLiteJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, got.ID)
	require.Equal(t, constants.JobStateQueued, got.State)
	require.Equal(t, "invoice", got.DocumentType)
	require.Equal(t, []string{"invoice_number"}, got.Schema.RequiredFields)
	require.WithinDuration(t, job.EnqueuedAt, got.EnqueuedAt, time.Millisecond)
}

func TestSQLiteGetUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteClaimOrderAndLease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	first := newSQLiteJob(base)
	second := newSQLiteJob(base.Add(time.Second))
	require.NoError(t, s.Create(ctx, first))
	require.NoError(t, s.Create(ctx, second))

	claimed, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, first.ID, claimed.ID, "oldest job is claimed first")
	require.Equal(t, constants.JobStateRunning, claimed.State)
	require.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.LeaseExpiresAt)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateRunning, got.State)

	_, err = s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	_, err = s.ClaimNext(ctx, time.Minute)
	require.ErrorIs(t, err, ErrNoJob)
}

func TestSQLiteTerminalWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newSQLiteJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	recorded, err := s.MarkSucceeded(ctx, job.ID, json.RawMessage(`{"invoice_number":"1"}`))
	require.NoError(t, err)
	require.True(t, recorded)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateSucceeded, got.State)
	require.JSONEq(t, `{"invoice_number":"1"}`, string(got.Result))
	require.Nil(t, got.LeaseExpiresAt)

	// terminal states are absorbing
	recorded, err = s.MarkFailed(ctx, job.ID, "late failure")
	require.NoError(t, err)
	require.False(t, recorded)
	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateSucceeded, got.State)
}

func TestSQLiteCancelQueuedNeverRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newSQLiteJob(time.Now().UTC())
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

func TestSQLiteCancelRunningSettlesOnReport(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newSQLiteJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	ok, err := s.RequestCancel(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateRunning, got.State, "running job stays running until the worker reports")
	require.True(t, got.CancelRequested)

	recorded, err := s.MarkSucceeded(ctx, job.ID, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.False(t, recorded)

	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateCancelled, got.State)
	require.Nil(t, got.Result)
}

func TestSQLiteRequeue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newSQLiteJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Requeue(ctx, job.ID))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, constants.JobStateQueued, got.State)
	require.Equal(t, 1, got.Attempts)
	require.Nil(t, got.StartedAt)
	require.Nil(t, got.LeaseExpiresAt)

	claimed, err := s.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, claimed.Attempts)
}

func TestSQLiteExpiredLeases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newSQLiteJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, job))
	_, err := s.ClaimNext(ctx, -time.Second)
	require.NoError(t, err)

	expired, err := s.ExpiredLeases(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, job.ID, expired[0].ID)

	// an intact lease is not reported
	fresh := newSQLiteJob(time.Now().UTC())
	require.NoError(t, s.Create(ctx, fresh))
	_, err = s.ClaimNext(ctx, time.Hour)
	require.NoError(t, err)

	expired, err = s.ExpiredLeases(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
}

func TestSQLiteDepth(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	depth, err := s.Depth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	require.NoError(t, s.Create(ctx, newSQLiteJob(time.Now().UTC())))
	require.NoError(t, s.Create(ctx, newSQLiteJob(time.Now().UTC().Add(time.Second))))

	depth, err = s.Depth(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, depth)
}
