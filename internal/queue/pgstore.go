package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id               UUID PRIMARY KEY,
	document_ref     TEXT NOT NULL,
	document_type    TEXT NOT NULL,
	schema_json      JSONB NOT NULL,
	state            TEXT NOT NULL,
	attempts         INT NOT NULL DEFAULT 0,
	max_attempts     INT NOT NULL DEFAULT 3,
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	result_json      JSONB,
	failure_reason   TEXT,
	enqueued_at      TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ,
	lease_expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_state_enqueued ON jobs(state, enqueued_at);
`

// PGConfig mirrors the pool settings the service exposes via env.
type PGConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PGStore is the JobStore for multi-node deployments: claims rely on
// FOR UPDATE SKIP LOCKED so independent worker processes never collide.
type PGStore struct {
	pool *pgxpool.Pool
}

// OpenPG creates a pgx pool and ensures the jobs table exists.
func OpenPG(ctx context.Context, cfg PGConfig, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "dsn", cfg.DSN)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, common.WrapError(err, "parse dsn")
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "docuscan"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.WrapError(err, "connect")
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, common.WrapError(err, "initialize schema")
	}
	logger.Info("successfully connected to database")
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) Close() { s.pool.Close() }

// Ping checks connectivity; used by startup health checks.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PGStore) Create(ctx context.Context, job *entity.Job) error {
	schemaJSON, err := json.Marshal(job.Schema)
	if err != nil {
		return common.WrapError(err, "encode schema")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, document_ref, document_type, schema_json, state, attempts, max_attempts, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.DocumentRef, job.DocumentType, schemaJSON,
		string(job.State), job.Attempts, job.MaxAttempts, job.EnqueuedAt.UTC(),
	)
	return common.WrapError(err, "insert job")
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_ref, document_type, schema_json, state, attempts, max_attempts,
			cancel_requested, result_json, failure_reason, enqueued_at, started_at, finished_at, lease_expires_at
		FROM jobs WHERE id = $1`, id)
	job, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	return job, err
}

func (s *PGStore) ClaimNext(ctx context.Context, leaseTTL time.Duration) (*entity.Job, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE jobs SET state = $1, attempts = attempts + 1, started_at = $2, lease_expires_at = $3
		WHERE id = (
			SELECT id FROM jobs WHERE state = $4
			ORDER BY enqueued_at LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, document_ref, document_type, schema_json, state, attempts, max_attempts,
			cancel_requested, result_json, failure_reason, enqueued_at, started_at, finished_at, lease_expires_at`,
		string(constants.JobStateRunning), now, now.Add(leaseTTL), string(constants.JobStateQueued),
	)
	job, err := scanPGJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoJob
	}
	return job, err
}

func (s *PGStore) MarkSucceeded(ctx context.Context, id uuid.UUID, result json.RawMessage) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, result_json = $2, finished_at = $3, lease_expires_at = NULL
		WHERE id = $4 AND state = $5 AND NOT cancel_requested`,
		string(constants.JobStateSucceeded), result, time.Now().UTC(),
		id, string(constants.JobStateRunning),
	)
	if err != nil {
		return false, common.WrapError(err, "mark succeeded")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, s.cancelIfRequested(ctx, id)
}

func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, failure_reason = $2, finished_at = $3, lease_expires_at = NULL
		WHERE id = $4 AND state = $5 AND NOT cancel_requested`,
		string(constants.JobStateFailed), reason, time.Now().UTC(),
		id, string(constants.JobStateRunning),
	)
	if err != nil {
		return false, common.WrapError(err, "mark failed")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	return false, s.cancelIfRequested(ctx, id)
}

func (s *PGStore) cancelIfRequested(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, finished_at = $2, lease_expires_at = NULL
		WHERE id = $3 AND state = $4 AND cancel_requested`,
		string(constants.JobStateCancelled), time.Now().UTC(),
		id, string(constants.JobStateRunning),
	)
	return common.WrapError(err, "settle cancellation")
}

func (s *PGStore) RequestCancel(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, cancel_requested = TRUE, finished_at = $2
		WHERE id = $3 AND state = $4`,
		string(constants.JobStateCancelled), time.Now().UTC(),
		id, string(constants.JobStateQueued),
	)
	if err != nil {
		return false, common.WrapError(err, "cancel queued job")
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	tag, err = s.pool.Exec(ctx, `
		UPDATE jobs SET cancel_requested = TRUE
		WHERE id = $1 AND state = $2`,
		id, string(constants.JobStateRunning),
	)
	if err != nil {
		return false, common.WrapError(err, "flag running job")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET state = $1, started_at = NULL, lease_expires_at = NULL
		WHERE id = $2 AND state = $3 AND NOT cancel_requested`,
		string(constants.JobStateQueued),
		id, string(constants.JobStateRunning),
	)
	if err != nil {
		return common.WrapError(err, "requeue job")
	}
	if tag.RowsAffected() == 0 {
		return s.cancelIfRequested(ctx, id)
	}
	return nil
}

func (s *PGStore) ExpiredLeases(ctx context.Context, now time.Time) ([]*entity.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_ref, document_type, schema_json, state, attempts, max_attempts,
			cancel_requested, result_json, failure_reason, enqueued_at, started_at, finished_at, lease_expires_at
		FROM jobs
		WHERE state = $1 AND lease_expires_at IS NOT NULL AND lease_expires_at < $2`,
		string(constants.JobStateRunning), now.UTC(),
	)
	if err != nil {
		return nil, common.WrapError(err, "query expired leases")
	}
	defer rows.Close()

	var expired []*entity.Job
	for rows.Next() {
		job, err := scanPGJob(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, job)
	}
	return expired, rows.Err()
}

func (s *PGStore) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM jobs WHERE state = $1`, string(constants.JobStateQueued),
	).Scan(&n)
	return n, common.WrapError(err, "queue depth")
}

func scanPGJob(row pgx.Row) (*entity.Job, error) {
	var (
		job        entity.Job
		stateStr   string
		schemaJSON []byte
		resultJSON []byte
	)
	err := row.Scan(&job.ID, &job.DocumentRef, &job.DocumentType, &schemaJSON, &stateStr,
		&job.Attempts, &job.MaxAttempts, &job.CancelRequested, &resultJSON, &job.FailureReason,
		&job.EnqueuedAt, &job.StartedAt, &job.FinishedAt, &job.LeaseExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schemaJSON, &job.Schema); err != nil {
		return nil, common.WrapError(err, "decode schema")
	}
	job.State = constants.JobState(stateStr)
	if len(resultJSON) > 0 {
		job.Result = json.RawMessage(resultJSON)
	}
	return &job, nil
}
