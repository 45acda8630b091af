package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/docuscan/docuscan/constants"
	"github.com/docuscan/docuscan/internal/common"
	"github.com/docuscan/docuscan/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	document_ref     TEXT NOT NULL,
	document_type    TEXT NOT NULL,
	schema_json      TEXT NOT NULL,
	state            TEXT NOT NULL,
	attempts         INTEGER NOT NULL DEFAULT 0,
	max_attempts     INTEGER NOT NULL DEFAULT 3,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	result_json      TEXT,
	failure_reason   TEXT,
	enqueued_at      TEXT NOT NULL,
	started_at       TEXT,
	finished_at      TEXT,
	lease_expires_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_state_enqueued ON jobs(state, enqueued_at);
`

const jobColumns = `id, document_ref, document_type, schema_json, state, attempts, max_attempts,
	cancel_requested, result_json, failure_reason, enqueued_at, started_at, finished_at, lease_expires_at`

// SQLiteStore is the durable JobStore for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the jobs database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent claims.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "initialize schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, job *entity.Job) error {
	schemaJSON, err := json.Marshal(job.Schema)
	if err != nil {
		return common.WrapError(err, "encode schema")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, document_ref, document_type, schema_json, state, attempts, max_attempts,
			cancel_requested, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		job.ID.String(), job.DocumentRef, job.DocumentType, string(schemaJSON),
		string(job.State), job.Attempts, job.MaxAttempts, job.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	)
	return common.WrapError(err, "insert job")
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("QUEUE_ERROR", fmt.Sprintf("job %s not found", id), common.ErrNotFound)
	}
	return job, err
}

func (s *SQLiteStore) ClaimNext(ctx context.Context, leaseTTL time.Duration) (*entity.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.WrapError(err, "begin claim")
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE state = ? ORDER BY enqueued_at LIMIT 1`, string(constants.JobStateQueued))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lease := now.Add(leaseTTL)
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET state = ?, attempts = attempts + 1, started_at = ?, lease_expires_at = ?
		WHERE id = ? AND state = ?`,
		string(constants.JobStateRunning), now.Format(time.RFC3339Nano), lease.Format(time.RFC3339Nano),
		job.ID.String(), string(constants.JobStateQueued),
	)
	if err != nil {
		return nil, common.WrapError(err, "claim job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost the race inside this transaction scope, treat as empty
		return nil, ErrNoJob
	}
	if err := tx.Commit(); err != nil {
		return nil, common.WrapError(err, "commit claim")
	}

	job.State = constants.JobStateRunning
	job.Attempts++
	job.StartedAt = &now
	job.LeaseExpiresAt = &lease
	return job, nil
}

func (s *SQLiteStore) MarkSucceeded(ctx context.Context, id uuid.UUID, result json.RawMessage) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, result_json = ?, finished_at = ?, lease_expires_at = NULL
		WHERE id = ? AND state = ? AND cancel_requested = 0`,
		string(constants.JobStateSucceeded), string(result), now,
		id.String(), string(constants.JobStateRunning),
	)
	if err != nil {
		return false, common.WrapError(err, "mark succeeded")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	return false, s.cancelIfRequested(ctx, id)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, failure_reason = ?, finished_at = ?, lease_expires_at = NULL
		WHERE id = ? AND state = ? AND cancel_requested = 0`,
		string(constants.JobStateFailed), reason, now,
		id.String(), string(constants.JobStateRunning),
	)
	if err != nil {
		return false, common.WrapError(err, "mark failed")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	return false, s.cancelIfRequested(ctx, id)
}

// cancelIfRequested settles a RUNNING job whose terminal write was
// refused because cancellation was requested mid-run.
func (s *SQLiteStore) cancelIfRequested(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, finished_at = ?, lease_expires_at = NULL
		WHERE id = ? AND state = ? AND cancel_requested = 1`,
		string(constants.JobStateCancelled), now,
		id.String(), string(constants.JobStateRunning),
	)
	return common.WrapError(err, "settle cancellation")
}

func (s *SQLiteStore) RequestCancel(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, cancel_requested = 1, finished_at = ?
		WHERE id = ? AND state = ?`,
		string(constants.JobStateCancelled), now,
		id.String(), string(constants.JobStateQueued),
	)
	if err != nil {
		return false, common.WrapError(err, "cancel queued job")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	res, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET cancel_requested = 1
		WHERE id = ? AND state = ?`,
		id.String(), string(constants.JobStateRunning),
	)
	if err != nil {
		return false, common.WrapError(err, "flag running job")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) Requeue(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, started_at = NULL, lease_expires_at = NULL
		WHERE id = ? AND state = ? AND cancel_requested = 0`,
		string(constants.JobStateQueued),
		id.String(), string(constants.JobStateRunning),
	)
	if err != nil {
		return common.WrapError(err, "requeue job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.cancelIfRequested(ctx, id)
	}
	return nil
}

func (s *SQLiteStore) ExpiredLeases(ctx context.Context, now time.Time) ([]*entity.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE state = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		string(constants.JobStateRunning), now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, common.WrapError(err, "query expired leases")
	}
	defer func() { _ = rows.Close() }()

	var expired []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, job)
	}
	return expired, rows.Err()
}

func (s *SQLiteStore) Depth(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE state = ?`, string(constants.JobStateQueued),
	).Scan(&n)
	return n, common.WrapError(err, "queue depth")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		job                               entity.Job
		idStr, stateStr, schemaJSON       string
		enqueuedAt                        string
		resultJSON, reason                sql.NullString
		startedAt, finishedAt, leaseUntil sql.NullString
		cancelRequested                   int
	)
	err := row.Scan(&idStr, &job.DocumentRef, &job.DocumentType, &schemaJSON, &stateStr,
		&job.Attempts, &job.MaxAttempts, &cancelRequested, &resultJSON, &reason,
		&enqueuedAt, &startedAt, &finishedAt, &leaseUntil)
	if err != nil {
		return nil, err
	}

	job.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, common.WrapError(err, "parse job id")
	}
	if err := json.Unmarshal([]byte(schemaJSON), &job.Schema); err != nil {
		return nil, common.WrapError(err, "decode schema")
	}
	job.State = constants.JobState(stateStr)
	job.CancelRequested = cancelRequested != 0
	if resultJSON.Valid {
		job.Result = json.RawMessage(resultJSON.String)
	}
	if reason.Valid {
		job.FailureReason = &reason.String
	}
	if job.EnqueuedAt, err = time.Parse(time.RFC3339Nano, enqueuedAt); err != nil {
		return nil, common.WrapError(err, "parse enqueued_at")
	}
	if t, ok := parseNullTime(startedAt); ok {
		job.StartedAt = t
	}
	if t, ok := parseNullTime(finishedAt); ok {
		job.FinishedAt = t
	}
	if t, ok := parseNullTime(leaseUntil); ok {
		job.LeaseExpiresAt = t
	}
	return &job, nil
}

func parseNullTime(v sql.NullString) (*time.Time, bool) {
	if !v.Valid {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, false
	}
	return &t, true
}
