package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/docuscan/docuscan/constants"
)

// Job represents one processing attempt binding a document to a schema.
type Job struct {
	ID              uuid.UUID          `json:"id"`
	DocumentRef     string             `json:"document_ref"`
	DocumentType    string             `json:"document_type"`
	Schema          ExtractionSchema   `json:"schema"`
	State           constants.JobState `json:"state"`
	Attempts        int                `json:"attempts"`
	MaxAttempts     int                `json:"max_attempts"`
	CancelRequested bool               `json:"cancel_requested"`
	Result          json.RawMessage    `json:"result,omitempty"`
	FailureReason   *string            `json:"failure_reason,omitempty"`
	EnqueuedAt      time.Time          `json:"enqueued_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
	LeaseExpiresAt  *time.Time         `json:"lease_expires_at,omitempty"`
}

// JobStatus is the outward status view of a job: a short state plus
// either a result or a failure reason, never internals.
type JobStatus struct {
	ID            uuid.UUID          `json:"id"`
	State         constants.JobState `json:"state"`
	Result        json.RawMessage    `json:"result,omitempty"`
	FailureReason *string            `json:"failure_reason,omitempty"`
}

// StatusView projects a job into its outward status shape.
func (j *Job) StatusView() JobStatus {
	return JobStatus{
		ID:            j.ID,
		State:         j.State,
		Result:        j.Result,
		FailureReason: j.FailureReason,
	}
}
