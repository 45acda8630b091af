package constants

// JobState is the canonical lifecycle state for rows in jobs.
type JobState string

// Stable values (store these exact strings in DB).
const (
	JobStateQueued    JobState = "QUEUED"    // accepted, waiting for a worker
	JobStateRunning   JobState = "RUNNING"   // claimed by exactly one worker
	JobStateSucceeded JobState = "SUCCEEDED" // terminal, result recorded
	JobStateFailed    JobState = "FAILED"    // terminal, failure reason recorded
	JobStateCancelled JobState = "CANCELLED" // terminal, cancelled before completion
)

// IsTerminal reports whether no further transitions are permitted from s.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}
