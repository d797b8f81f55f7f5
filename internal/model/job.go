package model

import "time"

// JobStatus is the local lifecycle state of an analysis job as tracked by
// the orchestrator. Remote service statuses are mapped onto these.
type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusPolling   JobStatus = "polling"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusTimedOut:
		return true
	}
	return false
}

// AnalysisJob is the audit record of one analysis-job lifecycle. A single
// orchestrator run owns the job exclusively until it reaches a terminal
// status; the record is never mutated afterwards.
type AnalysisJob struct {
	ID             string     `json:"id"`
	RemoteID       string     `json:"remote_id,omitempty"`
	SourceLocation string     `json:"source_location"`
	Status         JobStatus  `json:"status"`
	SubmitAttempts int        `json:"submit_attempts"`
	PollAttempts   int        `json:"poll_attempts"`
	LastError      string     `json:"last_error,omitempty"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
