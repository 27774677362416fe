package models

import "time"

// JobStatus is the tagged status a Job cycles through. Closed enum per
// spec.md §9's "no string comparisons at runtime" redesign hint.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one row of the priority job queue.
type Job struct {
	JobID         string     `json:"job_id"`
	JobType       string     `json:"job_type"`
	Payload       string     `json:"payload"`
	Status        JobStatus  `json:"status"`
	Priority      int        `json:"priority"`
	RetryCount    int        `json:"retry_count"`
	DependsOn     *string    `json:"depends_on,omitempty"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Result        string     `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// DeadLetter is a terminal record for a Job that exceeded its retry budget (I4).
type DeadLetter struct {
	ID                int64     `json:"id"`
	JobID             string    `json:"job_id"`
	JobType           string    `json:"job_type"`
	Payload           string    `json:"payload"`
	Error             string    `json:"error"`
	RetryCount        int       `json:"retry_count"`
	OriginalCreatedAt time.Time `json:"original_created_at"`
	FailedAt          time.Time `json:"failed_at"`
}

// QueueStats is the {status -> count} snapshot returned by JobQueue.Stats.
type QueueStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
