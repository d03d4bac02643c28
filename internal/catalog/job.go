package catalog

import "time"

// JobStatus is the lifecycle state of a discovery job. States only
// move forward: pending -> running -> completed | failed.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// DiscoveryJob tracks one asynchronous discovery request. Jobs live in
// an in-memory registry only; they do not survive a process restart.
type DiscoveryJob struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Query       string     `json:"query"`
	Results     []*Entry   `json:"results,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
