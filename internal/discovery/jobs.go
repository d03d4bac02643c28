package discovery

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpwizard/mcpwizard/internal/catalog"
)

// defaultJobRetention is how long a terminal job stays pollable before
// it is evicted from the registry.
const defaultJobRetention = time.Hour

// JobRegistry is the in-memory store of discovery jobs. Single-process
// by design: jobs are lost on restart and never persisted.
type JobRegistry struct {
	mu        sync.Mutex
	jobs      map[string]*catalog.DiscoveryJob
	retention time.Duration
}

// NewJobRegistry creates a registry. A non-positive retention falls
// back to the one-hour default.
func NewJobRegistry(retention time.Duration) *JobRegistry {
	if retention <= 0 {
		retention = defaultJobRetention
	}
	return &JobRegistry{
		jobs:      make(map[string]*catalog.DiscoveryJob),
		retention: retention,
	}
}

// newJobID generates a registry-unique job id: submission timestamp
// plus a random suffix.
func newJobID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// Create registers a new pending job and returns its id.
func (r *JobRegistry) Create(query string) string {
	job := &catalog.DiscoveryJob{
		ID:        newJobID(),
		Status:    catalog.JobPending,
		Query:     query,
		StartedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return job.ID
}

// Get returns a snapshot of a job, or nil if it does not exist (never
// created, or already evicted). Reads are pure lookups.
func (r *JobRegistry) Get(id string) *catalog.DiscoveryJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// MarkRunning moves a pending job to running. Jobs only move forward;
// a terminal job is left untouched.
func (r *JobRegistry) MarkRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.Status != catalog.JobPending {
		return
	}
	job.Status = catalog.JobRunning
}

// Complete moves a running job to completed with its results and
// schedules eviction.
func (r *JobRegistry) Complete(id string, results []*catalog.Entry) {
	r.finish(id, catalog.JobCompleted, results, "")
}

// Fail moves a running job to failed with the error message and
// schedules eviction.
func (r *JobRegistry) Fail(id string, errMsg string) {
	r.finish(id, catalog.JobFailed, nil, errMsg)
}

func (r *JobRegistry) finish(id string, status catalog.JobStatus, results []*catalog.Entry, errMsg string) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok || job.Status.Terminal() {
		r.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	job.Status = status
	job.Results = results
	job.Error = errMsg
	job.CompletedAt = &now
	r.mu.Unlock()

	r.scheduleEviction(id)
}

// scheduleEviction arranges for the job to be dropped after the
// retention window. Fire-and-forget; eviction is a delete-if-present,
// so scheduling twice is harmless.
func (r *JobRegistry) scheduleEviction(id string) {
	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.jobs, id)
	})
}
