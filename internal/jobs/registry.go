// Package jobs tracks the ingest module instances alive for each job so that
// job-scoped work runs exactly once.
package jobs

import (
	"context"
	"sync"

	"centralrepo/internal/bulk"
)

// Job is the coordination state of one active ingest job.
type Job struct {
	ID int64

	// Buffer holds the job's pending artifact writes.
	Buffer *bulk.Buffer

	modules  int64
	warnings int64

	registered chan struct{}
	regOnce    sync.Once
	regErr     error
}

// FinishRegistration releases instances waiting on WaitRegistered. Only the
// first call has an effect.
func (j *Job) FinishRegistration(err error) {
	j.regOnce.Do(func() {
		j.regErr = err
		close(j.registered)
	})
}

// WaitRegistered blocks until the elected instance finished registering the
// job's case and data source, and returns its error. A finished registration
// wins over a done ctx.
func (j *Job) WaitRegistered(ctx context.Context) error {
	select {
	case <-j.registered:
		return j.regErr
	default:
	}
	select {
	case <-j.registered:
		return j.regErr
	case <-ctx.Done():
		select {
		case <-j.registered:
			return j.regErr
		default:
			return ctx.Err()
		}
	}
}

// Registry maps job IDs to their Job. Entries are removed when the module
// count drops back to zero.
type Registry struct {
	mu        sync.Mutex
	jobs      map[int64]*Job
	newBuffer func() *bulk.Buffer
}

// NewRegistry creates a registry. newBuffer builds the buffer of each new job.
func NewRegistry(newBuffer func() *bulk.Buffer) *Registry {
	return &Registry{jobs: make(map[int64]*Job), newBuffer: newBuffer}
}

func (r *Registry) getOrCreate(jobID int64) *Job {
	j, ok := r.jobs[jobID]
	if !ok {
		j = &Job{ID: jobID, registered: make(chan struct{})}
		if r.newBuffer != nil {
			j.Buffer = r.newBuffer()
		}
		r.jobs[jobID] = j
	}
	return j
}

// IncrementAndGet counts one more live module for jobID. A result of 1 marks
// the caller as the instance that performs job startup work.
func (r *Registry) IncrementAndGet(jobID int64) (*Job, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.getOrCreate(jobID)
	j.modules++
	return j, j.modules
}

// DecrementAndGet counts one fewer live module for jobID. A result of 0 marks
// the caller as the last instance; the job is then dropped from the registry
// and the returned Job is only valid for final cleanup.
func (r *Registry) DecrementAndGet(jobID int64) (*Job, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, 0
	}
	j.modules--
	if j.modules <= 0 {
		j.modules = 0
		delete(r.jobs, jobID)
	}
	return j, j.modules
}

// IncrementWarnings counts a warning-eligible event for jobID. Callers show
// a warning only when the result is 1.
func (r *Registry) IncrementWarnings(jobID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.getOrCreate(jobID)
	j.warnings++
	return j.warnings
}

// Get returns the active job, or nil.
func (r *Registry) Get(jobID int64) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[jobID]
}

// Len returns the number of active jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
