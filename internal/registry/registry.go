// Package registry owns the in-memory job records and their lifecycle.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"scrapequeue/internal/scrape"
)

// Registry maps job ids to records. Insert and lookup are serialized by a
// single mutex; per-record mutation happens through the same mutex, which
// is cheap because the single-concurrency queue guarantees one writer per
// record anyway. Ids come from per-kind monotonic counters and are never
// reused.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*scrape.Job
	seq   map[scrape.JobKind]uint64
	clock scrape.Clock
}

// New constructs an empty Registry.
func New(clock scrape.Clock) *Registry {
	return &Registry{
		jobs:  make(map[string]*scrape.Job),
		seq:   make(map[scrape.JobKind]uint64),
		clock: clock,
	}
}

// Create inserts a new pending job and returns a copy of the record.
// Progress total is fixed to the input count.
func (r *Registry) Create(kind scrape.JobKind, urls []string, opts scrape.Options) scrape.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq[kind]++
	job := &scrape.Job{
		ID:        fmt.Sprintf("%s_%d", kind, r.seq[kind]),
		Kind:      kind,
		URLs:      append([]string(nil), urls...),
		Options:   opts,
		State:     scrape.JobStatePending,
		Progress:  scrape.Progress{Completed: 0, Total: len(urls)},
		Submitted: r.clock.Now(),
	}
	r.jobs[job.ID] = job
	return *job
}

// Get returns a copy of the job or scrape.ErrNotFound.
func (r *Registry) Get(jobID string) (scrape.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return scrape.Job{}, scrape.ErrNotFound
	}
	return *job, nil
}

// MarkProcessing moves a pending job to processing. Called only by the
// queue worker that owns the job.
func (r *Registry) MarkProcessing(jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	if job.State.IsTerminal() {
		return fmt.Errorf("job %s already %s", jobID, job.State)
	}
	job.State = scrape.JobStateProcessing
	now := r.clock.Now()
	job.Started = &now
	return nil
}

// Complete records a successful result and moves the job to its terminal
// completed state. Progress jumps to total; the transition is a no-op
// error if the job already terminated.
func (r *Registry) Complete(jobID string, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	if job.State.IsTerminal() {
		return fmt.Errorf("job %s already %s", jobID, job.State)
	}
	job.State = scrape.JobStateCompleted
	job.Result = result
	job.ErrorText = ""
	job.Progress.Completed = job.Progress.Total
	now := r.clock.Now()
	job.Finished = &now
	return nil
}

// Fail records a terminal failure with a diagnostic message.
func (r *Registry) Fail(jobID string, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return scrape.ErrNotFound
	}
	if job.State.IsTerminal() {
		return fmt.Errorf("job %s already %s", jobID, job.State)
	}
	job.State = scrape.JobStateFailed
	job.ErrorText = msg
	job.Result = nil
	now := r.clock.Now()
	job.Finished = &now
	return nil
}

// Len reports the number of retained records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Sweep evicts terminal jobs that finished before the cutoff and returns
// how many were removed. Pending and processing jobs are never evicted.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.State.IsTerminal() && job.Finished != nil && job.Finished.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs a periodic TTL sweep until the context finishes. The
// eviction policy lives at the integration boundary; the registry itself
// retains records indefinitely unless this is wired in.
func (r *Registry) StartSweeper(ctx context.Context, interval, ttl time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.clock.Now().Add(-ttl)); n > 0 {
				logger.Info("swept terminal jobs", zap.Int("removed", n))
			}
		}
	}
}
