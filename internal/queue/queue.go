// Package queue implements the strictly sequential execution queue.
package queue

import (
	"context"
	"errors"
	"fmt"

	"scrapequeue/internal/metrics"
)

// ErrFull is returned when the queue cannot accept another job. Submission
// must never block the caller, so a full buffer is an immediate internal
// queueing error rather than a wait.
var ErrFull = errors.New("execution queue full")

// Queue is a bounded FIFO of job ids. Jobs are started in submission
// order by a single worker, so at most one backend call is in flight at
// any time.
type Queue struct {
	ch chan string
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{ch: make(chan string, capacity)}
}

// Submit places a job id on the queue without blocking.
func (q *Queue) Submit(jobID string) error {
	select {
	case q.ch <- jobID:
		metrics.SetQueueDepth(len(q.ch))
		return nil
	default:
		return ErrFull
	}
}

// Dequeue pops the next job id, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case jobID := <-q.ch:
		metrics.SetQueueDepth(len(q.ch))
		return jobID, nil
	}
}

// Len reports the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}
