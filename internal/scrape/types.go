// Package scrape defines core types shared across subsystems.
package scrape

import (
	"encoding/json"
	"time"
)

// JobKind tags the kind of remote operation a job performs. It prefixes
// job ids, e.g. "batch_7".
type JobKind string

// Job kinds accepted at submission.
const (
	JobKindBatch JobKind = "batch"
	JobKindCrawl JobKind = "crawl"
)

// JobState represents the lifecycle state of a job.
type JobState string

// Job state values held in the registry. Transitions are monotonic:
// pending -> processing -> completed | failed, nothing leaves a terminal
// state.
const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// IsTerminal reports whether the state admits no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Progress tracks how many of a job's inputs have been processed.
// Completed never exceeds Total; Total is fixed at submission to the
// input count.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Options is the caller-supplied options bag, passed through verbatim to
// the backend.
type Options map[string]any

// Job is the record kept for each submitted batch/crawl operation.
// Exactly one of Result/ErrorText is set, and only in the matching
// terminal state.
type Job struct {
	ID        string          `json:"id"`
	Kind      JobKind         `json:"kind"`
	URLs      []string        `json:"urls"`
	Options   Options         `json:"options,omitempty"`
	State     JobState        `json:"state"`
	Progress  Progress        `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
	Submitted time.Time       `json:"submitted_at"`
	Started   *time.Time      `json:"started_at,omitempty"`
	Finished  *time.Time      `json:"finished_at,omitempty"`
}

// BackendRequest carries one job's inputs to the backend collaborator.
type BackendRequest struct {
	Kind    JobKind
	URLs    []string
	Options Options
}

// BackendResult is a successful backend response. CreditsUsed is zero when
// the backend does not meter consumption (self-hosted deployments).
type BackendResult struct {
	Data        json.RawMessage
	CreditsUsed int
}
