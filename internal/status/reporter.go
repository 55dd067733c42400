// Package status projects job records into caller-facing summaries.
package status

import (
	"scrapequeue/internal/registry"
	"scrapequeue/internal/scrape"
)

// Payload is the caller-facing view of a job. The full result payload is
// not echoed; completed jobs only advertise that a result exists.
type Payload struct {
	ID              string `json:"id"`
	State           string `json:"state"`
	Completed       int    `json:"completed"`
	Total           int    `json:"total"`
	Error           string `json:"error,omitempty"`
	ResultAvailable bool   `json:"result_available,omitempty"`
}

// Reporter reads records without ever mutating them.
type Reporter struct {
	registry *registry.Registry
}

// NewReporter constructs a Reporter over the registry.
func NewReporter(reg *registry.Registry) *Reporter {
	return &Reporter{registry: reg}
}

// Report returns the current status of a job, or scrape.ErrNotFound for
// an unknown id.
func (r *Reporter) Report(jobID string) (Payload, error) {
	job, err := r.registry.Get(jobID)
	if err != nil {
		return Payload{}, err
	}
	p := Payload{
		ID:        job.ID,
		State:     string(job.State),
		Completed: job.Progress.Completed,
		Total:     job.Progress.Total,
	}
	switch job.State {
	case scrape.JobStateFailed:
		p.Error = job.ErrorText
	case scrape.JobStateCompleted:
		p.ResultAvailable = len(job.Result) > 0
	}
	return p, nil
}
