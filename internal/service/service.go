// Package service exposes the in-process submit/status contract consumed
// by whatever transport sits in front of it.
package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"scrapequeue/internal/queue"
	"scrapequeue/internal/registry"
	"scrapequeue/internal/scrape"
	"scrapequeue/internal/status"
)

// Service ties the registry, execution queue and status reporter together.
type Service struct {
	registry *registry.Registry
	queue    *queue.Queue
	reporter *status.Reporter
	logger   *zap.Logger
}

// New constructs a Service.
func New(reg *registry.Registry, q *queue.Queue, reporter *status.Reporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: reg,
		queue:    q,
		reporter: reporter,
		logger:   logger,
	}
}

// SubmitBatch registers a batch scrape job and enqueues it. The call
// never performs the backend call synchronously and never blocks on the
// queue; submission always yields a job id. If enqueuing fails the job is
// marked failed without ever reaching processing, and the caller learns
// of it by polling.
func (s *Service) SubmitBatch(urls []string, opts scrape.Options) (string, error) {
	if len(urls) == 0 {
		return "", errors.New("at least one URL required")
	}
	return s.submit(scrape.JobKindBatch, urls, opts), nil
}

// SubmitCrawl registers an asynchronous crawl job rooted at one URL.
func (s *Service) SubmitCrawl(url string, opts scrape.Options) (string, error) {
	if url == "" {
		return "", errors.New("url required")
	}
	return s.submit(scrape.JobKindCrawl, []string{url}, opts), nil
}

func (s *Service) submit(kind scrape.JobKind, urls []string, opts scrape.Options) string {
	job := s.registry.Create(kind, urls, opts)
	if err := s.queue.Submit(job.ID); err != nil {
		msg := fmt.Sprintf("failed to enqueue job: %v", err)
		s.logger.Error("enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		if failErr := s.registry.Fail(job.ID, msg); failErr != nil {
			s.logger.Error("fail job status update", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return job.ID
	}
	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.Int("urls", len(urls)),
	)
	return job.ID
}

// Status reports the current state of a job. Unknown ids surface as
// scrape.ErrNotFound, distinct from any backend failure.
func (s *Service) Status(jobID string) (status.Payload, error) {
	return s.reporter.Report(jobID)
}
