package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"scrapequeue/internal/executor"
	"scrapequeue/internal/metrics"
	"scrapequeue/internal/registry"
	"scrapequeue/internal/scrape"
	"scrapequeue/internal/usage"
)

// Worker drains the queue one job at a time and drives each job through
// the call executor to a terminal state.
type Worker struct {
	queue     *Queue
	registry  *registry.Registry
	backend   scrape.Backend
	exec      *executor.Executor
	meter     *usage.Meter
	publisher scrape.Publisher
	topic     string
	logger    *zap.Logger
}

// NewWorker constructs the single queue worker.
func NewWorker(
	q *Queue,
	reg *registry.Registry,
	backend scrape.Backend,
	exec *executor.Executor,
	meter *usage.Meter,
	publisher scrape.Publisher,
	topic string,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     q,
		registry:  reg,
		backend:   backend,
		exec:      exec,
		meter:     meter,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// Run blocks, consuming queued jobs until the context finishes. Jobs run
// strictly in submission order; nothing overlaps.
func (w *Worker) Run(ctx context.Context) {
	for {
		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", jobID))
		w.processJob(ctx, jobID)
	}
}

// processJob takes one job from pending to a terminal state. Failures of
// any shape are captured onto the record here; they never escape to break
// processing of subsequent jobs.
func (w *Worker) processJob(ctx context.Context, jobID string) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("panic during job execution", zap.String("job_id", jobID), zap.Any("panic", rec))
			w.failJob(jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	job, err := w.registry.Get(jobID)
	if err != nil {
		w.logger.Error("dequeued unknown job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.State.IsTerminal() {
		// Marked failed at submission time (queueing error); nothing to run.
		return
	}

	if err := w.registry.MarkProcessing(jobID); err != nil {
		w.logger.Error("mark processing failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	metrics.SetWorkerBusy(true)
	defer metrics.SetWorkerBusy(false)

	result, err := w.exec.Execute(ctx, jobID, func(callCtx context.Context) (scrape.BackendResult, error) {
		return w.backend.Run(callCtx, scrape.BackendRequest{
			Kind:    job.Kind,
			URLs:    job.URLs,
			Options: job.Options,
		})
	})
	if err != nil {
		w.logger.Warn("job failed", zap.String("job_id", jobID), zap.Error(err))
		w.failJob(jobID, err.Error())
		w.publishTerminal(ctx, jobID, scrape.JobStateFailed, 0)
		metrics.ObserveJob(string(job.Kind), string(scrape.JobStateFailed))
		return
	}

	w.meter.Record(result.CreditsUsed)
	if err := w.registry.Complete(jobID, result.Data); err != nil {
		w.logger.Error("complete job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	w.logger.Info("job completed",
		zap.String("job_id", jobID),
		zap.Int("credits_used", result.CreditsUsed),
	)
	w.publishTerminal(ctx, jobID, scrape.JobStateCompleted, result.CreditsUsed)
	metrics.ObserveJob(string(job.Kind), string(scrape.JobStateCompleted))
}

func (w *Worker) failJob(jobID, msg string) {
	if err := w.registry.Fail(jobID, msg); err != nil {
		w.logger.Error("fail job status update", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) publishTerminal(ctx context.Context, jobID string, state scrape.JobState, credits int) {
	if w.publisher == nil || w.topic == "" {
		return
	}
	payload := map[string]any{
		"job_id":       jobID,
		"state":        string(state),
		"credits_used": credits,
	}
	if _, err := w.publisher.Publish(ctx, w.topic, payload); err != nil {
		w.logger.Warn("publish completion event failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
