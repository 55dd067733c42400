// Package executor wraps a single backend call with the backoff policy.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scrapequeue/internal/backoff"
	"scrapequeue/internal/metrics"
	"scrapequeue/internal/scrape"
)

// Operation is one zero-argument backend call.
type Operation func(ctx context.Context) (scrape.BackendResult, error)

// Executor drives an Operation through the retry loop. Attempt counters
// are local to one Execute invocation.
type Executor struct {
	policy backoff.Policy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New constructs an Executor around the given policy.
func New(policy backoff.Policy, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute invokes op, retrying rate limited failures per the policy.
// label identifies the call in diagnostics only. The sleep between
// attempts suspends this call's continuation, nothing else.
func (e *Executor) Execute(ctx context.Context, label string, op Operation) (scrape.BackendResult, error) {
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !e.policy.ShouldRetry(attempt, err) {
			return scrape.BackendResult{}, err
		}

		delay := e.policy.Delay(attempt)
		e.logger.Warn("rate limited, backing off",
			zap.String("label", label),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.ObserveRetryDelay(delay)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return scrape.BackendResult{}, fmt.Errorf("retry wait: %w", sleepErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
