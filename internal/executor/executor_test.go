package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scrapequeue/internal/backoff"
	"scrapequeue/internal/metrics"
	"scrapequeue/internal/scrape"
)

func newTestExecutor(policy backoff.Policy) (*Executor, *[]time.Duration) {
	metrics.Init()
	e := New(policy, zap.NewNop())
	slept := &[]time.Duration{}
	e.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return e, slept
}

func testPolicy() backoff.Policy {
	return backoff.Policy{
		InitialDelay: 100 * time.Millisecond,
		Factor:       2,
		MaxDelay:     time.Second,
		MaxAttempts:  4,
	}
}

func rateLimitedErr() error {
	return &scrape.BackendError{StatusCode: 429, Message: "rate limit exceeded"}
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	e, slept := newTestExecutor(testPolicy())
	calls := 0
	result, err := e.Execute(context.Background(), "job", func(context.Context) (scrape.BackendResult, error) {
		calls++
		return scrape.BackendResult{CreditsUsed: 7}, nil
	})

	require.NoError(t, err)
	require.Equal(t, 7, result.CreditsUsed)
	require.Equal(t, 1, calls)
	require.Empty(t, *slept)
}

func TestExecuteRetriesRateLimitedThenSucceeds(t *testing.T) {
	t.Parallel()

	e, slept := newTestExecutor(testPolicy())
	calls := 0
	result, err := e.Execute(context.Background(), "job", func(context.Context) (scrape.BackendResult, error) {
		calls++
		if calls <= 2 {
			return scrape.BackendResult{}, rateLimitedErr()
		}
		return scrape.BackendResult{CreditsUsed: 3}, nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, result.CreditsUsed)
	require.Equal(t, 3, calls, "two rate limited attempts plus the success")
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	t.Parallel()

	e, slept := newTestExecutor(testPolicy())
	calls := 0
	_, err := e.Execute(context.Background(), "job", func(context.Context) (scrape.BackendResult, error) {
		calls++
		return scrape.BackendResult{}, rateLimitedErr()
	})

	require.Error(t, err)
	require.True(t, scrape.IsRateLimited(err))
	require.Equal(t, 4, calls, "exactly maxAttempts calls")
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, *slept)
}

func TestExecuteDelayCapped(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	policy.MaxAttempts = 7
	e, slept := newTestExecutor(policy)
	calls := 0
	_, err := e.Execute(context.Background(), "job", func(context.Context) (scrape.BackendResult, error) {
		calls++
		return scrape.BackendResult{}, rateLimitedErr()
	})

	require.Error(t, err)
	require.Equal(t, 7, calls)
	require.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}, *slept)
}

func TestExecuteTerminalErrorNotRetried(t *testing.T) {
	t.Parallel()

	e, slept := newTestExecutor(testPolicy())
	calls := 0
	boom := errors.New("connection refused")
	_, err := e.Execute(context.Background(), "job", func(context.Context) (scrape.BackendResult, error) {
		calls++
		return scrape.BackendResult{}, boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
	require.Empty(t, *slept)
}

func TestExecuteCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	metrics.Init()
	e := New(testPolicy(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := e.Execute(ctx, "job", func(context.Context) (scrape.BackendResult, error) {
		return scrape.BackendResult{}, rateLimitedErr()
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestSleepContextReturnsOnTimer(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
