// Package backoff implements the retry delay policy for backend calls.
package backoff

import (
	"math"
	"time"

	"scrapequeue/internal/scrape"
)

// Policy computes retry delays and the max-attempt cutoff. Only rate
// limited errors are retryable; the delay grows exponentially from
// InitialDelay by Factor per attempt, capped at MaxDelay. The policy is
// deterministic and side-effect free.
type Policy struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

// Default returns the policy used when configuration supplies nothing.
func Default() Policy {
	return Policy{
		InitialDelay: time.Second,
		Factor:       2,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  3,
	}
}

// Delay returns the wait before retrying after the given attempt
// (1-based): InitialDelay * Factor^(attempt-1), capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another attempt is warranted after err on
// the given attempt. True only for rate limited errors below the attempt
// ceiling; all other errors are terminal regardless of attempt count.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	return scrape.IsRateLimited(err)
}
