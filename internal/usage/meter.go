// Package usage accumulates backend credit consumption and emits
// threshold notifications.
package usage

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"scrapequeue/internal/metrics"
	"scrapequeue/internal/scrape"
)

// Meter is the process-wide credit accumulator. The total only increases;
// each threshold fires exactly once, at the moment of crossing. A meter
// for a self-hosted backend is disabled entirely: that deployment variant
// has no credit concept.
type Meter struct {
	mu        sync.Mutex
	total     int64
	lastCheck time.Time

	warnAt   int64
	critAt   int64
	warned   bool
	critical bool

	enabled bool
	clock   scrape.Clock
	logger  *zap.Logger
}

// New constructs an enabled meter with the given thresholds. A threshold
// of zero disables that notification.
func New(warnAt, critAt int64, clock scrape.Clock, logger *zap.Logger) *Meter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Meter{
		warnAt:  warnAt,
		critAt:  critAt,
		enabled: true,
		clock:   clock,
		logger:  logger,
	}
}

// NewDisabled constructs a meter whose Record is a no-op, for self-hosted
// backends.
func NewDisabled() *Meter {
	return &Meter{logger: zap.NewNop()}
}

// Record adds creditsUsed to the running total and evaluates thresholds.
func (m *Meter) Record(creditsUsed int) {
	if !m.enabled || creditsUsed <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total += int64(creditsUsed)
	m.lastCheck = m.clock.Now()
	metrics.AddCreditsUsed(creditsUsed)

	if m.critAt > 0 && !m.critical && m.total >= m.critAt {
		m.critical = true
		m.logger.Error("credit usage crossed critical threshold",
			zap.Int64("total", m.total),
			zap.Int64("threshold", m.critAt),
		)
	}
	if m.warnAt > 0 && !m.warned && m.total >= m.warnAt {
		m.warned = true
		m.logger.Warn("credit usage crossed warning threshold",
			zap.Int64("total", m.total),
			zap.Int64("threshold", m.warnAt),
		)
	}
}

// Total returns the accumulated credit count.
func (m *Meter) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// LastCheck returns the time of the most recent recorded usage.
func (m *Meter) LastCheck() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}
