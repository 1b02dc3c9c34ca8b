package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	commercePointsAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pim_commerce_points_available",
		Help: "Query cost points available as last reported by the commerce API",
	})

	commerceRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pim_commerce_rate_limit_waits_total",
		Help: "Total number of requests delayed because the estimated budget was insufficient",
	})

	commerceRateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pim_commerce_rate_limit_wait_seconds",
		Help:    "Delay imposed by the rate limiter before a request",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

// Tracker holds the budget estimate for one API client and gates requests.
// It is safe for concurrent use; a single client may serve several callers.
type Tracker struct {
	mu     sync.Mutex
	budget Budget
	now    func() time.Time
	logger zerolog.Logger
}

// NewTracker creates a new tracker with an unknown budget.
// Until the first Observe every Reserve returns 0.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{
		now:    time.Now,
		logger: logger,
	}
}

// SetClock replaces the time source (for testing).
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// State returns a copy of the current budget.
func (t *Tracker) State() Budget {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budget
}

// Reserve returns how long the caller should wait before issuing a query
// costing cost points. The budget is not decremented locally; the next
// Observe corrects it from the server-reported value.
func (t *Tracker) Reserve(cost float64) time.Duration {
	t.mu.Lock()
	budget := t.budget
	now := t.now()
	t.mu.Unlock()

	wait := budget.WaitFor(cost, now)
	if wait > 0 {
		commerceRateLimitWaitsTotal.Inc()
		commerceRateLimitWaitSeconds.Observe(wait.Seconds())

		t.logger.Debug().
			Float64("cost", cost).
			Float64("estimated_available", budget.Estimate(now)).
			Dur("wait", wait).
			Msg("Insufficient query budget, delaying request")
	}
	return wait
}

// Observe overwrites the estimate with the authoritative values reported by
// the server. A maximum of 0 keeps the previously known bucket size.
func (t *Tracker) Observe(available, maximum, restoreRate float64) {
	t.mu.Lock()
	t.budget.Available = available
	if maximum > 0 {
		t.budget.Maximum = maximum
	}
	t.budget.RestoreRate = restoreRate
	t.budget.ObservedAt = t.now()
	t.mu.Unlock()

	commercePointsAvailable.Set(available)

	t.logger.Debug().
		Float64("available", available).
		Float64("maximum", maximum).
		Float64("restore_rate", restoreRate).
		Msg("Query budget updated")
}
