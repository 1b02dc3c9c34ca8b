// Package ratelimit implements cost-based request budgeting for the commerce
// GraphQL API. The API reports a leaky-bucket style throttle status with every
// response (extensions.cost.throttleStatus); the tracker keeps the last
// observation and extrapolates the refill between observations to decide how
// long a caller must wait before issuing a costed query.
package ratelimit

import (
	"math"
	"time"
)

// SafetyMargin is added to every computed wait to absorb clock skew between
// the local estimate and the server-side bucket.
const SafetyMargin = 100 * time.Millisecond

// Budget is the point budget last reported by the commerce API.
// It lives for the lifetime of one client and is never persisted.
type Budget struct {
	// Available is the number of points the server reported as currently available.
	Available float64 `json:"available"`

	// Maximum is the bucket size reported by the server.
	Maximum float64 `json:"maximum"`

	// RestoreRate is the number of points restored per second.
	RestoreRate float64 `json:"restore_rate"`

	// ObservedAt is when Available was reported.
	ObservedAt time.Time `json:"observed_at"`
}

// Estimate returns the extrapolated number of available points at now:
// min(Maximum, Available + elapsedSeconds*RestoreRate).
func (b Budget) Estimate(now time.Time) float64 {
	elapsed := now.Sub(b.ObservedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	est := b.Available + elapsed*b.RestoreRate
	if b.Maximum > 0 && est > b.Maximum {
		return b.Maximum
	}
	return est
}

// WaitFor returns how long a query of the given cost must wait at now.
// Returns 0 when the estimate covers the cost or when no restore rate is
// known (nothing to extrapolate from).
func (b Budget) WaitFor(cost float64, now time.Time) time.Duration {
	est := b.Estimate(now)
	if est >= cost || b.RestoreRate <= 0 {
		return 0
	}
	ms := math.Ceil((cost - est) * 1000 / b.RestoreRate)
	return time.Duration(ms)*time.Millisecond + SafetyMargin
}

// IsKnown reports whether the budget has been observed at least once.
func (b Budget) IsKnown() bool {
	return !b.ObservedAt.IsZero()
}
