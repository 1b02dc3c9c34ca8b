package client

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Sternrassler/pim-sync/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	commerceRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pim_commerce_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	commerceRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pim_commerce_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	commerceRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pim_commerce_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	commerceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pim_commerce_errors_total",
		Help: "Total commerce API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassThrottled is a server-signalled budget exhaustion. Retried after
	// a fixed wait without consuming an attempt.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassTransient covers network errors and non-2xx responses.
	// Retried with exponential backoff up to MaxAttempts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassTerminal covers application errors and missing payloads.
	ErrorClassTerminal ErrorClass = "terminal"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of tries for transient failures
	// (including the initial request).
	MaxAttempts int

	// InitialBackoff is the wait after the first transient failure.
	InitialBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// MaxBackoff caps a single backoff.
	MaxBackoff time.Duration

	// ThrottleWait is the fixed wait after a throttling error.
	ThrottleWait time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		ThrottleWait:      2 * time.Second,
	}
}

// Backoff returns the wait before re-issuing after the transient failure
// with the given zero-based index: InitialBackoff * multiplier^index.
func (c RetryConfig) Backoff(attemptIndex int) time.Duration {
	backoff := time.Duration(float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attemptIndex)))
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// RequestFunc issues one attempt of a logical request. Transport failures
// (including non-2xx responses) are returned as err.
type RequestFunc func(ctx context.Context) (*Response, error)

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// sleepContext waits with context cancellation support.
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

// Executor issues costed requests through the rate limiter, classifying
// failures and retrying the retryable ones.
type Executor struct {
	limiter *ratelimit.Tracker
	config  RetryConfig
	sleep   Sleeper
	logger  zerolog.Logger
}

// NewExecutor creates a new executor.
func NewExecutor(limiter *ratelimit.Tracker, config RetryConfig, logger zerolog.Logger) *Executor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = DefaultRetryConfig().BackoffMultiplier
	}
	return &Executor{
		limiter: limiter,
		config:  config,
		sleep:   sleepContext,
		logger:  logger,
	}
}

// SetSleeper replaces the wait function (for testing).
func (e *Executor) SetSleeper(s Sleeper) {
	e.sleep = s
}

// Config returns the retry configuration.
func (e *Executor) Config() RetryConfig {
	return e.config
}

// attempt is the bookkeeping for one try of a logical request.
type attempt struct {
	number  int
	cost    float64
	class   ErrorClass
	backoff time.Duration
}

// Execute runs fn until it succeeds, fails terminally, exhausts MaxAttempts
// transient failures, or ctx is cancelled. Throttling errors are retried
// indefinitely and do not count towards MaxAttempts.
func (e *Executor) Execute(ctx context.Context, fn RequestFunc, cost float64) (*Response, error) {
	transientFailures := 0
	var lastErr error

	for number := 1; ; number++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		if wait := e.limiter.Reserve(cost); wait > 0 {
			if err := e.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}
		}

		resp, err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		if status := resp.Throttle(); err == nil && status != nil {
			e.limiter.Observe(status.CurrentlyAvailable, status.MaximumAvailable, status.RestoreRate)
		}

		class, classErr := classify(resp, err)
		if class == "" {
			if number > 1 {
				e.logger.Info().
					Int("attempt", number).
					Int("transient_failures", transientFailures).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		commerceErrorsTotal.WithLabelValues(string(class)).Inc()
		a := attempt{number: number, cost: cost, class: class}

		if !shouldRetry(class) {
			e.logger.Warn().
				Err(classErr).
				Int("attempt", a.number).
				Str("error_class", string(a.class)).
				Msg("Request failed terminally")
			return nil, classErr
		}

		if class == ErrorClassThrottled {
			a.backoff = e.config.ThrottleWait
		} else {
			lastErr = classErr
			transientFailures++
			if transientFailures >= e.config.MaxAttempts {
				commerceRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
				e.logger.Warn().
					Err(lastErr).
					Str("error_class", string(class)).
					Int("max_attempts", e.config.MaxAttempts).
					Msg("Retry attempts exhausted")
				return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, transientFailures, lastErr)
			}
			a.backoff = e.config.Backoff(transientFailures - 1)
		}

		commerceRetriesTotal.WithLabelValues(string(a.class)).Inc()
		commerceRetryBackoffSeconds.WithLabelValues(string(a.class)).Observe(a.backoff.Seconds())

		e.logger.Debug().
			Err(classErr).
			Str("error_class", string(a.class)).
			Int("attempt", a.number).
			Float64("cost", a.cost).
			Dur("backoff", a.backoff).
			Msg("Retrying request after backoff")

		if err := e.sleep(ctx, a.backoff); err != nil {
			e.logger.Warn().
				Str("error_class", string(a.class)).
				Int("attempt", a.number).
				Msg("Context cancelled during retry backoff")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}
}

// classify categorizes the outcome of one attempt. An empty class means success.
func classify(resp *Response, err error) (ErrorClass, error) {
	switch {
	case err != nil:
		return ErrorClassTransient, err
	case resp == nil:
		return ErrorClassTerminal, ErrMissingData
	case len(resp.Errors) > 0 && hasThrottled(resp.Errors):
		return ErrorClassThrottled, newTerminalError(resp.Errors)
	case len(resp.Errors) > 0:
		return ErrorClassTerminal, newTerminalError(resp.Errors)
	case !resp.HasData():
		return ErrorClassTerminal, ErrMissingData
	default:
		return "", nil
	}
}
