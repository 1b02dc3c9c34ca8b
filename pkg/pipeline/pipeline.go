package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for import runs.
var (
	importItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pim_import_items_total",
		Help: "Total imported items by source and outcome",
	}, []string{"source", "outcome"})

	importRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pim_import_runs_total",
		Help: "Total import runs by source and status",
	}, []string{"source", "status"})

	importRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pim_import_run_duration_seconds",
		Help:    "Import run duration in seconds by source",
		Buckets: []float64{1, 10, 60, 300, 900, 3600},
	}, []string{"source"})
)

// DefaultMaxErrors bounds Report.Errors when Options.MaxErrors is 0.
const DefaultMaxErrors = 100

// Processor imports one item.
type Processor[T any] interface {
	// Identify returns the identifier recorded for a failed item.
	Identify(item T) string

	// Process imports item. Returning ErrOwnerNotFound (or OutcomeSkipped)
	// skips it; any other error fails it.
	Process(ctx context.Context, item T, groups *GroupCache) (Outcome, error)
}

// Options configures a run.
type Options struct {
	// Name labels the run in logs, metrics and the report.
	Name string

	// RunID identifies the run. Generated when empty.
	RunID string

	// MaxErrors bounds Report.Errors (default DefaultMaxErrors).
	MaxErrors int

	// Authorize is checked once before the first item is pulled.
	Authorize func(ctx context.Context) error

	Logger zerolog.Logger

	// Now is the clock (for testing).
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "import"
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = DefaultMaxErrors
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Run pulls every item from source and hands it to proc.
//
// The returned error is non-nil only when authorization fails or the source
// cannot be opened: it fails before yielding its first item and the error
// does not report SourceOpened. The report is returned in every case.
// Cancellation of ctx is checked between items and yields a partial report
// with Cancelled set.
func Run[T any](ctx context.Context, source iter.Seq2[T, error], proc Processor[T], opts Options) (*Report, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With().
		Str("run_id", opts.RunID).
		Str("source", opts.Name).
		Logger()

	report := &Report{
		RunID:     opts.RunID,
		Source:    opts.Name,
		StartedAt: opts.Now(),
	}

	if opts.Authorize != nil {
		if err := opts.Authorize(ctx); err != nil {
			finish(report, opts, "unauthorized")
			return report, fmt.Errorf("%w: %w", ErrNotAuthorized, err)
		}
	}

	logger.Info().Msg("Import run started")

	groups := NewGroupCache()
	for item, err := range source {
		if err != nil {
			if ctx.Err() != nil {
				report.Cancelled = true
				break
			}
			if report.Total == 0 && !sourceOpened(err) {
				finish(report, opts, "source_error")
				logger.Error().Err(err).Msg("Import source failed before the first item")
				return report, fmt.Errorf("open source: %w", err)
			}
			report.SourceError = err.Error()
			logger.Error().Err(err).Int("processed", report.Total).Msg("Import source failed, stopping run")
			break
		}

		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		// An item that has started runs to completion; cancellation only
		// stops the next one from starting.
		outcome, err := processItem(context.WithoutCancel(ctx), proc, item, groups)
		switch {
		case err == nil:
			report.record(outcome)
			importItemsTotal.WithLabelValues(opts.Name, outcome.String()).Inc()
		case errors.Is(err, ErrOwnerNotFound):
			report.record(OutcomeSkipped)
			importItemsTotal.WithLabelValues(opts.Name, OutcomeSkipped.String()).Inc()
			logger.Debug().Str("item", proc.Identify(item)).Msg("No owner for item, skipped")
		default:
			id := proc.Identify(item)
			report.recordFailure(id, err.Error(), opts.MaxErrors)
			importItemsTotal.WithLabelValues(opts.Name, "failed").Inc()
			logger.Warn().Err(err).Str("item", id).Msg("Item import failed")
		}
	}

	report.GroupsCreated = groups.Created()

	status := "completed"
	if report.Cancelled {
		status = "cancelled"
		logger.Warn().Int("processed", report.Total).Msg("Import run cancelled")
	} else if report.SourceError != "" {
		status = "source_error"
	}
	finish(report, opts, status)

	logger.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("groups_created", report.GroupsCreated).
		Dur("duration", report.Duration()).
		Msg("Import run finished")

	return report, nil
}

// processItem runs one item, converting a panic into an error.
func processItem[T any](ctx context.Context, proc Processor[T], item T, groups *GroupCache) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return proc.Process(ctx, item, groups)
}

func finish(report *Report, opts Options, status string) {
	report.FinishedAt = opts.Now()
	importRunsTotal.WithLabelValues(opts.Name, status).Inc()
	importRunDuration.WithLabelValues(opts.Name).Observe(report.Duration().Seconds())
}
