// Package metrics exposes the Prometheus metrics of pim-sync.
// All metrics are defined in their respective packages (ratelimit, client,
// drive, storage, pipeline, runstore) via promauto and registered with the
// default registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by pim-sync.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router serves /metrics and a /health liveness probe.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", healthHandler)
	r.Handle("/metrics", Handler())
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Serve exposes Router on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pim_commerce_points_available (Gauge): Query cost points last reported by the API
//   - pim_commerce_rate_limit_waits_total (Counter): Requests delayed for budget
//   - pim_commerce_rate_limit_wait_seconds (Histogram): Imposed delays
//
// Request Metrics (pkg/client):
//   - pim_commerce_requests_total{operation, status} (Counter): Requests by operation and HTTP status
//   - pim_commerce_request_duration_seconds{operation} (Histogram): Logical request duration incl. retries
//   - pim_commerce_errors_total{class} (Counter): Failed attempts by class (throttled, transient, terminal)
//
// Retry Metrics (pkg/client):
//   - pim_commerce_retries_total{error_class} (Counter): Retries by error class
//   - pim_commerce_retry_backoff_seconds{error_class} (Histogram): Backoff by error class
//   - pim_commerce_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Source Metrics (pkg/drive, pkg/storage):
//   - pim_drive_folders_listed_total{status} (Counter): Folder listings
//   - pim_drive_files_walked_total (Counter): Files yielded by walks
//   - pim_storage_uploads_total{status} (Counter): Object uploads
//   - pim_storage_upload_bytes_total (Counter): Uploaded bytes
//
// Import Metrics (pkg/pipeline, pkg/runstore):
//   - pim_import_items_total{source, outcome} (Counter): Items by outcome
//   - pim_import_runs_total{source, status} (Counter): Runs by final status
//   - pim_import_run_duration_seconds{source} (Histogram): Run duration
//   - pim_run_lock_attempts_total{result} (Counter): Run lock attempts
//   - pim_run_report_reads_total{result} (Counter): Stored report lookups
//   - pim_runstore_errors_total{operation} (Counter): Redis errors
//
// Example Prometheus Queries:
//
//   # Item failure ratio per source
//   sum by (source) (rate(pim_import_items_total{outcome="failed"}[1h])) /
//   sum by (source) (rate(pim_import_items_total[1h]))
//
//   # Throttling pressure
//   rate(pim_commerce_retries_total{error_class="throttled"}[5m])
//
//   # P95 commerce latency
//   histogram_quantile(0.95, rate(pim_commerce_request_duration_seconds_bucket[5m]))
