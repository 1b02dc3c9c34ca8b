package runstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LockAttempts tracks run lock acquisitions by result
	LockAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pim_run_lock_attempts_total",
			Help: "Total number of run lock acquisition and refresh attempts",
		},
		[]string{"result"}, // "acquired", "locked", "refreshed", "lost"
	)

	// ReportReads tracks last-report lookups by result
	ReportReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pim_run_report_reads_total",
			Help: "Total number of stored report lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// StoreErrors tracks Redis operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pim_runstore_errors_total",
			Help: "Total number of run store operation errors",
		},
		[]string{"operation"}, // "lock", "unlock", "refresh", "save", "load"
	)
)
