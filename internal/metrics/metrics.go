package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsWritten tracks records successfully appended to the log file
	RecordsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datalogger_records_written_total",
			Help: "Total number of records written to the log file",
		},
	)

	// WriteErrors tracks skipped records due to failed writes
	WriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datalogger_write_errors_total",
			Help: "Total number of record writes that failed and were skipped",
		},
	)

	// Flushes tracks successful forced flushes to durable storage
	Flushes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datalogger_flushes_total",
			Help: "Total number of successful flushes to durable storage",
		},
	)

	// BringupAttempts tracks bring-up stage attempts, per stage
	BringupAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalogger_bringup_attempts_total",
			Help: "Total number of bring-up stage attempts",
		},
		[]string{"stage"},
	)

	// BringupFailures tracks bring-up stages that exhausted their retry budget
	BringupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalogger_bringup_failures_total",
			Help: "Total number of bring-up stages that failed definitively",
		},
		[]string{"stage"},
	)

	// SessionCounter tracks the current session counter value
	SessionCounter = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datalogger_session_counter",
			Help: "Current value of the session counter",
		},
	)

	// DegradedMode is 1 when the session runs counter-only, 0 when persisting
	DegradedMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datalogger_degraded_mode",
			Help: "Whether the session is running without persistence (1 = degraded)",
		},
	)
)
