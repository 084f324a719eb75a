package health

import (
	"time"

	"github.com/vietddude/datalogger/internal/core/domain"
)

// Status is the overall health classification.
type Status string

const (
	// StatusHealthy means records are being persisted to the medium.
	StatusHealthy Status = "healthy"
	// StatusDegraded means the session runs counter-only, without
	// persistence. The process is still live by design.
	StatusDegraded Status = "degraded"
)

// SessionReporter exposes the session state the monitor reads.
type SessionReporter interface {
	Snapshot() domain.SessionSnapshot
}

// Report is the detailed health view served over HTTP.
type Report struct {
	Status           Status  `json:"status"`
	SessionID        string  `json:"session_id"`
	Counter          uint64  `json:"counter"`
	Persisting       bool    `json:"persisting"`
	WriteErrors      uint64  `json:"write_errors"`
	LastFlushCounter uint64  `json:"last_flush_counter"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Monitor derives health reports from the running session.
type Monitor struct {
	session SessionReporter
}

// NewMonitor creates a health monitor.
func NewMonitor(session SessionReporter) *Monitor {
	return &Monitor{session: session}
}

// Check produces the current health report.
func (m *Monitor) Check() Report {
	snap := m.session.Snapshot()

	status := StatusHealthy
	if !snap.Persisting {
		status = StatusDegraded
	}

	var uptime float64
	if !snap.StartedAt.IsZero() {
		uptime = time.Since(snap.StartedAt).Seconds()
	}

	return Report{
		Status:           status,
		SessionID:        snap.SessionID,
		Counter:          snap.Counter,
		Persisting:       snap.Persisting,
		WriteErrors:      snap.WriteErrors,
		LastFlushCounter: snap.LastFlushCounter,
		UptimeSeconds:    uptime,
	}
}
