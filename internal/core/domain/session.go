package domain

import "time"

// SessionSnapshot is a point-in-time view of the logging session,
// consumed by the health monitor.
type SessionSnapshot struct {
	SessionID        string
	Counter          uint64
	Persisting       bool
	WriteErrors      uint64
	LastFlushCounter uint64
	StartedAt        time.Time
	UpdatedAt        time.Time
}
