package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/datalogger/internal/core/domain"
)

type fakeReporter struct {
	snap domain.SessionSnapshot
}

func (f *fakeReporter) Snapshot() domain.SessionSnapshot {
	return f.snap
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		persisting bool
		expected   Status
	}{
		{"persisting session is healthy", true, StatusHealthy},
		{"counter-only session is degraded", false, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(&fakeReporter{snap: domain.SessionSnapshot{
				SessionID:  "abc",
				Counter:    17,
				Persisting: tt.persisting,
				StartedAt:  time.Now().Add(-time.Minute),
			}})

			report := m.Check()
			if report.Status != tt.expected {
				t.Errorf("status = %q, want %q", report.Status, tt.expected)
			}
			if report.Counter != 17 {
				t.Errorf("counter = %d, want 17", report.Counter)
			}
			if report.UptimeSeconds <= 0 {
				t.Errorf("uptime = %f, want > 0", report.UptimeSeconds)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	m := NewMonitor(&fakeReporter{snap: domain.SessionSnapshot{Persisting: false}})
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != 200 {
		t.Errorf("status code = %d, want 200 (degraded mode is still live)", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["status"] != string(StatusDegraded) {
		t.Errorf("status = %q, want %q", body["status"], StatusDegraded)
	}
}

func TestHandleDetailed(t *testing.T) {
	m := NewMonitor(&fakeReporter{snap: domain.SessionSnapshot{
		SessionID:        "abc",
		Counter:          30,
		Persisting:       true,
		LastFlushCounter: 30,
	}})
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/health/detailed", nil)
	w := httptest.NewRecorder()
	s.handleDetailed(w, req)

	var report Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if report.Status != StatusHealthy {
		t.Errorf("status = %q, want %q", report.Status, StatusHealthy)
	}
	if report.LastFlushCounter != 30 {
		t.Errorf("last flush counter = %d, want 30", report.LastFlushCounter)
	}
}
