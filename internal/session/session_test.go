package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Mock File
// =============================================================================

type mockFile struct {
	mu            sync.Mutex
	writes        [][]byte
	failed        int
	flushAtWrites []int // number of successful writes seen at each flush
	failWriteAt   map[int]bool
	failFlush     bool
}

func newMockFile() *mockFile {
	return &mockFile{failWriteAt: make(map[int]bool)}
}

func (f *mockFile) Write(ctx context.Context, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt := len(f.writes) + f.failed + 1
	if f.failWriteAt[attempt] {
		f.failed++
		return 0, errors.New("write rejected")
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *mockFile) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFlush {
		return errors.New("flush rejected")
	}
	f.flushAtWrites = append(f.flushAtWrites, len(f.writes))
	return nil
}

func (f *mockFile) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *mockFile) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() Config {
	return Config{SessionID: "test", TickInterval: time.Millisecond, FlushEvery: 10}
}

// runUntil runs the session until cond holds, then stops it.
func runUntil(t *testing.T, s *Session, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("condition not reached before deadline")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_WritesAndFlushes(t *testing.T) {
	file := newMockFile()
	s := New(file, fastConfig(), discardLogger())

	runUntil(t, s, func() bool { return file.writeCount() >= 12 })

	lines := file.lines()
	for i, line := range lines[:12] {
		want := fmt.Sprintf(",count,%d\n", i+1)
		if !strings.HasSuffix(line, want) {
			t.Errorf("record %d = %q, want suffix %q", i, line, want)
		}
		if !strings.HasSuffix(line, "\n") || len(line) > 64 {
			t.Errorf("record %d = %q violates line format bounds", i, line)
		}
	}

	file.mu.Lock()
	flushes := append([]int(nil), file.flushAtWrites...)
	file.mu.Unlock()
	if len(flushes) == 0 {
		t.Fatal("expected at least one flush")
	}
	if flushes[0] != 10 {
		t.Errorf("first flush after %d writes, want 10", flushes[0])
	}
}

func TestRun_NoFile_CountsOnly(t *testing.T) {
	s := New(nil, fastConfig(), discardLogger())

	runUntil(t, s, func() bool { return s.Snapshot().Counter >= 5 })

	snap := s.Snapshot()
	if snap.Persisting {
		t.Error("expected counter-only session to report not persisting")
	}
	if snap.Counter < 5 {
		t.Errorf("counter = %d, want >= 5", snap.Counter)
	}
	if snap.WriteErrors != 0 {
		t.Errorf("write errors = %d, want 0", snap.WriteErrors)
	}
}

func TestRun_WriteFailureIsSkipped(t *testing.T) {
	file := newMockFile()
	file.failWriteAt[2] = true
	s := New(file, fastConfig(), discardLogger())

	runUntil(t, s, func() bool { return file.writeCount() >= 4 })

	snap := s.Snapshot()
	if snap.WriteErrors != 1 {
		t.Errorf("write errors = %d, want 1", snap.WriteErrors)
	}
	if !snap.Persisting {
		t.Error("a failed write must not drop the file handle")
	}

	// The failed tick's record is gone; later ticks keep writing.
	lines := file.lines()
	if !strings.HasSuffix(lines[0], ",count,1\n") {
		t.Errorf("first record = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",count,3\n") {
		t.Errorf("record after failure = %q, want counter 3", lines[1])
	}
}

func TestRun_FlushFailureIgnored(t *testing.T) {
	file := newMockFile()
	file.failFlush = true
	s := New(file, fastConfig(), discardLogger())

	// The loop must stay live well past the failing flush points.
	runUntil(t, s, func() bool { return file.writeCount() >= 25 })

	if snap := s.Snapshot(); snap.LastFlushCounter != 0 {
		t.Errorf("last flush counter = %d, want 0 with flushes failing", snap.LastFlushCounter)
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	s := New(nil, fastConfig(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the loop to come up.
	for !s.running.Load() {
		time.Sleep(time.Millisecond)
	}
	if err := s.Run(ctx); err == nil {
		t.Error("expected error for second Run")
	}

	cancel()
	<-done
}

func TestShouldFlush(t *testing.T) {
	tests := []struct {
		counter  uint64
		every    uint64
		expected bool
	}{
		{10, 10, true},
		{15, 10, false},
		{20, 10, true},
		{0, 10, false},
		{1, 10, false},
		{10, 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("counter=%d every=%d", tt.counter, tt.every), func(t *testing.T) {
			if got := ShouldFlush(tt.counter, tt.every); got != tt.expected {
				t.Errorf("ShouldFlush(%d, %d) = %v, want %v", tt.counter, tt.every, got, tt.expected)
			}
		})
	}
}
