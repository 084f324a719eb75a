// Package session runs the steady-state logging loop. The loop is the
// terminal state of the process: it counts and reports every tick for as
// long as the process lives, and appends records to the log file only when
// bring-up managed to produce one.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/datalogger/internal/core/domain"
	"github.com/vietddude/datalogger/internal/metrics"
	"github.com/vietddude/datalogger/internal/record"
)

// File is the open log file the session writes to. *sdcard.File satisfies
// it. A nil File puts the session in counter-only mode.
type File interface {
	Write(ctx context.Context, p []byte) (int, error)
	Flush(ctx context.Context) error
}

// Config holds session loop settings.
type Config struct {
	SessionID    string
	TickInterval time.Duration
	FlushEvery   uint64
}

// Session owns the counter and the optional file handle for the rest of
// the process lifetime.
type Session struct {
	cfg     Config
	file    File
	log     *slog.Logger
	running atomic.Bool
	stop    chan struct{}

	mu               sync.RWMutex
	counter          uint64
	writeErrors      uint64
	lastFlushCounter uint64
	startedAt        time.Time
	updatedAt        time.Time
}

// New creates a session. file may be nil for counter-only mode.
func New(file File, cfg Config, log *slog.Logger) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.FlushEvery == 0 {
		cfg.FlushEvery = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:  cfg,
		file: file,
		log:  log,
		stop: make(chan struct{}),
	}
}

// Run drives the loop until ctx is cancelled or Stop is called.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("session already running")
	}
	defer s.running.Store(false)

	s.mu.Lock()
	s.startedAt = time.Now()
	s.updatedAt = s.startedAt
	s.mu.Unlock()

	if s.file == nil {
		s.log.Warn("no log file available, running counter-only")
	}
	s.log.Info("session loop started", "tick_interval", s.cfg.TickInterval)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop stops the loop.
func (s *Session) Stop() {
	if s.running.Load() {
		close(s.stop)
	}
}

func (s *Session) tick(ctx context.Context) {
	s.mu.Lock()
	s.counter++
	counter := s.counter
	timestamp := uint64(time.Since(s.startedAt).Milliseconds())
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.log.Info("counter", "count", counter)
	metrics.SessionCounter.Set(float64(counter))

	if s.file == nil {
		return
	}

	var buf [record.MaxLineLen]byte
	n := record.FormatLine(buf[:], timestamp, counter)

	if _, err := s.file.Write(ctx, buf[:n]); err != nil {
		// A single failed write is skipped; the handle is kept and the
		// next tick tries again.
		s.log.Warn("record write failed, skipping", "error", err, "count", counter)
		metrics.WriteErrors.Inc()
		s.mu.Lock()
		s.writeErrors++
		s.mu.Unlock()
	} else {
		metrics.RecordsWritten.Inc()
	}

	if ShouldFlush(counter, s.cfg.FlushEvery) {
		if err := s.file.Flush(ctx); err != nil {
			// Best effort only.
			s.log.Warn("flush failed", "error", err, "count", counter)
		} else {
			s.log.Info("flushed records to storage", "count", counter)
			metrics.Flushes.Inc()
			s.mu.Lock()
			s.lastFlushCounter = counter
			s.mu.Unlock()
		}
	}
}

// Snapshot returns the current session state for health reporting.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.SessionSnapshot{
		SessionID:        s.cfg.SessionID,
		Counter:          s.counter,
		Persisting:       s.file != nil,
		WriteErrors:      s.writeErrors,
		LastFlushCounter: s.lastFlushCounter,
		StartedAt:        s.startedAt,
		UpdatedAt:        s.updatedAt,
	}
}

// ShouldFlush is the periodic durability trigger: it fires when counter is
// a positive multiple of every. The loop counts from 1, so counter 0 is
// never observed.
func ShouldFlush(counter, every uint64) bool {
	if every == 0 {
		return false
	}
	return counter > 0 && counter%every == 0
}
