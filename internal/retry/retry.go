// Package retry runs fallible operations with bounded attempts and a fixed
// delay between them. Failures are narrated, never escalated: an exhausted
// budget is reported as absence of a value.
package retry

import (
	"context"
	"log/slog"
	"time"

	backoff "github.com/sethvargo/go-retry"
)

// Defaults for bring-up operations.
const (
	DefaultMaxAttempts = 4
	DefaultDelay       = 500 * time.Millisecond
)

// Config is the retry budget for one operation. It is fixed for the
// lifetime of the process.
type Config struct {
	MaxAttempts int
	Delay       time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	return c
}

// sleep is a variable so tests can count and skip the inter-attempt waits.
var sleep = func(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Do executes op up to cfg.MaxAttempts times, waiting cfg.Delay between
// attempts. It returns the first successful value, or (zero, false) once
// the budget is exhausted or ctx is cancelled during a wait. Errors are
// treated as opaque and equally retryable.
func Do[T any](ctx context.Context, log *slog.Logger, name string, cfg Config, op func(context.Context) (T, error)) (T, bool) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	var zero T
	b := backoff.WithMaxRetries(uint64(cfg.MaxAttempts-1), backoff.NewConstant(cfg.Delay))

	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, true
		}

		log.Warn("operation failed",
			"op", name,
			"error", err,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
		)

		d, stop := b.Next()
		if stop {
			log.Error("operation failed after final attempt", "op", name, "attempts", cfg.MaxAttempts)
			return zero, false
		}
		if !sleep(ctx, d) {
			return zero, false
		}
	}
}
