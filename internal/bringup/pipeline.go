// Package bringup sequences the storage peripheral's initialization: card
// init, volume open, root directory open, log file open, header write. Each
// stage runs through the retry executor and is attempted only if its
// predecessor produced a value; a definitive stage failure skips everything
// downstream but never aborts the process.
package bringup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/datalogger/internal/infra/sdcard"
	"github.com/vietddude/datalogger/internal/metrics"
	"github.com/vietddude/datalogger/internal/record"
	"github.com/vietddude/datalogger/internal/retry"
)

// SpeedSetter raises the bus operating speed. *bus.SharedBus satisfies it.
type SpeedSetter interface {
	SetSpeed(ctx context.Context, speedHz int) error
}

// Config holds pipeline settings.
type Config struct {
	Retry       retry.Config
	VolumeIndex int
	RunSpeedHz  int
	Filename    string
}

// Pipeline brings up one card and produces an optional log file handle.
type Pipeline struct {
	card *sdcard.Card
	bus  SpeedSetter
	cfg  Config
	log  *slog.Logger
}

// New creates a bring-up pipeline.
func New(card *sdcard.Card, bus SpeedSetter, cfg Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{card: card, bus: bus, cfg: cfg, log: log}
}

// Run executes the bring-up stages in order and returns the open log file,
// or nil if any stage exhausted its retry budget. The returned error is
// non-nil only when the bus speed reconfiguration fails; that failure is
// fatal to the process.
func (p *Pipeline) Run(ctx context.Context) (*sdcard.File, error) {
	capacity, ok := runStage(ctx, p, "card_init", "card initialization", func(ctx context.Context) (uint64, error) {
		return p.card.Init(ctx)
	})
	if ok {
		p.log.Info("card ready", "capacity_bytes", capacity)
	}

	var volume *sdcard.Volume
	if ok {
		volume, ok = runStage(ctx, p, "open_volume", "opening volume", func(ctx context.Context) (*sdcard.Volume, error) {
			return p.card.OpenVolume(ctx, p.cfg.VolumeIndex)
		})
	}

	var dir *sdcard.Dir
	if ok {
		dir, ok = runStage(ctx, p, "open_root_dir", "opening root directory", func(ctx context.Context) (*sdcard.Dir, error) {
			return volume.OpenRootDir(ctx)
		})
	}

	// The bus runs at a conservative speed during card initialization.
	// Raise it exactly once, whatever the stages above produced.
	if err := p.bus.SetSpeed(ctx, p.cfg.RunSpeedHz); err != nil {
		return nil, fmt.Errorf("raise bus speed to %d hz: %w", p.cfg.RunSpeedHz, err)
	}
	p.log.Info("bus speed raised", "speed_hz", p.cfg.RunSpeedHz)

	var file *sdcard.File
	if ok {
		file, ok = runStage(ctx, p, "open_file", "creating log file", func(ctx context.Context) (*sdcard.File, error) {
			return dir.OpenFile(ctx, p.cfg.Filename, sdcard.ModeCreateOrAppend)
		})
		if ok {
			p.log.Info("log file opened", "filename", p.cfg.Filename)
		}
	}

	if file != nil {
		if _, ok := runStage(ctx, p, "write_header", "writing header", func(ctx context.Context) (int, error) {
			return file.Write(ctx, []byte(record.Header))
		}); !ok {
			// A headerless file is useless; drop the handle and run
			// counter-only. The file itself stays on the medium.
			if err := file.Close(ctx); err != nil {
				p.log.Warn("failed to close log file after header failure", "error", err)
			}
			file = nil
		}
	}

	return file, nil
}

func runStage[T any](ctx context.Context, p *Pipeline, stage, name string, op func(context.Context) (T, error)) (T, bool) {
	v, ok := retry.Do(ctx, p.log, name, p.cfg.Retry, func(ctx context.Context) (T, error) {
		metrics.BringupAttempts.WithLabelValues(stage).Inc()
		return op(ctx)
	})
	if !ok {
		metrics.BringupFailures.WithLabelValues(stage).Inc()
	}
	return v, ok
}
