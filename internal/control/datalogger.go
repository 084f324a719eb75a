// Package control wires the datalogger together: transport, bus, card,
// bring-up pipeline, session loop and health server.
package control

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/vietddude/datalogger/internal/bringup"
	"github.com/vietddude/datalogger/internal/core/config"
	"github.com/vietddude/datalogger/internal/health"
	"github.com/vietddude/datalogger/internal/infra/bus"
	"github.com/vietddude/datalogger/internal/infra/sdcard"
	"github.com/vietddude/datalogger/internal/infra/sdcard/sim"
	"github.com/vietddude/datalogger/internal/metrics"
	"github.com/vietddude/datalogger/internal/record"
	"github.com/vietddude/datalogger/internal/retry"
	"github.com/vietddude/datalogger/internal/session"
)

// Config holds the application configuration.
type Config struct {
	Port    int
	Serial  config.SerialConfig
	Bringup config.BringupConfig
	Session config.SessionConfig
}

// Datalogger is the main application struct that manages the logging
// lifecycle.
type Datalogger struct {
	cfg       Config
	sessionID string
	log       *slog.Logger

	bus      *bus.SharedBus
	card     *sdcard.Card
	pipeline *bringup.Pipeline
	filename string

	// transport is closed on Stop. sim is non-nil only when the built-in
	// simulated peripheral is in use.
	transport io.Closer
	sim       *sim.Peripheral

	session      *session.Session
	healthServer *health.Server
}

// New creates a Datalogger with its transport and bring-up pipeline wired,
// but does not touch the peripheral yet.
func New(cfg Config) (*Datalogger, error) {
	sessionID := uuid.NewString()
	log := slog.Default().With("session", sessionID)

	d := &Datalogger{
		cfg:       cfg,
		sessionID: sessionID,
		log:       log,
	}

	var rw io.ReadWriter
	if cfg.Serial.Port == "" {
		// No serial port configured: serve the wire protocol from the
		// in-memory peripheral over a pipe.
		host, device := net.Pipe()
		d.sim = sim.New(sim.Config{})
		go func() {
			if err := d.sim.Serve(device); err != nil {
				log.Error("simulated peripheral failed", "error", err)
			}
		}()
		d.transport = host
		rw = host
		log.Info("Using simulated peripheral")
	} else {
		port, err := os.OpenFile(cfg.Serial.Port, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Serial.Port, err)
		}
		d.transport = port
		rw = port
		log.Info("Opened serial port", "port", cfg.Serial.Port)
	}

	d.bus = bus.New(rw, cfg.Serial.InitSpeedHz)
	d.card = sdcard.New(d.bus.Device())

	d.filename = cfg.Bringup.Filename
	if d.filename == "" {
		d.filename = record.RandomFilename()
		log.Info("Generated log filename", "filename", d.filename)
	}

	d.pipeline = bringup.New(d.card, d.bus, bringup.Config{
		Retry: retry.Config{
			MaxAttempts: cfg.Bringup.MaxAttempts,
			Delay:       cfg.Bringup.RetryDelay,
		},
		VolumeIndex: cfg.Bringup.VolumeIndex,
		RunSpeedHz:  cfg.Serial.RunSpeedHz,
		Filename:    d.filename,
	}, log)

	return d, nil
}

// Start runs the bring-up pipeline, then starts the session loop and the
// health server. It returns an error only for the fatal bus speed
// reconfiguration failure; stage failures degrade to counter-only mode.
func (d *Datalogger) Start(ctx context.Context) error {
	file, err := d.pipeline.Run(ctx)
	if err != nil {
		return err
	}

	if file == nil {
		d.log.Warn("Bring-up incomplete, persistence disabled")
		metrics.DegradedMode.Set(1)
	} else {
		metrics.DegradedMode.Set(0)
	}

	var sessionFile session.File
	if file != nil {
		sessionFile = file
	}
	d.session = session.New(sessionFile, session.Config{
		SessionID:    d.sessionID,
		TickInterval: d.cfg.Session.TickInterval,
		FlushEvery:   d.cfg.Session.FlushEvery,
	}, d.log)

	d.healthServer = health.NewServer(health.NewMonitor(d.session), d.cfg.Port)
	go func() {
		if err := d.healthServer.Start(); err != nil {
			d.log.Error("Health server failed", "error", err)
		}
	}()

	go func() {
		if err := d.session.Run(ctx); err != nil {
			d.log.Error("Session loop failed", "error", err)
		}
	}()

	return nil
}

// Stop stops the datalogger.
func (d *Datalogger) Stop(ctx context.Context) error {
	d.log.Info("Stopping datalogger...")

	if d.session != nil {
		d.session.Stop()
	}

	if d.healthServer != nil {
		if err := d.healthServer.Stop(ctx); err != nil {
			d.log.Warn("Failed to stop health server", "error", err)
		}
	}

	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			d.log.Warn("Failed to close transport", "error", err)
		}
	}

	d.log.Info("Datalogger stopped")
	return nil
}

// SessionID returns the identifier this run is tagged with.
func (d *Datalogger) SessionID() string {
	return d.sessionID
}
