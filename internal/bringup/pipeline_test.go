package bringup_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/vietddude/datalogger/internal/bringup"
	"github.com/vietddude/datalogger/internal/infra/bus"
	"github.com/vietddude/datalogger/internal/infra/sdcard"
	"github.com/vietddude/datalogger/internal/infra/sdcard/sim"
	"github.com/vietddude/datalogger/internal/record"
	"github.com/vietddude/datalogger/internal/retry"
)

const testFilename = "LOG00001.CSV"

// fastRetry keeps the inter-attempt delay out of test runtime.
var fastRetry = retry.Config{MaxAttempts: 4, Delay: time.Millisecond}

type fakeSpeedSetter struct {
	calls int
	err   error
}

func (f *fakeSpeedSetter) SetSpeed(ctx context.Context, speedHz int) error {
	f.calls++
	return f.err
}

func newPipeline(t *testing.T, speed bringup.SpeedSetter) (*bringup.Pipeline, *sim.Peripheral) {
	t.Helper()

	host, device := net.Pipe()
	t.Cleanup(func() { host.Close() })

	p := sim.New(sim.Config{})
	go p.Serve(device)

	b := bus.New(host, 400_000)
	if speed == nil {
		speed = b
	}

	card := sdcard.New(b.Device())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return bringup.New(card, speed, bringup.Config{
		Retry:      fastRetry,
		RunSpeedHz: 2_000_000,
		Filename:   testFilename,
	}, log), p
}

func TestRun_AllStagesSucceed(t *testing.T) {
	pipeline, p := newPipeline(t, nil)

	file, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if file == nil {
		t.Fatal("expected a file handle")
	}

	// Every stage ran exactly once; the header is the single write.
	for _, op := range []byte{sdcard.OpInit, sdcard.OpOpenVolume, sdcard.OpOpenRoot, sdcard.OpOpenFile, sdcard.OpWrite} {
		if got := p.Calls(op); got != 1 {
			t.Errorf("op 0x%02x calls = %d, want 1", op, got)
		}
	}
	if pending, _ := p.FilePending(testFilename); string(pending) != record.Header {
		t.Errorf("header = %q, want %q", pending, record.Header)
	}
	if got := p.SpeedHz(); got != 2_000_000 {
		t.Errorf("bus speed = %d, want 2000000", got)
	}
}

func TestRun_CardInitExhausted(t *testing.T) {
	speed := &fakeSpeedSetter{}
	pipeline, p := newPipeline(t, speed)
	p.FailNext(sdcard.OpInit, fastRetry.MaxAttempts)

	file, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if file != nil {
		t.Fatal("expected no file handle")
	}

	if got := p.Calls(sdcard.OpInit); got != fastRetry.MaxAttempts {
		t.Errorf("init attempts = %d, want %d", got, fastRetry.MaxAttempts)
	}
	// Downstream stages are gated on the failed one.
	for _, op := range []byte{sdcard.OpOpenVolume, sdcard.OpOpenRoot, sdcard.OpOpenFile, sdcard.OpWrite} {
		if got := p.Calls(op); got != 0 {
			t.Errorf("op 0x%02x attempted %d times after init failure", op, got)
		}
	}
	// The speed raise is unconditional and happens exactly once.
	if speed.calls != 1 {
		t.Errorf("speed raised %d times, want 1", speed.calls)
	}
}

func TestRun_VolumeExhausted_SkipsDownstream(t *testing.T) {
	pipeline, p := newPipeline(t, nil)
	p.FailNext(sdcard.OpOpenVolume, fastRetry.MaxAttempts)

	file, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if file != nil {
		t.Fatal("expected no file handle")
	}
	if got := p.Calls(sdcard.OpOpenRoot); got != 0 {
		t.Errorf("root dir attempted %d times after volume failure", got)
	}
	if got := p.Calls(sdcard.OpOpenFile); got != 0 {
		t.Errorf("file open attempted %d times after volume failure", got)
	}
}

func TestRun_HeaderWriteFails_DiscardsHandle(t *testing.T) {
	pipeline, p := newPipeline(t, nil)
	p.FailNext(sdcard.OpWrite, fastRetry.MaxAttempts)

	file, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if file != nil {
		t.Fatal("expected handle to be discarded after header failure")
	}

	// The handle was released; the empty file stays on the medium.
	if got := p.Calls(sdcard.OpClose); got != 1 {
		t.Errorf("close calls = %d, want 1", got)
	}
	pending, ok := p.FilePending(testFilename)
	if !ok {
		t.Fatal("expected the orphaned file to remain on the medium")
	}
	if len(pending) != 0 {
		t.Errorf("orphaned file has content %q", pending)
	}
}

func TestRun_SpeedChangeFatal(t *testing.T) {
	speed := &fakeSpeedSetter{err: errors.New("bus wedged")}
	pipeline, _ := newPipeline(t, speed)

	_, err := pipeline.Run(context.Background())
	if err == nil {
		t.Fatal("expected fatal error from speed reconfiguration")
	}
}
