// Package bus provides a mutex-guarded shared serial bus. Devices on the
// bus perform framed request/response exchanges through device-scoped
// accessors; the lock guarantees no two exchanges interleave their byte
// transfers.
package bus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// SharedBus owns the underlying byte stream and serializes all access to
// it. Additional devices can share the bus by each holding their own
// Device accessor.
type SharedBus struct {
	mu    sync.Mutex
	rw    io.ReadWriter
	speed int // hz
}

// New wraps rw as a shared bus running at the given initial speed.
func New(rw io.ReadWriter, speedHz int) *SharedBus {
	return &SharedBus{rw: rw, speed: speedHz}
}

// Speed returns the current bus speed in hz.
func (b *SharedBus) Speed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// SetSpeed reconfigures the bus operating speed. The exchange with the
// peripheral happens under the bus lock, so no device transfer can overlap
// the change.
func (b *SharedBus) SetSpeed(ctx context.Context, speedHz int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(speedHz))

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := WriteFrame(b.rw, FrameControl, payload[:]); err != nil {
		return fmt.Errorf("send speed change: %w", err)
	}
	kind, resp, err := ReadFrame(b.rw)
	if err != nil {
		return fmt.Errorf("read speed change ack: %w", err)
	}
	if kind != FrameControl || len(resp) != 1 {
		return ErrBadFrame
	}
	if resp[0] != 0 {
		return fmt.Errorf("peripheral rejected speed %d hz (status 0x%02x)", speedHz, resp[0])
	}

	b.speed = speedHz
	return nil
}

// Device returns a device-scoped accessor for the bus.
func (b *SharedBus) Device() *Device {
	return &Device{bus: b}
}

// Device performs framed exchanges for a single logical device on the bus.
type Device struct {
	bus *SharedBus
}

// RoundTrip sends one data frame and reads the matching response frame.
// The whole exchange holds the bus lock.
func (d *Device) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()

	if err := WriteFrame(d.bus.rw, FrameData, payload); err != nil {
		return nil, err
	}
	kind, resp, err := ReadFrame(d.bus.rw)
	if err != nil {
		return nil, err
	}
	if kind != FrameData {
		return nil, ErrBadFrame
	}
	return resp, nil
}
