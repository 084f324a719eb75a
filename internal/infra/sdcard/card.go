// Package sdcard is the protocol client for the block-storage peripheral.
// It speaks a small command protocol over a shared serial bus; the
// peripheral exposes a filesystem of volumes, directories and files through
// opaque u16 handles.
package sdcard

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/vietddude/datalogger/internal/infra/bus"
)

// Card is a single storage peripheral on the bus.
type Card struct {
	dev *bus.Device
}

// New creates a card client using the given device accessor.
func New(dev *bus.Device) *Card {
	return &Card{dev: dev}
}

func (c *Card) exchange(ctx context.Context, req []byte) ([]byte, error) {
	resp, err := c.dev.RoundTrip(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("peripheral exchange: %w", err)
	}
	if len(resp) == 0 {
		return nil, ErrBadResponse
	}
	if resp[0] != StatusOK {
		return nil, statusErr(resp[0])
	}
	return resp[1:], nil
}

// Init initializes the card and returns its capacity in bytes. The
// capacity query doubles as a liveness probe.
func (c *Card) Init(ctx context.Context) (uint64, error) {
	data, err := c.exchange(ctx, []byte{OpInit})
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, ErrBadResponse
	}
	return binary.BigEndian.Uint64(data), nil
}

// OpenVolume opens the logical volume at the given index.
func (c *Card) OpenVolume(ctx context.Context, index int) (*Volume, error) {
	data, err := c.exchange(ctx, []byte{OpOpenVolume, byte(index)})
	if err != nil {
		return nil, err
	}
	h, err := parseHandle(data)
	if err != nil {
		return nil, err
	}
	return &Volume{card: c, handle: h}, nil
}

// Volume is an open logical volume on the card.
type Volume struct {
	card   *Card
	handle uint16
}

// OpenRootDir opens the volume's root directory.
func (v *Volume) OpenRootDir(ctx context.Context) (*Dir, error) {
	req := make([]byte, 3)
	req[0] = OpOpenRoot
	binary.BigEndian.PutUint16(req[1:], v.handle)

	data, err := v.card.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	h, err := parseHandle(data)
	if err != nil {
		return nil, err
	}
	return &Dir{card: v.card, handle: h}, nil
}

// Dir is an open directory on the card.
type Dir struct {
	card   *Card
	handle uint16
}

// OpenFile opens the named file inside the directory.
func (d *Dir) OpenFile(ctx context.Context, name string, mode Mode) (*File, error) {
	if len(name) == 0 || len(name) > 255 {
		return nil, ErrBadName
	}

	req := make([]byte, 0, 5+len(name))
	req = append(req, OpOpenFile)
	req = binary.BigEndian.AppendUint16(req, d.handle)
	req = append(req, byte(mode), byte(len(name)))
	req = append(req, name...)

	data, err := d.card.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	h, err := parseHandle(data)
	if err != nil {
		return nil, err
	}
	return &File{card: d.card, handle: h}, nil
}

// File is an open file on the card. Writes land in the peripheral's buffer
// until Flush forces them to durable storage.
type File struct {
	card   *Card
	handle uint16
}

// Write appends p to the file and returns the number of bytes accepted.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	req := make([]byte, 0, 3+len(p))
	req = append(req, OpWrite)
	req = binary.BigEndian.AppendUint16(req, f.handle)
	req = append(req, p...)

	data, err := f.card.exchange(ctx, req)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, ErrBadResponse
	}
	return int(binary.BigEndian.Uint32(data)), nil
}

// Flush forces buffered writes to durable storage.
func (f *File) Flush(ctx context.Context) error {
	req := make([]byte, 3)
	req[0] = OpFlush
	binary.BigEndian.PutUint16(req[1:], f.handle)

	_, err := f.card.exchange(ctx, req)
	return err
}

// Close releases the file handle on the peripheral. The file itself stays
// on the medium.
func (f *File) Close(ctx context.Context) error {
	req := make([]byte, 3)
	req[0] = OpClose
	binary.BigEndian.PutUint16(req[1:], f.handle)

	_, err := f.card.exchange(ctx, req)
	return err
}

func parseHandle(data []byte) (uint16, error) {
	if len(data) != 2 {
		return 0, ErrBadResponse
	}
	return binary.BigEndian.Uint16(data), nil
}
