package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame kinds carried on the wire. Data frames belong to whatever device
// protocol runs on top of the bus; control frames are bus-level.
const (
	FrameData    byte = 0x01
	FrameControl byte = 0x02
)

// MaxFrameSize bounds a single frame payload. The peripheral side enforces
// the same limit.
const MaxFrameSize = 4096

const headerSize = 5 // kind (1) + payload length (4)

var (
	ErrFrameTooLarge = errors.New("bus: frame payload too large")
	ErrBadFrame      = errors.New("bus: malformed frame")
)

// WriteFrame writes one framed payload: a kind byte, a big-endian u32
// payload length, then the payload itself.
func WriteFrame(w io.Writer, kind byte, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [headerSize]byte
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one framed payload written by WriteFrame.
func ReadFrame(r io.Reader) (kind byte, payload []byte, err error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	size := binary.BigEndian.Uint32(header[1:])
	if size > MaxFrameSize {
		return 0, nil, ErrBadFrame
	}

	payload = make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return header[0], payload, nil
}
