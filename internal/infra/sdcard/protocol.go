package sdcard

import (
	"errors"
	"fmt"
)

// Request opcodes. A request payload is the opcode followed by its
// arguments; a response payload is a status byte followed by result data.
const (
	OpInit       byte = 0x01
	OpOpenVolume byte = 0x02
	OpOpenRoot   byte = 0x03
	OpOpenFile   byte = 0x04
	OpWrite      byte = 0x05
	OpFlush      byte = 0x06
	OpClose      byte = 0x07
)

// Status codes returned by the peripheral.
const (
	StatusOK        byte = 0x00
	StatusNoCard    byte = 0x01
	StatusBadVolume byte = 0x02
	StatusNotFound  byte = 0x03
	StatusBadHandle byte = 0x04
	StatusNoSpace   byte = 0x05
	StatusIO        byte = 0x06
	StatusBadName   byte = 0x07
)

// Mode selects how a file is opened.
type Mode byte

// ModeCreateOrAppend opens a file read-write, creating it if absent and
// positioning writes at the end. Re-opening after a failed attempt is safe.
const ModeCreateOrAppend Mode = 0x01

var (
	ErrNoCard      = errors.New("sdcard: no card present")
	ErrBadVolume   = errors.New("sdcard: no such volume")
	ErrNotFound    = errors.New("sdcard: not found")
	ErrBadHandle   = errors.New("sdcard: stale or invalid handle")
	ErrNoSpace     = errors.New("sdcard: card full")
	ErrIO          = errors.New("sdcard: i/o error")
	ErrBadName     = errors.New("sdcard: invalid filename")
	ErrBadResponse = errors.New("sdcard: malformed response")
)

func statusErr(code byte) error {
	switch code {
	case StatusNoCard:
		return ErrNoCard
	case StatusBadVolume:
		return ErrBadVolume
	case StatusNotFound:
		return ErrNotFound
	case StatusBadHandle:
		return ErrBadHandle
	case StatusNoSpace:
		return ErrNoSpace
	case StatusIO:
		return ErrIO
	case StatusBadName:
		return ErrBadName
	default:
		return fmt.Errorf("sdcard: unknown status 0x%02x", code)
	}
}
