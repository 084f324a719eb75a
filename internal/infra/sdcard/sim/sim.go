// Package sim is an in-memory storage peripheral that services the sdcard
// wire protocol. It backs the datalogger when no serial port is configured
// and doubles as the end-to-end test double.
package sim

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"github.com/vietddude/datalogger/internal/infra/bus"
	"github.com/vietddude/datalogger/internal/infra/sdcard"
)

const maxFilenameLen = 12 // 8.3 names

// Config holds simulated peripheral settings.
type Config struct {
	CapacityBytes uint64
	Volumes       int
}

type handleKind byte

const (
	kindVolume handleKind = iota
	kindDir
	kindFile
)

type object struct {
	kind handleKind
	file *memFile
}

type memFile struct {
	durable []byte
	pending []byte
	flushes int
}

// Peripheral simulates one storage card. All state is guarded by mu; a
// single Serve loop and any number of inspection calls may run
// concurrently.
type Peripheral struct {
	mu         sync.Mutex
	cfg        Config
	speedHz    int
	nextHandle uint16
	objects    map[uint16]*object
	files      map[string]*memFile
	calls      map[byte]int
	failures   map[byte]int
}

// New creates a simulated peripheral.
func New(cfg Config) *Peripheral {
	if cfg.CapacityBytes == 0 {
		cfg.CapacityBytes = 4 << 30
	}
	if cfg.Volumes == 0 {
		cfg.Volumes = 1
	}
	return &Peripheral{
		cfg:      cfg,
		objects:  make(map[uint16]*object),
		files:    make(map[string]*memFile),
		calls:    make(map[byte]int),
		failures: make(map[byte]int),
	}
}

// Serve handles protocol frames on rw until the peer closes the stream.
func (p *Peripheral) Serve(rw io.ReadWriter) error {
	for {
		kind, payload, err := bus.ReadFrame(rw)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		var resp []byte
		switch kind {
		case bus.FrameControl:
			resp = p.handleControl(payload)
		case bus.FrameData:
			resp = p.handleRequest(payload)
		default:
			resp = []byte{sdcard.StatusIO}
		}

		if err := bus.WriteFrame(rw, kind, resp); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

func (p *Peripheral) handleControl(payload []byte) []byte {
	if len(payload) != 4 {
		return []byte{sdcard.StatusIO}
	}
	p.mu.Lock()
	p.speedHz = int(binary.BigEndian.Uint32(payload))
	p.mu.Unlock()
	return []byte{sdcard.StatusOK}
}

func (p *Peripheral) handleRequest(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte{sdcard.StatusIO}
	}
	op := payload[0]
	args := payload[1:]

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls[op]++
	if p.failures[op] > 0 {
		p.failures[op]--
		return []byte{sdcard.StatusIO}
	}

	switch op {
	case sdcard.OpInit:
		resp := make([]byte, 9)
		resp[0] = sdcard.StatusOK
		binary.BigEndian.PutUint64(resp[1:], p.cfg.CapacityBytes)
		return resp

	case sdcard.OpOpenVolume:
		if len(args) != 1 {
			return []byte{sdcard.StatusIO}
		}
		if int(args[0]) >= p.cfg.Volumes {
			return []byte{sdcard.StatusBadVolume}
		}
		return p.allocHandle(&object{kind: kindVolume})

	case sdcard.OpOpenRoot:
		if _, ok := p.lookup(args, kindVolume); !ok {
			return []byte{sdcard.StatusBadHandle}
		}
		return p.allocHandle(&object{kind: kindDir})

	case sdcard.OpOpenFile:
		if len(args) < 4 {
			return []byte{sdcard.StatusIO}
		}
		if _, ok := p.lookup(args[:2], kindDir); !ok {
			return []byte{sdcard.StatusBadHandle}
		}
		nameLen := int(args[3])
		name := string(args[4:])
		if len(name) != nameLen || nameLen == 0 || nameLen > maxFilenameLen {
			return []byte{sdcard.StatusBadName}
		}
		if sdcard.Mode(args[2]) != sdcard.ModeCreateOrAppend {
			return []byte{sdcard.StatusIO}
		}
		f, ok := p.files[name]
		if !ok {
			f = &memFile{}
			p.files[name] = f
		}
		return p.allocHandle(&object{kind: kindFile, file: f})

	case sdcard.OpWrite:
		if len(args) < 2 {
			return []byte{sdcard.StatusIO}
		}
		obj, ok := p.lookup(args[:2], kindFile)
		if !ok {
			return []byte{sdcard.StatusBadHandle}
		}
		data := args[2:]
		if p.used()+uint64(len(data)) > p.cfg.CapacityBytes {
			return []byte{sdcard.StatusNoSpace}
		}
		obj.file.pending = append(obj.file.pending, data...)
		resp := make([]byte, 5)
		resp[0] = sdcard.StatusOK
		binary.BigEndian.PutUint32(resp[1:], uint32(len(data)))
		return resp

	case sdcard.OpFlush:
		obj, ok := p.lookup(args, kindFile)
		if !ok {
			return []byte{sdcard.StatusBadHandle}
		}
		obj.file.durable = append(obj.file.durable, obj.file.pending...)
		obj.file.pending = nil
		obj.file.flushes++
		return []byte{sdcard.StatusOK}

	case sdcard.OpClose:
		if len(args) != 2 {
			return []byte{sdcard.StatusIO}
		}
		h := binary.BigEndian.Uint16(args)
		if _, ok := p.objects[h]; !ok {
			return []byte{sdcard.StatusBadHandle}
		}
		delete(p.objects, h)
		return []byte{sdcard.StatusOK}

	default:
		return []byte{sdcard.StatusIO}
	}
}

func (p *Peripheral) allocHandle(obj *object) []byte {
	p.nextHandle++
	p.objects[p.nextHandle] = obj

	resp := make([]byte, 3)
	resp[0] = sdcard.StatusOK
	binary.BigEndian.PutUint16(resp[1:], p.nextHandle)
	return resp
}

func (p *Peripheral) lookup(arg []byte, kind handleKind) (*object, bool) {
	if len(arg) != 2 {
		return nil, false
	}
	obj, ok := p.objects[binary.BigEndian.Uint16(arg)]
	if !ok || obj.kind != kind {
		return nil, false
	}
	return obj, true
}

func (p *Peripheral) used() uint64 {
	var n uint64
	for _, f := range p.files {
		n += uint64(len(f.durable) + len(f.pending))
	}
	return n
}

// FailNext makes the next n requests with the given opcode fail with an
// i/o status.
func (p *Peripheral) FailNext(op byte, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] += n
}

// Calls returns how many requests with the given opcode have been serviced,
// including injected failures.
func (p *Peripheral) Calls(op byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Files lists the names of files present on the medium.
func (p *Peripheral) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	return names
}

// FileDurable returns the flushed contents of the named file.
func (p *Peripheral) FileDurable(name string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.durable...), true
}

// FilePending returns the buffered, not yet durable contents of the named
// file.
func (p *Peripheral) FilePending(name string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), f.pending...), true
}

// Flushes returns how many flushes the named file has seen.
func (p *Peripheral) Flushes(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.files[name]
	if !ok {
		return 0
	}
	return f.flushes
}

// SpeedHz returns the bus speed last applied by a control frame.
func (p *Peripheral) SpeedHz() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speedHz
}
