// Package codebuf manages the executable memory that generated code is
// written into.
//
// A Buffer owns one fixed-capacity mapping and hands out addresses
// inside it. The mapping is executable except during writes: every
// append and every patch flips it writable, mutates it, and flips it
// back before returning.
package codebuf

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"
	"golang.org/x/arch/x86/x86asm"
)

var log = commonlog.GetLogger("forge.codebuf")

var (
	// ErrBufferFull reports an append that does not fit in the
	// remaining capacity.
	ErrBufferFull = errors.New("codebuf: buffer full")
	// ErrOutOfRange reports a patch outside the already-written
	// region.
	ErrOutOfRange = errors.New("codebuf: patch outside written region")
)

// mapping is the memory a Buffer writes into. Protect toggles it
// between writable and executable.
type mapping interface {
	Bytes() []byte
	Base() uintptr
	Protect(writable bool) error
	Close() error
}

// Buffer is an append-only executable code region.
type Buffer struct {
	mem    mapping
	cursor int
	trace  bool
}

// New maps an executable buffer of the given capacity.
func New(capacity int) (*Buffer, error) {
	mem, err := newExecMapping(capacity)
	if err != nil {
		return nil, fmt.Errorf("codebuf: %w", err)
	}
	return &Buffer{mem: mem}, nil
}

// NewHeap returns a heap-backed buffer. Code written to it can be
// inspected but not executed.
func NewHeap(capacity int) *Buffer {
	return &Buffer{mem: newHeapMapping(capacity)}
}

func newBuffer(mem mapping) *Buffer {
	return &Buffer{mem: mem}
}

// SetTrace enables per-instruction logging of appended code.
func (b *Buffer) SetTrace(on bool) {
	b.trace = on
}

// Base returns the address of the first byte of the buffer.
func (b *Buffer) Base() uintptr {
	return b.mem.Base()
}

// Cap returns the buffer capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.mem.Bytes())
}

// Cursor returns the address the next append will be placed at.
func (b *Buffer) Cursor() uintptr {
	return b.mem.Base() + uintptr(b.cursor)
}

// InvalidAddr returns an address guaranteed to lie outside the buffer.
// It marks targets that have no generated code yet.
func (b *Buffer) InvalidAddr() uintptr {
	return b.mem.Base() + uintptr(b.Cap())
}

// Contains reports whether addr falls inside the written region.
func (b *Buffer) Contains(addr uintptr) bool {
	return addr >= b.mem.Base() && addr < b.mem.Base()+uintptr(b.cursor)
}

// Code returns a copy of the written region.
func (b *Buffer) Code() []byte {
	out := make([]byte, b.cursor)
	copy(out, b.mem.Bytes())
	return out
}

// Append copies code to the end of the buffer and returns the address
// it was placed at. The mapping is writable only for the duration of
// the copy.
func (b *Buffer) Append(code []byte) (uintptr, error) {
	if b.cursor+len(code) > b.Cap() {
		return 0, fmt.Errorf("%w: %d bytes requested, %d free",
			ErrBufferFull, len(code), b.Cap()-b.cursor)
	}
	addr := b.Cursor()
	if err := b.mem.Protect(true); err != nil {
		return 0, err
	}
	copy(b.mem.Bytes()[b.cursor:], code)
	if err := b.mem.Protect(false); err != nil {
		return 0, err
	}
	b.cursor += len(code)
	if b.trace {
		b.traceCode(addr, code)
	}
	return addr, nil
}

// WriteAt overwrites bytes at an address inside the written region.
// It cannot extend the buffer; reserve space with Append first.
func (b *Buffer) WriteAt(addr uintptr, code []byte) error {
	off := int(addr - b.mem.Base())
	if addr < b.mem.Base() || off+len(code) > b.cursor {
		return fmt.Errorf("%w: %#x+%d", ErrOutOfRange, addr, len(code))
	}
	if err := b.mem.Protect(true); err != nil {
		return err
	}
	copy(b.mem.Bytes()[off:], code)
	if err := b.mem.Protect(false); err != nil {
		return err
	}
	if b.trace {
		b.traceCode(addr, code)
	}
	return nil
}

// Close releases the mapping. The buffer must not be used afterwards.
func (b *Buffer) Close() error {
	return b.mem.Close()
}

func (b *Buffer) traceCode(addr uintptr, code []byte) {
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 64)
		if err != nil {
			log.Debugf("%#x: ?? % x", addr, code)
			return
		}
		log.Debugf("%#x: %s", addr, inst)
		addr += uintptr(inst.Len)
		code = code[inst.Len:]
	}
}
