package codebuf

import "unsafe"

// heapMapping backs a Buffer with ordinary memory. Protect only tracks
// the requested state; the bytes are never executable.
type heapMapping struct {
	data     []byte
	writable bool
}

func newHeapMapping(size int) *heapMapping {
	return &heapMapping{data: make([]byte, size)}
}

func (m *heapMapping) Bytes() []byte {
	return m.data
}

func (m *heapMapping) Base() uintptr {
	return uintptr(unsafe.Pointer(&m.data[0]))
}

func (m *heapMapping) Protect(writable bool) error {
	m.writable = writable
	return nil
}

func (m *heapMapping) Close() error {
	m.data = nil
	return nil
}
