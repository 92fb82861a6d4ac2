//go:build unix

package codebuf

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// execMapping is an anonymous private mapping toggled between RW and
// RX. It is never writable and executable at the same time.
type execMapping struct {
	data []byte
}

func newExecMapping(size int) (mapping, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	if err := unix.Mprotect(data, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(data)
		return nil, err
	}
	return &execMapping{data: data}, nil
}

func (m *execMapping) Bytes() []byte {
	return m.data
}

func (m *execMapping) Base() uintptr {
	return uintptr(unsafe.Pointer(&m.data[0]))
}

func (m *execMapping) Protect(writable bool) error {
	prot := unix.PROT_READ | unix.PROT_EXEC
	if writable {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}
	return unix.Mprotect(m.data, prot)
}

func (m *execMapping) Close() error {
	return unix.Munmap(m.data)
}
