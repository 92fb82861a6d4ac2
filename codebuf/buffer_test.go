package codebuf

import (
	"bytes"
	"errors"
	"testing"
)

// recordingMapping wraps a heap mapping and records every protection
// change interleaved with writes.
type recordingMapping struct {
	*heapMapping
	events []string
}

func (m *recordingMapping) Protect(writable bool) error {
	if writable {
		m.events = append(m.events, "rw")
	} else {
		m.events = append(m.events, "rx")
	}
	return m.heapMapping.Protect(writable)
}

func TestAppendReturnsAddresses(t *testing.T) {
	b := NewHeap(64)
	defer b.Close()

	a1, err := b.Append([]byte{0x90, 0x90, 0x90})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if a1 != b.Base() {
		t.Errorf("first append at %#x, want base %#x", a1, b.Base())
	}
	a2, err := b.Append([]byte{0xC3})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if a2 != a1+3 {
		t.Errorf("second append at %#x, want %#x", a2, a1+3)
	}
	if b.Cursor() != a2+1 {
		t.Errorf("cursor = %#x, want %#x", b.Cursor(), a2+1)
	}
	if !b.Contains(a1) || !b.Contains(a2) {
		t.Error("written addresses not contained in buffer")
	}
	if b.Contains(b.Cursor()) {
		t.Error("cursor address reported as written")
	}
}

func TestAppendFull(t *testing.T) {
	b := NewHeap(4)
	defer b.Close()

	if _, err := b.Append([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("append at capacity: %v", err)
	}
	_, err := b.Append([]byte{5})
	if !errors.Is(err, ErrBufferFull) {
		t.Errorf("err = %v, want ErrBufferFull", err)
	}
}

func TestWriteAt(t *testing.T) {
	b := NewHeap(16)
	defer b.Close()

	addr, err := b.Append([]byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := b.WriteAt(addr+1, []byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("write at: %v", err)
	}
	got := b.mem.Bytes()[:4]
	if want := []byte{0, 0xAA, 0xBB, 0}; !bytes.Equal(got, want) {
		t.Errorf("bytes = % x, want % x", got, want)
	}

	// Patching past the written region must fail even though the
	// capacity would allow it.
	if err := b.WriteAt(addr+3, []byte{1, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	if err := b.WriteAt(b.Base()-1, []byte{1}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestInvalidAddrOutsideBuffer(t *testing.T) {
	b := NewHeap(8)
	defer b.Close()

	bad := b.InvalidAddr()
	if b.Contains(bad) {
		t.Errorf("invalid addr %#x contained in buffer", bad)
	}
	if bad < b.Base()+uintptr(b.Cap()) {
		t.Errorf("invalid addr %#x inside capacity range", bad)
	}
}

func TestWriteProtectionDiscipline(t *testing.T) {
	rec := &recordingMapping{heapMapping: newHeapMapping(32)}
	b := newBuffer(rec)

	addr, err := b.Append([]byte{0x90, 0x90})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := b.WriteAt(addr, []byte{0xC3}); err != nil {
		t.Fatalf("write at: %v", err)
	}

	want := []string{"rw", "rx", "rw", "rx"}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("events = %v, want %v", rec.events, want)
		}
	}
	if rec.writable {
		t.Error("mapping left writable after mutation")
	}
}
