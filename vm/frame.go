package vm

import (
	"fmt"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Native frame layout
// ---------------------------------------------------------------------------

// Native frame field offsets, in bytes from the frame address. Generated
// code addresses frames with these displacements, so they are fixed for
// the lifetime of the encoding.
const (
	FrameSelfOffset  = 0  // receiver of the activation
	FrameEnvOffset   = 8  // environment pointer: base of argument/local slots
	FrameStackOffset = 16 // stack pointer: base of the outgoing argument area
	FrameSize        = 32 // fixed native frame header size
)

// ContextFrameOffset is the byte offset of the current-frame field within
// a Context. Generated code keeps a Context pointer in a dedicated
// register and reaches the active frame through this field.
const ContextFrameOffset = 0

// FrameSlotWindow is the number of value slots each activation may
// address through its environment pointer: arguments, locals, and the
// outgoing argument area of its deepest send.
const FrameSlotWindow = 32

// ---------------------------------------------------------------------------
// Context: the execution state shared with generated code
// ---------------------------------------------------------------------------

// Context is the execution context native code runs against. Frame
// headers grow downward through the frames region as calls nest; each
// frame's environment and outgoing-argument pointers advance upward
// through the slots region.
//
// CurrentFrame must remain the first field: generated code loads and
// stores it at ContextFrameOffset. It always points into the frames
// region, so holding it as a pointer keeps the region reachable.
type Context struct {
	CurrentFrame unsafe.Pointer

	frames []uint64 // frame header region, grows down from the top
	slots  []uint64 // value slot region, grows up from the bottom
}

// NewContext allocates an execution context able to nest depth calls.
func NewContext(depth int) *Context {
	if depth < 1 {
		depth = 1
	}
	frameWords := depth * (FrameSize / 8)
	return &Context{
		frames: make([]uint64, frameWords),
		slots:  make([]uint64, depth*FrameSlotWindow),
	}
}

// EnterMethod installs the initial frame for invoking m natively:
// receiver set, arguments copied into the environment slots, outgoing
// area placed past the frame's slot window. The interpreter performs the
// same setup in Go when it activates a method.
func (c *Context) EnterMethod(m *Method, self Value, args []Value) error {
	if len(args) != m.Arity {
		return fmt.Errorf("method %s: got %d args, want %d", m.Name(), len(args), m.Arity)
	}
	frame := unsafe.Add(unsafe.Pointer(&c.frames[0]), len(c.frames)*8-FrameSize)
	env := unsafe.Pointer(&c.slots[0])

	for i, a := range args {
		c.slots[i] = uint64(a)
	}
	writeField(frame, FrameSelfOffset, uint64(self))
	writeField(frame, FrameEnvOffset, uint64(uintptr(env)))
	writeField(frame, FrameStackOffset, uint64(uintptr(env))+FrameSlotWindow*8)
	c.CurrentFrame = frame
	return nil
}

// FrameSelf reads the receiver of the current frame.
func (c *Context) FrameSelf() Value {
	return Value(readField(c.CurrentFrame, FrameSelfOffset))
}

func writeField(frame unsafe.Pointer, offset int, v uint64) {
	*(*uint64)(unsafe.Add(frame, offset)) = v
}

func readField(frame unsafe.Pointer, offset int) uint64 {
	return *(*uint64)(unsafe.Add(frame, offset))
}
