package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack operations
const (
	OpNop Opcode = 0x00 // no operation
)

// Push constants
const (
	OpPushNil      Opcode = 0x10 // push nil
	OpPushTrue     Opcode = 0x11 // push true
	OpPushFalse    Opcode = 0x12 // push false
	OpPushSmallInt Opcode = 0x13 // push 8-bit signed integer, tagged
	OpPushLiteral  Opcode = 0x14 // push literal from literal frame (16-bit index)
)

// Variable operations
const (
	OpPushSelf  Opcode = 0x20 // push the frame's receiver
	OpPushLocal Opcode = 0x21 // push local slot from the frame environment (8-bit index)
)

// Arithmetic and comparison (tagged-integer fast path)
const (
	OpAdd      Opcode = 0x30 // pop two, push tagged sum
	OpSub      Opcode = 0x31 // pop two, push tagged difference
	OpLessThan Opcode = 0x40 // pop two, push true/false
)

// Control flow
const (
	OpBranchUnless Opcode = 0x60 // pop, branch if falsy (16-bit absolute index)
)

// Message sends
const (
	OpSend Opcode = 0x70 // send message (16-bit call-site index)
)

// Returns
const (
	OpReturn Opcode = 0x80 // pop the frame, return top of stack
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (VariableEffect = depends on call site)
}

// VariableEffect marks opcodes whose stack effect depends on the
// call site's declared argument count.
const VariableEffect = -128

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", 0, 0},

	OpPushNil:      {"PUSH_NIL", 0, 1},
	OpPushTrue:     {"PUSH_TRUE", 0, 1},
	OpPushFalse:    {"PUSH_FALSE", 0, 1},
	OpPushSmallInt: {"PUSH_SMALLINT", 1, 1},
	OpPushLiteral:  {"PUSH_LITERAL", 2, 1},

	OpPushSelf:  {"PUSH_SELF", 0, 1},
	OpPushLocal: {"PUSH_LOCAL", 1, 1},

	OpAdd:      {"ADD", 0, -1},
	OpSub:      {"SUB", 0, -1},
	OpLessThan: {"LESS_THAN", 0, -1},

	OpBranchUnless: {"BRANCH_UNLESS", 2, -1},

	OpSend: {"SEND", 2, VariableEffect}, // pops argc, receiver slot becomes result

	OpReturn: {"RETURN", 0, -1},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsBranch returns true if this opcode transfers control conditionally.
func (op Opcode) IsBranch() bool {
	return op == OpBranchUnless
}

// IsReturn returns true if this opcode terminates the method.
func (op Opcode) IsReturn() bool {
	return op == OpReturn
}

// IsSend returns true if this opcode is a message send.
func (op Opcode) IsSend() bool {
	return op == OpSend
}

// ---------------------------------------------------------------------------
// Instruction decoding
// ---------------------------------------------------------------------------

// ErrBadOpcode reports a stream index that does not resolve to known
// instruction metadata.
var ErrBadOpcode = errors.New("unknown opcode")

// ErrTruncated reports an instruction whose operands run past the end
// of the stream.
var ErrTruncated = errors.New("truncated instruction")

// Instruction is a single decoded bytecode instruction. It is derived on
// demand from the raw stream and never stored back.
type Instruction struct {
	Op      Opcode
	Operand int // decoded inline operand, 0 if the opcode has none
	Index   int // stream index of the opcode byte
	Len     int // total length in stream bytes (opcode + operands)
}

// DecodeAt decodes the instruction starting at index idx of code.
func DecodeAt(code []byte, idx int) (Instruction, error) {
	if idx < 0 || idx >= len(code) {
		return Instruction{}, fmt.Errorf("decode at %d: %w", idx, ErrTruncated)
	}
	op := Opcode(code[idx])
	info, ok := opcodeTable[op]
	if !ok {
		return Instruction{}, fmt.Errorf("decode at %d: %w (0x%02X)", idx, ErrBadOpcode, byte(op))
	}
	inst := Instruction{Op: op, Index: idx, Len: 1 + info.OperandBytes}
	if idx+inst.Len > len(code) {
		return Instruction{}, fmt.Errorf("decode %s at %d: %w", op, idx, ErrTruncated)
	}
	switch info.OperandBytes {
	case 1:
		if op == OpPushSmallInt {
			inst.Operand = int(int8(code[idx+1]))
		} else {
			inst.Operand = int(code[idx+1])
		}
	case 2:
		inst.Operand = int(binary.LittleEndian.Uint16(code[idx+1:]))
	}
	return inst, nil
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitInt8 appends an opcode with a signed 8-bit operand.
func (b *BytecodeBuilder) EmitInt8(op Opcode, operand int8) {
	b.bytes = append(b.bytes, byte(op), byte(operand))
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// EmitBranchUnless appends a BRANCH_UNLESS with a known absolute target.
func (b *BytecodeBuilder) EmitBranchUnless(target int) {
	b.EmitUint16(OpBranchUnless, uint16(target))
}

// ReserveBranch appends a BRANCH_UNLESS with a placeholder target and
// returns the position of the operand for later patching.
func (b *BytecodeBuilder) ReserveBranch() int {
	b.bytes = append(b.bytes, byte(OpBranchUnless))
	at := len(b.bytes)
	b.bytes = append(b.bytes, 0, 0)
	return at
}

// PatchBranch fills a previously reserved branch operand with the
// current position (the usual forward-branch case).
func (b *BytecodeBuilder) PatchBranch(at int) {
	target := len(b.bytes)
	b.bytes[at] = byte(target)
	b.bytes[at+1] = byte(target >> 8)
}
