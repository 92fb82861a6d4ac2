// Package asm encodes mnemonic-level amd64 operations to machine code.
//
// Each encoder returns the encoded byte sequence; callers append it to a
// code buffer and advance by its length. Operands are descriptors:
// register, memory with displacement, or immediate.
package asm

import "errors"

// ErrBadOperands reports an operand combination the encoder cannot
// represent.
var ErrBadOperands = errors.New("asm: unencodable operand combination")

// Reg is an amd64 general-purpose register, numbered with its hardware
// encoding value.
type Reg uint8

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

var regNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "r?"
}

// Cond is an amd64 condition code, usable with Jcc and CMOVcc.
type Cond uint8

const (
	CondE  Cond = 0x4 // equal / zero
	CondNE Cond = 0x5 // not equal / not zero
	CondL  Cond = 0xC // signed less
	CondGE Cond = 0xD // signed greater-or-equal
	CondLE Cond = 0xE // signed less-or-equal
	CondG  Cond = 0xF // signed greater
)

// CondZ is the zero-flag alias of CondE, used after TEST.
const CondZ = CondE

// OperandKind discriminates operand descriptors.
type OperandKind uint8

const (
	KindReg OperandKind = iota + 1
	KindMem
	KindImm
)

// Operand describes one instruction operand: a register, a memory
// location addressed as base register plus displacement, or an
// immediate.
type Operand struct {
	Kind OperandKind
	Reg  Reg   // KindReg
	Base Reg   // KindMem
	Disp int32 // KindMem
	Imm  int64 // KindImm
}

// RegOp returns a register operand.
func RegOp(r Reg) Operand {
	return Operand{Kind: KindReg, Reg: r}
}

// MemOp returns a memory operand: [base + disp].
func MemOp(base Reg, disp int32) Operand {
	return Operand{Kind: KindMem, Base: base, Disp: disp}
}

// ImmOp returns an immediate operand.
func ImmOp(v int64) Operand {
	return Operand{Kind: KindImm, Imm: v}
}
