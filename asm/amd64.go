package asm

import "fmt"

// Fixed encoding lengths. Branch sites are reserved and later patched
// in place, so the patched form must occupy exactly the reserved bytes.
const (
	JmpRel32Len   = 5                         // E9 rel32
	JccRel32Len   = 6                         // 0F 8x rel32
	BranchPairLen = JccRel32Len + JmpRel32Len // Jcc rel32 followed by JMP rel32
)

const rexW = 0x48

// rex builds a REX.W prefix extending the reg field (r) and the rm or
// base field (b) as needed.
func rex(r, b Reg) byte {
	p := byte(rexW)
	if r >= R8 {
		p |= 0x04
	}
	if b >= R8 {
		p |= 0x01
	}
	return p
}

func modRMReg(reg, rm Reg) byte {
	return 0xC0 | byte(reg&7)<<3 | byte(rm&7)
}

func appendImm32(b []byte, v int32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendImm64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// regMem encodes a single-opcode instruction whose ModRM pairs a
// register with a base+disp memory operand. RSP and R12 as base need a
// SIB byte; RBP and R13 as base cannot use the disp-less form.
func regMem(opcode byte, reg, base Reg, disp int32) []byte {
	b := []byte{rex(reg, base), opcode}
	rm := byte(base & 7)
	needsSIB := rm == 4  // rsp/r12
	forceDisp := rm == 5 // rbp/r13
	switch {
	case disp == 0 && !forceDisp:
		b = append(b, byte(reg&7)<<3|rm)
	case disp >= -128 && disp <= 127:
		b = append(b, 0x40|byte(reg&7)<<3|rm)
	default:
		b = append(b, 0x80|byte(reg&7)<<3|rm)
	}
	if needsSIB {
		b = append(b, 0x24)
	}
	switch {
	case disp == 0 && !forceDisp:
	case disp >= -128 && disp <= 127:
		b = append(b, byte(disp))
	default:
		b = appendImm32(b, disp)
	}
	return b
}

// MovRegImm64 encodes MOV r64, imm64.
func MovRegImm64(dst Reg, imm uint64) []byte {
	b := []byte{rex(0, dst), 0xB8 + byte(dst&7)}
	return appendImm64(b, imm)
}

// MovRegReg encodes MOV r64, r64.
func MovRegReg(dst, src Reg) []byte {
	return []byte{rex(src, dst), 0x89, modRMReg(src, dst)}
}

// MovRegMem encodes MOV r64, [base+disp].
func MovRegMem(dst, base Reg, disp int32) []byte {
	return regMem(0x8B, dst, base, disp)
}

// MovMemReg encodes MOV [base+disp], r64.
func MovMemReg(base Reg, disp int32, src Reg) []byte {
	return regMem(0x89, src, base, disp)
}

// LeaRegMem encodes LEA r64, [base+disp].
func LeaRegMem(dst, base Reg, disp int32) []byte {
	return regMem(0x8D, dst, base, disp)
}

// AddRegReg encodes ADD r64, r64.
func AddRegReg(dst, src Reg) []byte {
	return []byte{rex(src, dst), 0x01, modRMReg(src, dst)}
}

// SubRegReg encodes SUB r64, r64.
func SubRegReg(dst, src Reg) []byte {
	return []byte{rex(src, dst), 0x29, modRMReg(src, dst)}
}

// CmpRegReg encodes CMP r64, r64.
func CmpRegReg(a, b Reg) []byte {
	return []byte{rex(b, a), 0x39, modRMReg(b, a)}
}

// AddRegImm8 encodes ADD r64, imm8 (sign-extended).
func AddRegImm8(dst Reg, imm int8) []byte {
	return []byte{rex(0, dst), 0x83, 0xC0 | byte(dst&7), byte(imm)}
}

// SubRegImm8 encodes SUB r64, imm8 (sign-extended).
func SubRegImm8(dst Reg, imm int8) []byte {
	return []byte{rex(0, dst), 0x83, 0xE8 | byte(dst&7), byte(imm)}
}

// TestRegImm32 encodes TEST r64, imm32 (sign-extended).
func TestRegImm32(r Reg, imm int32) []byte {
	b := []byte{rex(0, r), 0xF7, 0xC0 | byte(r&7)}
	return appendImm32(b, imm)
}

// CmovccRegReg encodes CMOVcc r64, r64: dst receives src when the
// condition holds, else keeps its value.
func CmovccRegReg(cc Cond, dst, src Reg) []byte {
	return []byte{rex(dst, src), 0x0F, 0x40 | byte(cc), modRMReg(dst, src)}
}

// PushReg encodes PUSH r64.
func PushReg(r Reg) []byte {
	if r >= R8 {
		return []byte{0x41, 0x50 + byte(r&7)}
	}
	return []byte{0x50 + byte(r)}
}

// PopReg encodes POP r64.
func PopReg(r Reg) []byte {
	if r >= R8 {
		return []byte{0x41, 0x58 + byte(r&7)}
	}
	return []byte{0x58 + byte(r)}
}

// CallReg encodes CALL r64.
func CallReg(r Reg) []byte {
	if r >= R8 {
		return []byte{0x41, 0xFF, 0xD0 | byte(r&7)}
	}
	return []byte{0xFF, 0xD0 | byte(r)}
}

// Ret encodes RET.
func Ret() []byte {
	return []byte{0xC3}
}

// JmpRel32 encodes JMP rel32. rel is relative to the end of the
// instruction.
func JmpRel32(rel int32) []byte {
	return appendImm32([]byte{0xE9}, rel)
}

// JccRel32 encodes Jcc rel32.
func JccRel32(cc Cond, rel int32) []byte {
	return appendImm32([]byte{0x0F, 0x80 | byte(cc)}, rel)
}

// BranchPair encodes the two-way branch site placed at site: a Jcc to
// condTarget followed by an unconditional JMP to fallTarget. The result
// is always BranchPairLen bytes, so a provisional pair can be
// overwritten in place once the real targets are known.
func BranchPair(cc Cond, site, condTarget, fallTarget uintptr) []byte {
	b := JccRel32(cc, int32(int64(condTarget)-int64(site+JccRel32Len)))
	return append(b, JmpRel32(int32(int64(fallTarget)-int64(site+BranchPairLen)))...)
}

// Mov encodes a 64-bit move between operand descriptors.
func Mov(dst, src Operand) ([]byte, error) {
	switch {
	case dst.Kind == KindReg && src.Kind == KindImm:
		return MovRegImm64(dst.Reg, uint64(src.Imm)), nil
	case dst.Kind == KindReg && src.Kind == KindReg:
		return MovRegReg(dst.Reg, src.Reg), nil
	case dst.Kind == KindReg && src.Kind == KindMem:
		return MovRegMem(dst.Reg, src.Base, src.Disp), nil
	case dst.Kind == KindMem && src.Kind == KindReg:
		return MovMemReg(dst.Base, dst.Disp, src.Reg), nil
	}
	return nil, fmt.Errorf("mov: %w", ErrBadOperands)
}

// Add encodes a 64-bit add. Immediates must fit in a sign-extended
// byte.
func Add(dst, src Operand) ([]byte, error) {
	switch {
	case dst.Kind == KindReg && src.Kind == KindReg:
		return AddRegReg(dst.Reg, src.Reg), nil
	case dst.Kind == KindReg && src.Kind == KindImm:
		if src.Imm < -128 || src.Imm > 127 {
			return nil, fmt.Errorf("add: imm %d: %w", src.Imm, ErrBadOperands)
		}
		return AddRegImm8(dst.Reg, int8(src.Imm)), nil
	}
	return nil, fmt.Errorf("add: %w", ErrBadOperands)
}

// Sub encodes a 64-bit subtract. Immediates must fit in a
// sign-extended byte.
func Sub(dst, src Operand) ([]byte, error) {
	switch {
	case dst.Kind == KindReg && src.Kind == KindReg:
		return SubRegReg(dst.Reg, src.Reg), nil
	case dst.Kind == KindReg && src.Kind == KindImm:
		if src.Imm < -128 || src.Imm > 127 {
			return nil, fmt.Errorf("sub: imm %d: %w", src.Imm, ErrBadOperands)
		}
		return SubRegImm8(dst.Reg, int8(src.Imm)), nil
	}
	return nil, fmt.Errorf("sub: %w", ErrBadOperands)
}

// Cmp encodes a 64-bit register compare.
func Cmp(a, b Operand) ([]byte, error) {
	if a.Kind == KindReg && b.Kind == KindReg {
		return CmpRegReg(a.Reg, b.Reg), nil
	}
	return nil, fmt.Errorf("cmp: %w", ErrBadOperands)
}

// Test encodes TEST r64, imm32.
func Test(a, b Operand) ([]byte, error) {
	if a.Kind == KindReg && b.Kind == KindImm {
		if b.Imm < -1<<31 || b.Imm > 1<<31-1 {
			return nil, fmt.Errorf("test: imm %d: %w", b.Imm, ErrBadOperands)
		}
		return TestRegImm32(a.Reg, int32(b.Imm)), nil
	}
	return nil, fmt.Errorf("test: %w", ErrBadOperands)
}
