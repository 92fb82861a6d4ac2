package asm

import (
	"bytes"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// decodeOne decodes exactly one instruction and requires it to consume
// the whole encoding.
func decodeOne(t *testing.T, code []byte) x86asm.Inst {
	t.Helper()
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		t.Fatalf("decode % x: %v", code, err)
	}
	if inst.Len != len(code) {
		t.Fatalf("decode % x: consumed %d of %d bytes", code, inst.Len, len(code))
	}
	return inst
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want string
	}{
		{"mov r8, imm64", MovRegImm64(R8, 0x1122334455667788), "MOV R8, 0x1122334455667788"},
		{"mov rax, imm64", MovRegImm64(RAX, 7), "MOV RAX, 0x7"},
		{"mov r9, r8", MovRegReg(R9, R8), "MOV R9, R8"},
		{"mov rax, rbx", MovRegReg(RAX, RBX), "MOV RAX, RBX"},
		{"mov r11, [rbx]", MovRegMem(R11, RBX, 0), "MOV R11, [RBX]"},
		{"mov rax, [r11+16]", MovRegMem(RAX, R11, 16), "MOV RAX, [R11+0x10]"},
		{"mov r8, [rax+0x100]", MovRegMem(R8, RAX, 0x100), "MOV R8, [RAX+0x100]"},
		{"mov [rbx], r11", MovMemReg(RBX, 0, R11), "MOV [RBX], R11"},
		{"mov [r11+8], rax", MovMemReg(R11, 8, RAX), "MOV [R11+0x8], RAX"},
		{"mov [rax+248], r13", MovMemReg(RAX, 248, R13), "MOV [RAX+0xf8], R13"},
		{"lea rax, [rax+256]", LeaRegMem(RAX, RAX, 256), "LEA RAX, [RAX+0x100]"},
		{"add r8, r9", AddRegReg(R8, R9), "ADD R8, R9"},
		{"sub r8, r9", SubRegReg(R8, R9), "SUB R8, R9"},
		{"cmp r8, r9", CmpRegReg(R8, R9), "CMP R8, R9"},
		{"add r8, 1", AddRegImm8(R8, 1), "ADD R8, 0x1"},
		{"sub r8, 1", SubRegImm8(R8, 1), "SUB R8, 0x1"},
		{"add r11, 32", AddRegImm8(R11, 32), "ADD R11, 0x20"},
		{"sub r11, 32", SubRegImm8(R11, 32), "SUB R11, 0x20"},
		{"test r8, -3", TestRegImm32(R8, -3), "TEST R8, -0x3"},
		{"cmovl r8, r11", CmovccRegReg(CondL, R8, R11), "CMOVL R8, R11"},
		{"push r12", PushReg(R12), "PUSH R12"},
		{"push rax", PushReg(RAX), "PUSH RAX"},
		{"pop r12", PopReg(R12), "POP R12"},
		{"call r11", CallReg(R11), "CALL R11"},
		{"ret", Ret(), "RET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := decodeOne(t, tt.code)
			if got := inst.String(); got != tt.want {
				t.Errorf("got %q, want %q (bytes % x)", got, tt.want, tt.code)
			}
		})
	}
}

// TestMemOperandEdgeCases covers the bases with irregular ModRM
// encodings: RSP/R12 need a SIB byte, RBP/R13 cannot use the
// displacement-less form. Assertions are on the decoded operand
// structure, since the text rendering of SIB operands varies across
// x86asm versions.
func TestMemOperandEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		load bool
		reg  x86asm.Reg
		base x86asm.Reg
		disp int64
	}{
		{"load rsp disp8", MovRegMem(R9, RSP, 8), true, x86asm.R9, x86asm.RSP, 8},
		{"load r12 no disp", MovRegMem(R9, R12, 0), true, x86asm.R9, x86asm.R12, 0},
		{"load r13 no disp", MovRegMem(R9, R13, 0), true, x86asm.R9, x86asm.R13, 0},
		{"load rbp no disp", MovRegMem(RAX, RBP, 0), true, x86asm.RAX, x86asm.RBP, 0},
		{"store rsp disp32", MovMemReg(RSP, 0x100, RAX), false, x86asm.RAX, x86asm.RSP, 0x100},
		{"store r12 disp8", MovMemReg(R12, -8, R10), false, x86asm.R10, x86asm.R12, -8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := decodeOne(t, tt.code)
			if inst.Op != x86asm.MOV {
				t.Fatalf("op = %v, want MOV", inst.Op)
			}
			regArg, memArg := inst.Args[0], inst.Args[1]
			if !tt.load {
				regArg, memArg = memArg, regArg
			}
			if got, ok := regArg.(x86asm.Reg); !ok || got != tt.reg {
				t.Errorf("register operand = %v, want %v", regArg, tt.reg)
			}
			mem, ok := memArg.(x86asm.Mem)
			if !ok {
				t.Fatalf("memory operand = %v (%T), want Mem", memArg, memArg)
			}
			if mem.Base != tt.base || mem.Disp != tt.disp {
				t.Errorf("mem = base %v disp %#x, want base %v disp %#x",
					mem.Base, mem.Disp, tt.base, tt.disp)
			}
		})
	}
}

func TestJumpEncodings(t *testing.T) {
	jmp := JmpRel32(0x40)
	if len(jmp) != JmpRel32Len {
		t.Fatalf("jmp length = %d, want %d", len(jmp), JmpRel32Len)
	}
	inst := decodeOne(t, jmp)
	if inst.Op != x86asm.JMP {
		t.Errorf("op = %v, want JMP", inst.Op)
	}

	jcc := JccRel32(CondZ, -0x20)
	if len(jcc) != JccRel32Len {
		t.Fatalf("jcc length = %d, want %d", len(jcc), JccRel32Len)
	}
	inst = decodeOne(t, jcc)
	if inst.Op != x86asm.JE {
		t.Errorf("op = %v, want JE", inst.Op)
	}
}

func TestBranchPair(t *testing.T) {
	const site = 0x1000
	pair := BranchPair(CondZ, site, 0x1100, 0x1040)
	if len(pair) != BranchPairLen {
		t.Fatalf("pair length = %d, want %d", len(pair), BranchPairLen)
	}

	jcc, err := x86asm.Decode(pair, 64)
	if err != nil {
		t.Fatalf("decode jcc: %v", err)
	}
	if jcc.Op != x86asm.JE {
		t.Fatalf("first op = %v, want JE", jcc.Op)
	}
	rel := jcc.Args[0].(x86asm.Rel)
	if got := site + JccRel32Len + int64(rel); got != 0x1100 {
		t.Errorf("jcc target = %#x, want 0x1100", got)
	}

	jmp, err := x86asm.Decode(pair[JccRel32Len:], 64)
	if err != nil {
		t.Fatalf("decode jmp: %v", err)
	}
	if jmp.Op != x86asm.JMP {
		t.Fatalf("second op = %v, want JMP", jmp.Op)
	}
	rel = jmp.Args[0].(x86asm.Rel)
	if got := site + BranchPairLen + int64(rel); got != 0x1040 {
		t.Errorf("jmp target = %#x, want 0x1040", got)
	}

	// Re-encoding at the same site with different targets must occupy
	// exactly the same bytes range.
	again := BranchPair(CondZ, site, 0x2000, 0x3000)
	if len(again) != len(pair) {
		t.Errorf("re-encoded pair length = %d, want %d", len(again), len(pair))
	}
	if bytes.Equal(again, pair) {
		t.Errorf("different targets encoded identically")
	}
}

func TestOperandDispatch(t *testing.T) {
	code, err := Mov(RegOp(R8), ImmOp(11))
	if err != nil {
		t.Fatalf("mov reg, imm: %v", err)
	}
	if want := MovRegImm64(R8, 11); !bytes.Equal(code, want) {
		t.Errorf("mov dispatch = % x, want % x", code, want)
	}

	code, err = Mov(MemOp(R11, 8), RegOp(RAX))
	if err != nil {
		t.Fatalf("mov mem, reg: %v", err)
	}
	if want := MovMemReg(R11, 8, RAX); !bytes.Equal(code, want) {
		t.Errorf("mov dispatch = % x, want % x", code, want)
	}

	if _, err := Mov(ImmOp(1), RegOp(RAX)); err == nil {
		t.Error("mov imm, reg: expected error")
	}
	if _, err := Add(RegOp(RAX), ImmOp(1000)); err == nil {
		t.Error("add with wide immediate: expected error")
	}
	if _, err := Sub(RegOp(RAX), ImmOp(-1000)); err == nil {
		t.Error("sub with wide immediate: expected error")
	}
}
