package jit

import (
	"errors"
	"fmt"

	"github.com/chazu/forge/asm"
	"github.com/chazu/forge/vm"
)

// Operand stack registers, in push order. A value at virtual depth i
// lives in stackRegs[i]. RAX and R11 are scratch, RBX holds the
// execution context, and R14/R15 are left to the Go runtime.
var stackRegs = [...]asm.Reg{asm.R8, asm.R9, asm.R10, asm.R12, asm.R13}

const (
	ctxReg     = asm.RBX
	scratchReg = asm.R11
	resultReg  = asm.RAX
)

// falsyTest is the TEST immediate that clears ZF exactly for truthy
// values: the complement of the bit distinguishing the two falsy
// encodings.
const falsyTest = ^int32(vm.Nil ^ vm.False)

var (
	// ErrUnsupported reports an instruction with no lowering rule.
	ErrUnsupported = errors.New("jit: unsupported instruction")
	// ErrStackOverflow reports bytecode whose operand stack depth
	// exceeds the register file backing it.
	ErrStackOverflow = errors.New("jit: operand stack exceeds register file")
)

// gen lowers one method's blocks. It owns the running branch list and
// the block-by-start lookup shared with the finishing pass.
type gen struct {
	c        *Compiler
	m        *vm.Method
	byStart  map[int]*Block
	branches []Branch
}

// reg returns the register holding virtual stack slot i.
func (g *gen) reg(i int) (asm.Reg, error) {
	if i < 0 {
		return 0, ErrStackUnderflow
	}
	if i >= len(stackRegs) {
		return 0, fmt.Errorf("%w: depth %d, %d registers", ErrStackOverflow, i+1, len(stackRegs))
	}
	return stackRegs[i], nil
}

func (g *gen) emit(code []byte) error {
	_, err := g.c.buf.Append(code)
	return err
}

func (g *gen) emitOp(code []byte, err error) error {
	if err != nil {
		return err
	}
	return g.emit(code)
}

// genBlock lowers every instruction in blk's range and records the
// block's native address.
func (g *gen) genBlock(blk *Block) error {
	blk.Addr = g.c.buf.Cursor()
	depth := blk.Depth

	for idx := blk.Start; idx <= blk.End; {
		inst, err := vm.DecodeAt(g.m.Bytecode, idx)
		if err != nil {
			return err
		}
		depth, err = g.genInstruction(inst, depth)
		if err != nil {
			return fmt.Errorf("%s at %d: %w", inst.Op, idx, err)
		}
		idx += inst.Len
	}
	return nil
}

// genInstruction emits native code for one instruction at virtual stack
// depth s and returns the depth after it.
func (g *gen) genInstruction(inst vm.Instruction, s int) (int, error) {
	switch inst.Op {
	case vm.OpNop:
		return s, nil

	case vm.OpPushNil:
		return s + 1, g.genPushImm(s, vm.Nil)
	case vm.OpPushTrue:
		return s + 1, g.genPushImm(s, vm.True)
	case vm.OpPushFalse:
		return s + 1, g.genPushImm(s, vm.False)
	case vm.OpPushSmallInt:
		return s + 1, g.genPushImm(s, vm.FromSmallInt(int64(inst.Operand)))
	case vm.OpPushLiteral:
		lit, err := g.m.Literal(inst.Operand)
		if err != nil {
			return s, err
		}
		return s + 1, g.genPushImm(s, lit)

	case vm.OpPushSelf:
		return s + 1, g.genPushFrameField(s, vm.FrameSelfOffset)
	case vm.OpPushLocal:
		return s + 1, g.genPushLocal(s, inst.Operand)

	case vm.OpAdd:
		return s - 1, g.genArith(s, true)
	case vm.OpSub:
		return s - 1, g.genArith(s, false)
	case vm.OpLessThan:
		return s - 1, g.genLessThan(s)

	case vm.OpBranchUnless:
		return s - 1, g.genBranchUnless(inst, s)

	case vm.OpSend:
		return g.genSend(inst, s)

	case vm.OpReturn:
		return s - 1, g.genReturn(s)
	}
	return s, fmt.Errorf("%w: %s", ErrUnsupported, inst.Op)
}

// genPushImm loads a tagged value into the next stack register.
func (g *gen) genPushImm(s int, v vm.Value) error {
	dst, err := g.reg(s)
	if err != nil {
		return err
	}
	return g.emitOp(asm.Mov(asm.RegOp(dst), asm.ImmOp(int64(v))))
}

// genPushFrameField loads a field of the current frame into the next
// stack register.
func (g *gen) genPushFrameField(s int, offset int) error {
	dst, err := g.reg(s)
	if err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(scratchReg), asm.MemOp(ctxReg, vm.ContextFrameOffset))); err != nil {
		return err
	}
	return g.emitOp(asm.Mov(asm.RegOp(dst), asm.MemOp(scratchReg, int32(offset))))
}

// genPushLocal loads argument/local slot n through the frame's
// environment pointer.
func (g *gen) genPushLocal(s, slot int) error {
	if slot < 0 || slot >= g.m.NumTemps() {
		return fmt.Errorf("local %d out of range (%d temps)", slot, g.m.NumTemps())
	}
	dst, err := g.reg(s)
	if err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(scratchReg), asm.MemOp(ctxReg, vm.ContextFrameOffset))); err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(scratchReg), asm.MemOp(scratchReg, vm.FrameEnvOffset))); err != nil {
		return err
	}
	return g.emitOp(asm.Mov(asm.RegOp(dst), asm.MemOp(scratchReg, int32(8*slot))))
}

// genArith combines the top two tagged integers. Adding two tagged
// values doubles the tag, so the sum is corrected by -1; subtraction
// cancels the tag, so the difference is corrected by +1.
func (g *gen) genArith(s int, add bool) error {
	dst, err := g.reg(s - 2)
	if err != nil {
		return err
	}
	src, err := g.reg(s - 1)
	if err != nil {
		return err
	}
	if add {
		if err := g.emitOp(asm.Add(asm.RegOp(dst), asm.RegOp(src))); err != nil {
			return err
		}
		return g.emitOp(asm.Sub(asm.RegOp(dst), asm.ImmOp(1)))
	}
	if err := g.emitOp(asm.Sub(asm.RegOp(dst), asm.RegOp(src))); err != nil {
		return err
	}
	return g.emitOp(asm.Add(asm.RegOp(dst), asm.ImmOp(1)))
}

// genLessThan compares the top two tagged integers branchlessly:
// materialize false, then conditionally move true. Tagging preserves
// order, so the comparison runs on the tagged words directly.
func (g *gen) genLessThan(s int) error {
	dst, err := g.reg(s - 2)
	if err != nil {
		return err
	}
	src, err := g.reg(s - 1)
	if err != nil {
		return err
	}
	if err := g.emitOp(asm.Cmp(asm.RegOp(dst), asm.RegOp(src))); err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(dst), asm.ImmOp(int64(vm.False)))); err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(scratchReg), asm.ImmOp(int64(vm.True)))); err != nil {
		return err
	}
	return g.emit(asm.CmovccRegReg(asm.CondL, dst, scratchReg))
}

// genBranchUnless tests the popped condition for truthiness and
// reserves the two-way branch site: ZF set means falsy, so the
// conditional jump leads to the branch target and the unconditional
// jump to the fallthrough. Provisional target addresses are whatever is
// known now; the finishing pass re-encodes the identical-length pair.
func (g *gen) genBranchUnless(inst vm.Instruction, s int) error {
	cond, err := g.reg(s - 1)
	if err != nil {
		return err
	}
	if err := g.emitOp(asm.Test(asm.RegOp(cond), asm.ImmOp(int64(falsyTest)))); err != nil {
		return err
	}

	br := Branch{
		Site:       g.c.buf.Cursor(),
		Cond:       asm.CondZ,
		TakenStart: inst.Operand,
		FallStart:  inst.Index + inst.Len,
	}
	taken := g.c.blockAddr(g.byStart, br.TakenStart)
	fall := g.c.blockAddr(g.byStart, br.FallStart)
	if err := g.emit(asm.BranchPair(br.Cond, br.Site, taken, fall)); err != nil {
		return err
	}
	g.branches = append(g.branches, br)
	return nil
}

// genSend lowers a message send: spill the arguments into the outgoing
// slot area, push a native frame, save the live stack registers across
// the call, and leave the result in the receiver's register. Callees
// were all compiled before block generation started, so the entry
// address can be encoded as an immediate here; emitting a callee at
// this point would splice its body into the caller's fallthrough path.
func (g *gen) genSend(inst vm.Instruction, s int) (int, error) {
	cs, err := g.m.CallSite(inst.Operand)
	if err != nil {
		return s, err
	}
	callee, err := g.c.methods.Resolve(cs.Selector)
	if err != nil {
		return s, err
	}
	entry := callee.Entry()
	if entry == 0 {
		return s, fmt.Errorf("callee %s has no entry address", callee.Name())
	}

	recvSlot := s - cs.Argc - 1
	recv, err := g.reg(recvSlot)
	if err != nil {
		return s, fmt.Errorf("send %q needs %d stack values: %w", cs.Selector, cs.Argc+1, err)
	}

	// r11 = current frame, rax = outgoing slot base (the callee's
	// environment).
	if err := g.emitOp(asm.Mov(asm.RegOp(scratchReg), asm.MemOp(ctxReg, vm.ContextFrameOffset))); err != nil {
		return s, err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(resultReg), asm.MemOp(scratchReg, vm.FrameStackOffset))); err != nil {
		return s, err
	}
	for i := 0; i < cs.Argc; i++ {
		arg, err := g.reg(recvSlot + 1 + i)
		if err != nil {
			return s, err
		}
		if err := g.emitOp(asm.Mov(asm.MemOp(resultReg, int32(8*i)), asm.RegOp(arg))); err != nil {
			return s, err
		}
	}

	// Push the callee frame: header below the caller's, environment at
	// the outgoing slots, its own outgoing area one window further.
	if err := g.emitOp(asm.Sub(asm.RegOp(scratchReg), asm.ImmOp(vm.FrameSize))); err != nil {
		return s, err
	}
	if err := g.emitOp(asm.Mov(asm.MemOp(scratchReg, vm.FrameSelfOffset), asm.RegOp(recv))); err != nil {
		return s, err
	}
	if err := g.emitOp(asm.Mov(asm.MemOp(scratchReg, vm.FrameEnvOffset), asm.RegOp(resultReg))); err != nil {
		return s, err
	}
	if err := g.emit(asm.LeaRegMem(resultReg, resultReg, vm.FrameSlotWindow*8)); err != nil {
		return s, err
	}
	if err := g.emitOp(asm.Mov(asm.MemOp(scratchReg, vm.FrameStackOffset), asm.RegOp(resultReg))); err != nil {
		return s, err
	}
	if err := g.emitOp(asm.Mov(asm.MemOp(ctxReg, vm.ContextFrameOffset), asm.RegOp(scratchReg))); err != nil {
		return s, err
	}

	// The callee clobbers the same register file: save every value
	// below the receiver, call, restore in reverse.
	for i := 0; i < recvSlot; i++ {
		if err := g.emit(asm.PushReg(stackRegs[i])); err != nil {
			return s, err
		}
	}
	if err := g.emit(asm.MovRegImm64(scratchReg, uint64(entry))); err != nil {
		return s, err
	}
	if err := g.emit(asm.CallReg(scratchReg)); err != nil {
		return s, err
	}
	for i := recvSlot - 1; i >= 0; i-- {
		if err := g.emit(asm.PopReg(stackRegs[i])); err != nil {
			return s, err
		}
	}

	if err := g.emitOp(asm.Mov(asm.RegOp(recv), asm.RegOp(resultReg))); err != nil {
		return s, err
	}
	return recvSlot + 1, nil
}

// genReturn pops the native frame and returns the top of stack in the
// result register.
func (g *gen) genReturn(s int) error {
	src, err := g.reg(s - 1)
	if err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(resultReg), asm.RegOp(src))); err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.RegOp(scratchReg), asm.MemOp(ctxReg, vm.ContextFrameOffset))); err != nil {
		return err
	}
	if err := g.emitOp(asm.Add(asm.RegOp(scratchReg), asm.ImmOp(vm.FrameSize))); err != nil {
		return err
	}
	if err := g.emitOp(asm.Mov(asm.MemOp(ctxReg, vm.ContextFrameOffset), asm.RegOp(scratchReg))); err != nil {
		return err
	}
	return g.emit(asm.Ret())
}
