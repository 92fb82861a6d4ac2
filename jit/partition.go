// Package jit compiles method bytecode to amd64 machine code, one
// method at a time.
//
// Compilation proceeds in three phases: the instruction stream is
// partitioned into basic blocks, each block is lowered to native code
// over a register-mapped operand stack, and a finishing pass rewrites
// every conditional-branch site with its final target addresses.
package jit

import (
	"errors"
	"fmt"

	"github.com/chazu/forge/vm"
)

var (
	// ErrInconsistentDepth reports a split point reached with two
	// different operand-stack depths.
	ErrInconsistentDepth = errors.New("jit: block entered at inconsistent stack depths")
	// ErrStackUnderflow reports bytecode that pops more values than it
	// pushed.
	ErrStackUnderflow = errors.New("jit: operand stack underflow")
	// ErrNoReturn reports an instruction path that runs off the end of
	// the stream without returning.
	ErrNoReturn = errors.New("jit: instruction path ends without a return")
)

// Block is a straight-line run of instructions with one entry point.
// Start and End are stream indices; End is the index of the closing
// branch or return instruction, -1 until the partitioner determines it.
// Addr is filled in by the code generator.
type Block struct {
	Start int
	End   int
	Depth int // operand stack depth on entry
	Addr  uintptr
}

type partitioner struct {
	m      *vm.Method
	blocks []*Block
	depths map[int]int // visited start index -> entry depth
}

// partition divides m's instruction stream into the blocks reachable
// from index 0, in discovery order. Conditional branches close a block
// and open one at each successor; the same start index is never split
// twice.
func partition(m *vm.Method) ([]*Block, error) {
	p := &partitioner{m: m, depths: make(map[int]int)}
	if err := p.walk(0, 0); err != nil {
		return nil, fmt.Errorf("partition %s: %w", m.Name(), err)
	}
	return p.blocks, nil
}

func (p *partitioner) walk(start, depth int) error {
	if seen, ok := p.depths[start]; ok {
		if seen != depth {
			return fmt.Errorf("%w: index %d entered at %d and %d",
				ErrInconsistentDepth, start, seen, depth)
		}
		return nil
	}
	p.depths[start] = depth

	blk := &Block{Start: start, End: -1, Depth: depth}
	p.blocks = append(p.blocks, blk)

	for idx := start; ; {
		inst, err := vm.DecodeAt(p.m.Bytecode, idx)
		if err != nil {
			if idx >= len(p.m.Bytecode) {
				return fmt.Errorf("%w: block at %d", ErrNoReturn, start)
			}
			return err
		}
		delta, err := stackDelta(p.m, inst)
		if err != nil {
			return err
		}
		depth += delta
		if depth < 0 {
			return fmt.Errorf("%w: %s at %d", ErrStackUnderflow, inst.Op, idx)
		}

		switch {
		case inst.Op.IsBranch():
			blk.End = idx
			if err := p.walk(idx+inst.Len, depth); err != nil {
				return err
			}
			return p.walk(inst.Operand, depth)
		case inst.Op.IsReturn():
			blk.End = idx
			return nil
		}
		idx += inst.Len
	}
}

// stackDelta returns an instruction's net effect on the operand stack.
// Sends pop their declared argument count, replacing the receiver with
// the result.
func stackDelta(m *vm.Method, inst vm.Instruction) (int, error) {
	info, ok := inst.Op.Info()
	if !ok {
		return 0, fmt.Errorf("%w (0x%02X)", vm.ErrBadOpcode, byte(inst.Op))
	}
	if info.StackEffect != vm.VariableEffect {
		return info.StackEffect, nil
	}
	cs, err := m.CallSite(inst.Operand)
	if err != nil {
		return 0, err
	}
	return -cs.Argc, nil
}
