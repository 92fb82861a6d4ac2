package jit

import (
	"errors"
	"fmt"

	"github.com/chazu/forge/codebuf"
	"github.com/chazu/forge/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("forge.jit")

// ErrCompileCycle reports a method whose compilation re-entered itself
// through a recursive or mutually recursive send before its entry
// address existed.
var ErrCompileCycle = errors.New("jit: recursive compilation cycle")

// Compiler turns methods into native code, one whole method per Compile
// call. Sends to not-yet-compiled callees compile them eagerly, so a
// single Compile may fill in entry addresses for a whole call tree.
type Compiler struct {
	buf        *codebuf.Buffer
	methods    *vm.MethodTable
	inProgress map[*vm.Method]bool
	tramp      uintptr
}

// New creates a compiler emitting into buf and resolving sends against
// methods.
func New(buf *codebuf.Buffer, methods *vm.MethodTable) *Compiler {
	return &Compiler{
		buf:        buf,
		methods:    methods,
		inProgress: make(map[*vm.Method]bool),
	}
}

// Buffer returns the code buffer the compiler emits into.
func (c *Compiler) Buffer() *codebuf.Buffer {
	return c.buf
}

// Compile lowers m to native code and returns its entry address.
// Compiling an already-compiled method returns the published address
// unchanged. Compilation is all-or-nothing: on error no entry address
// is published, though buffer space may have been consumed.
func (c *Compiler) Compile(m *vm.Method) (uintptr, error) {
	if entry := m.Entry(); entry != 0 {
		return entry, nil
	}
	if c.inProgress[m] {
		return 0, fmt.Errorf("%w: %s", ErrCompileCycle, m.Name())
	}
	c.inProgress[m] = true
	defer delete(c.inProgress, m)

	blocks, err := partition(m)
	if err != nil {
		return 0, err
	}
	if err := c.compileCallees(m); err != nil {
		return 0, fmt.Errorf("compile %s: %w", m.Name(), err)
	}
	byStart := make(map[int]*Block, len(blocks))
	for _, blk := range blocks {
		byStart[blk.Start] = blk
	}

	g := &gen{c: c, m: m, byStart: byStart}
	for _, blk := range blocks {
		if err := g.genBlock(blk); err != nil {
			return 0, fmt.Errorf("compile %s: %w", m.Name(), err)
		}
	}
	for _, br := range g.branches {
		if err := c.patchBranch(byStart, br); err != nil {
			return 0, fmt.Errorf("compile %s: %w", m.Name(), err)
		}
	}

	entry := byStart[0].Addr
	m.SetEntry(entry)
	log.Infof("compiled %s: %d blocks, %d branch sites, entry %#x",
		m.Name(), len(blocks), len(g.branches), entry)
	return entry, nil
}

// compileCallees compiles every callee of m that has no entry address
// yet. This runs before any of m's code is emitted, so each method's
// body stays contiguous in the buffer; landing a callee between two of
// a caller's instructions would put its code in the caller's
// fallthrough path.
func (c *Compiler) compileCallees(m *vm.Method) error {
	for idx := 0; idx < len(m.Bytecode); {
		inst, err := vm.DecodeAt(m.Bytecode, idx)
		if err != nil {
			return err
		}
		if inst.Op.IsSend() {
			cs, err := m.CallSite(inst.Operand)
			if err != nil {
				return err
			}
			callee, err := c.methods.Resolve(cs.Selector)
			if err != nil {
				return err
			}
			if callee.Entry() == 0 {
				if _, err := c.Compile(callee); err != nil {
					return fmt.Errorf("callee %s: %w", callee.Name(), err)
				}
			}
		}
		idx += inst.Len
	}
	return nil
}
