package jit

import (
	"fmt"

	"github.com/chazu/forge/asm"
)

// Branch records one reserved conditional-branch site: where its bytes
// live and the start indices of its two successor blocks. The finishing
// pass re-encodes the site once every block's native address is known.
type Branch struct {
	Site       uintptr
	Cond       asm.Cond
	TakenStart int // successor when the condition holds
	FallStart  int // fallthrough successor
}

// patchBranch rewrites one branch site in place with the successors'
// final addresses. A successor that was never generated (dead code)
// gets the buffer's out-of-range sentinel.
func (c *Compiler) patchBranch(byStart map[int]*Block, br Branch) error {
	taken := c.blockAddr(byStart, br.TakenStart)
	fall := c.blockAddr(byStart, br.FallStart)
	pair := asm.BranchPair(br.Cond, br.Site, taken, fall)
	if err := c.buf.WriteAt(br.Site, pair); err != nil {
		return fmt.Errorf("patch branch at %#x: %w", br.Site, err)
	}
	return nil
}

// blockAddr returns the native address of the block starting at the
// given stream index, or the buffer's invalid-address sentinel when no
// such block was generated.
func (c *Compiler) blockAddr(byStart map[int]*Block, start int) uintptr {
	if blk, ok := byStart[start]; ok && blk.Addr != 0 {
		return blk.Addr
	}
	return c.buf.InvalidAddr()
}
