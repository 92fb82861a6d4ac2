package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Bytecode disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction formats a single decoded instruction.
func DisassembleInstruction(m *Method, inst Instruction) string {
	switch inst.Op {
	case OpPushSmallInt:
		return fmt.Sprintf("%04d  %s %d", inst.Index, inst.Op, inst.Operand)

	case OpPushLiteral:
		if lit, err := m.Literal(inst.Operand); err == nil {
			return fmt.Sprintf("%04d  %s %d (%s)", inst.Index, inst.Op, inst.Operand, lit)
		}
		return fmt.Sprintf("%04d  %s %d", inst.Index, inst.Op, inst.Operand)

	case OpPushLocal:
		return fmt.Sprintf("%04d  %s %d", inst.Index, inst.Op, inst.Operand)

	case OpBranchUnless:
		return fmt.Sprintf("%04d  %s -> %04d", inst.Index, inst.Op, inst.Operand)

	case OpSend:
		if cs, err := m.CallSite(inst.Operand); err == nil {
			return fmt.Sprintf("%04d  %s %q argc=%d", inst.Index, inst.Op, cs.Selector, cs.Argc)
		}
		return fmt.Sprintf("%04d  %s %d", inst.Index, inst.Op, inst.Operand)

	default:
		return fmt.Sprintf("%04d  %s", inst.Index, inst.Op)
	}
}

// Disassemble returns a full listing of the method's bytecode.
// Undecodable tail bytes are reported in place instead of aborting.
func (m *Method) Disassemble() string {
	var sb strings.Builder
	idx := 0
	for idx < len(m.Bytecode) {
		inst, err := DecodeAt(m.Bytecode, idx)
		if err != nil {
			fmt.Fprintf(&sb, "%04d  ?? %v\n", idx, err)
			break
		}
		sb.WriteString(DisassembleInstruction(m, inst))
		sb.WriteString("\n")
		idx += inst.Len
	}
	return sb.String()
}
