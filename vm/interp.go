package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Reference interpreter
// ---------------------------------------------------------------------------

// ErrNoResult reports a method whose instruction stream ended without a
// RETURN instruction.
var ErrNoResult = errors.New("method fell off the end of its bytecode")

// maxInterpSteps bounds one activation. Supported control flow is
// forward-only, so any run that exceeds it is malformed bytecode.
const maxInterpSteps = 1 << 20

// Interp is a reference evaluator for the supported opcode subset. It
// executes the same semantics the JIT lowers to native code and is used
// to cross-check compiled results.
type Interp struct {
	methods *MethodTable
}

// NewInterp creates an interpreter resolving sends against table.
func NewInterp(table *MethodTable) *Interp {
	return &Interp{methods: table}
}

// Run evaluates m with the given receiver and arguments and returns the
// method's result.
func (in *Interp) Run(m *Method, self Value, args []Value) (Value, error) {
	if len(args) != m.Arity {
		return Nil, fmt.Errorf("interp %s: got %d args, want %d", m.Name(), len(args), m.Arity)
	}

	locals := make([]Value, m.NumTemps())
	copy(locals, args)
	for i := len(args); i < len(locals); i++ {
		locals[i] = Nil
	}

	stack := make([]Value, 0, 16)
	pc := 0
	for steps := 0; ; steps++ {
		if steps >= maxInterpSteps {
			return Nil, fmt.Errorf("interp %s: step budget exhausted (loop in bytecode?)", m.Name())
		}
		if pc >= len(m.Bytecode) {
			return Nil, fmt.Errorf("interp %s: %w", m.Name(), ErrNoResult)
		}
		inst, err := DecodeAt(m.Bytecode, pc)
		if err != nil {
			return Nil, fmt.Errorf("interp %s: %w", m.Name(), err)
		}

		switch inst.Op {
		case OpNop:
			// nothing

		case OpPushNil:
			stack = append(stack, Nil)
		case OpPushTrue:
			stack = append(stack, True)
		case OpPushFalse:
			stack = append(stack, False)
		case OpPushSmallInt:
			stack = append(stack, FromSmallInt(int64(inst.Operand)))
		case OpPushLiteral:
			lit, err := m.Literal(inst.Operand)
			if err != nil {
				return Nil, err
			}
			stack = append(stack, lit)

		case OpPushSelf:
			stack = append(stack, self)
		case OpPushLocal:
			if inst.Operand >= len(locals) {
				return Nil, fmt.Errorf("interp %s: local %d out of range", m.Name(), inst.Operand)
			}
			stack = append(stack, locals[inst.Operand])

		case OpAdd, OpSub, OpLessThan:
			if len(stack) < 2 {
				return Nil, fmt.Errorf("interp %s: stack underflow at %d", m.Name(), pc)
			}
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !a.IsSmallInt() || !b.IsSmallInt() {
				return Nil, fmt.Errorf("interp %s: %s on non-integers at %d", m.Name(), inst.Op, pc)
			}
			switch inst.Op {
			case OpAdd:
				stack[len(stack)-1] = FromSmallInt(a.SmallInt() + b.SmallInt())
			case OpSub:
				stack[len(stack)-1] = FromSmallInt(a.SmallInt() - b.SmallInt())
			case OpLessThan:
				stack[len(stack)-1] = FromBool(a.SmallInt() < b.SmallInt())
			}

		case OpBranchUnless:
			if len(stack) < 1 {
				return Nil, fmt.Errorf("interp %s: stack underflow at %d", m.Name(), pc)
			}
			cond := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cond.IsFalsy() {
				pc = inst.Operand
				continue
			}

		case OpSend:
			cs, err := m.CallSite(inst.Operand)
			if err != nil {
				return Nil, err
			}
			if len(stack) < cs.Argc+1 {
				return Nil, fmt.Errorf("interp %s: stack underflow at send %q", m.Name(), cs.Selector)
			}
			callee, err := in.methods.Resolve(cs.Selector)
			if err != nil {
				return Nil, fmt.Errorf("interp %s: %w", m.Name(), err)
			}
			base := len(stack) - cs.Argc
			recv := stack[base-1]
			result, err := in.Run(callee, recv, stack[base:])
			if err != nil {
				return Nil, err
			}
			stack = stack[:base]
			stack[base-1] = result

		case OpReturn:
			if len(stack) < 1 {
				return Nil, fmt.Errorf("interp %s: return with empty stack", m.Name())
			}
			return stack[len(stack)-1], nil

		default:
			return Nil, fmt.Errorf("interp %s: unsupported instruction %s at %d", m.Name(), inst.Op, pc)
		}

		pc += inst.Len
	}
}
