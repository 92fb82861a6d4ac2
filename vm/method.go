package vm

import "fmt"

// ---------------------------------------------------------------------------
// Method: bytecode plus the JIT's published entry address
// ---------------------------------------------------------------------------

// Method represents a compiled Forge method. It stores bytecode,
// literals, call-site metadata, and the native entry address the JIT
// publishes after compilation.
type Method struct {
	name string

	// Method signature
	Arity     int // number of arguments
	NumLocals int // locals beyond the arguments

	// Compiled code
	Literals  []Value    // constant pool
	Bytecode  []byte     // the bytecode instructions
	CallSites []CallSite // one entry per SEND instruction operand

	// Native code. Zero until the JIT publishes the entry address;
	// written exactly once.
	entry uintptr
}

// CallSite carries the call data for one SEND instruction: the selector
// to resolve and the declared argument count.
type CallSite struct {
	Selector string
	Argc     int
}

// NewMethod creates a new method with the given name and arity.
func NewMethod(name string, arity int) *Method {
	return &Method{
		name:     name,
		Arity:    arity,
		Literals: make([]Value, 0, 8),
		Bytecode: make([]byte, 0, 32),
	}
}

// Name returns the method name.
func (m *Method) Name() string {
	return m.name
}

// Entry returns the published native entry address, or 0 if the method
// has not been compiled.
func (m *Method) Entry() uintptr {
	return m.entry
}

// SetEntry publishes the native entry address. The first call wins;
// later calls are ignored and return false.
func (m *Method) SetEntry(addr uintptr) bool {
	if m.entry != 0 {
		return false
	}
	m.entry = addr
	return true
}

// Literal returns the literal at the given index.
func (m *Method) Literal(index int) (Value, error) {
	if index < 0 || index >= len(m.Literals) {
		return Nil, fmt.Errorf("method %s: literal index %d out of range", m.name, index)
	}
	return m.Literals[index], nil
}

// CallSite returns the call site at the given index.
func (m *Method) CallSite(index int) (CallSite, error) {
	if index < 0 || index >= len(m.CallSites) {
		return CallSite{}, fmt.Errorf("method %s: call site index %d out of range", m.name, index)
	}
	return m.CallSites[index], nil
}

// NumTemps returns the frame slot count: arguments plus locals.
func (m *Method) NumTemps() int {
	return m.Arity + m.NumLocals
}

// String returns a string representation of the method.
func (m *Method) String() string {
	return m.name + "/" + fmt.Sprint(m.Arity)
}

// ---------------------------------------------------------------------------
// MethodTable: selector resolution
// ---------------------------------------------------------------------------

// MethodTable maps selectors to methods. Call sites are resolved against
// it both by the JIT (at compile time) and by the interpreter.
type MethodTable struct {
	methods map[string]*Method
}

// NewMethodTable creates an empty method table.
func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[string]*Method)}
}

// Define registers a method under its own name.
func (t *MethodTable) Define(m *Method) {
	t.methods[m.Name()] = m
}

// Resolve looks up the method for a selector.
func (t *MethodTable) Resolve(selector string) (*Method, error) {
	m, ok := t.methods[selector]
	if !ok {
		return nil, fmt.Errorf("unresolved selector %q", selector)
	}
	return m, nil
}

// Methods returns all registered methods keyed by selector.
func (t *MethodTable) Methods() map[string]*Method {
	return t.methods
}

// ---------------------------------------------------------------------------
// MethodBuilder: helper for constructing methods
// ---------------------------------------------------------------------------

// MethodBuilder helps construct Method instances.
type MethodBuilder struct {
	method   *Method
	bytecode *BytecodeBuilder
}

// NewMethodBuilder creates a new method builder.
func NewMethodBuilder(name string, arity int) *MethodBuilder {
	return &MethodBuilder{
		method:   NewMethod(name, arity),
		bytecode: NewBytecodeBuilder(),
	}
}

// SetNumLocals sets the number of locals beyond the arguments.
func (b *MethodBuilder) SetNumLocals(n int) *MethodBuilder {
	b.method.NumLocals = n
	return b
}

// AddLiteral adds a literal and returns its index.
func (b *MethodBuilder) AddLiteral(v Value) int {
	idx := len(b.method.Literals)
	b.method.Literals = append(b.method.Literals, v)
	return idx
}

// AddCallSite adds a call site and returns its index.
func (b *MethodBuilder) AddCallSite(selector string, argc int) int {
	idx := len(b.method.CallSites)
	b.method.CallSites = append(b.method.CallSites, CallSite{Selector: selector, Argc: argc})
	return idx
}

// Bytecode returns the bytecode builder for direct emission.
func (b *MethodBuilder) Bytecode() *BytecodeBuilder {
	return b.bytecode
}

// Build finalizes and returns the method.
func (b *MethodBuilder) Build() *Method {
	b.method.Bytecode = b.bytecode.Bytes()
	return b.method
}
