//go:build unix && amd64

package jit

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/chazu/forge/asm"
	"github.com/chazu/forge/vm"
)

// defaultCallDepth bounds the native frames one invocation may nest.
const defaultCallDepth = 64

// invokeFn matches the trampoline's register contract: the context
// pointer arrives in the first integer argument register and the method
// entry in the second, the result comes back in the first.
type invokeFn func(ctx, entry uintptr) uintptr

// trampoline lazily emits the shared stub bridging a Go call into
// generated code: it moves the context pointer into the dedicated
// context register and jumps through the entry address.
func (c *Compiler) trampoline() (uintptr, error) {
	if c.tramp != 0 {
		return c.tramp, nil
	}
	code := asm.MovRegReg(scratchReg, asm.RBX)             // entry argument
	code = append(code, asm.MovRegReg(ctxReg, asm.RAX)...) // context argument
	code = append(code, asm.CallReg(scratchReg)...)
	code = append(code, asm.Ret()...)

	addr, err := c.buf.Append(code)
	if err != nil {
		return 0, fmt.Errorf("trampoline: %w", err)
	}
	c.tramp = addr
	return addr, nil
}

// makeInvoker reinterprets a code address as a callable Go function
// value. The address must point at code honoring invokeFn's register
// contract.
func makeInvoker(addr uintptr) invokeFn {
	fv := &struct{ pc uintptr }{pc: addr}
	return *(*invokeFn)(unsafe.Pointer(&fv))
}

// Invoke compiles m if needed and runs its native code with the given
// receiver and arguments.
func (c *Compiler) Invoke(m *vm.Method, self vm.Value, args []vm.Value) (vm.Value, error) {
	entry, err := c.Compile(m)
	if err != nil {
		return vm.Nil, err
	}
	tramp, err := c.trampoline()
	if err != nil {
		return vm.Nil, err
	}

	ctx := vm.NewContext(defaultCallDepth)
	if err := ctx.EnterMethod(m, self, args); err != nil {
		return vm.Nil, err
	}
	result := makeInvoker(tramp)(uintptr(unsafe.Pointer(ctx)), entry)
	runtime.KeepAlive(ctx)
	return vm.Value(result), nil
}
