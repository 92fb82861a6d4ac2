//go:build !(unix && amd64)

package jit

import (
	"errors"

	"github.com/chazu/forge/vm"
)

// ErrUnsupportedPlatform reports that generated code cannot be invoked
// on this platform. Compilation itself still works against a
// heap-backed buffer for inspection.
var ErrUnsupportedPlatform = errors.New("jit: native invocation requires an amd64 unix platform")

// Invoke is unavailable on this platform.
func (c *Compiler) Invoke(m *vm.Method, self vm.Value, args []vm.Value) (vm.Value, error) {
	return vm.Nil, ErrUnsupportedPlatform
}
