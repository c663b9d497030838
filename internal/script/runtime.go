// Package script wraps a goja JavaScript runtime as the execution
// collaborator of the timer core: it runs timer callback payloads and
// reports uncaught errors, never propagating them back to the caller.
package script

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	requirePkg "github.com/dop251/goja_nodejs/require"

	"github.com/warpdl/timerkit/pkg/logger"
	"github.com/warpdl/timerkit/pkg/timers"
)

// Runtime owns a goja VM plus the node-style require registry. It must
// only be used from the goroutine that owns the timer core; goja runtimes
// are not safe for concurrent use.
type Runtime struct {
	*goja.Runtime
	*requirePkg.RequireModule
	l logger.Logger
}

// New creates a runtime with require and console enabled.
func New(l logger.Logger) (*Runtime, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}
	registry := new(requirePkg.Registry)
	vm := goja.New()
	reqM := registry.Enable(vm)
	console.Enable(vm)
	return &Runtime{
		Runtime:       vm,
		RequireModule: reqM,
		l:             l,
	}, nil
}

// InvokeCallable calls a script function value with the given arguments.
// An uncaught error is reported to the logger and otherwise swallowed; a
// failing timer callback must not stop the timer subsystem.
func (r *Runtime) InvokeCallable(fn goja.Callable, args []goja.Value) {
	if _, err := fn(goja.Undefined(), args...); err != nil {
		r.l.Error("uncaught error in timer callback: %v", err)
	}
}

// EvaluateCode evaluates a source string in the global scope, reporting
// uncaught errors the same way as InvokeCallable.
func (r *Runtime) EvaluateCode(code string) {
	if _, err := r.RunString(code); err != nil {
		r.l.Error("uncaught error in timer code: %v", err)
	}
}

var _ timers.ScriptExecutor = (*Runtime)(nil)
