package timers

import "github.com/dop251/goja"

// ScriptExecutor runs timer callback payloads. Implementations own error
// reporting: an uncaught script error goes to the host's diagnostic sink
// and is never propagated back to the timer core, which always proceeds as
// if the callback completed.
type ScriptExecutor interface {
	// InvokeCallable calls a script function value with the given
	// arguments.
	InvokeCallable(fn goja.Callable, args []goja.Value)
	// EvaluateCode evaluates a source string in the global scope.
	EvaluateCode(code string)
}

// callbackKind discriminates the closed set of one-shot callback variants.
type callbackKind int

const (
	jsTimerCallback callbackKind = iota
	requestTimeoutCallback
)

// OneshotTimerCallback is the payload of a one-shot timer entry. It is a
// tagged union over a fixed set of variants rather than an open interface:
// the queue never inspects the payload, and dispatch happens in a single
// place when the entry fires.
type OneshotTimerCallback struct {
	kind    callbackKind
	task    *JsTimerTask
	timeout *RequestTimeoutNotice
}

// RequestTimeoutNotice is the host notification variant: a fixed signal
// (for example a network request timeout) delivered with no arguments.
type RequestTimeoutNotice struct {
	// Notify is called when the timer fires. Must be non-nil.
	Notify func()
}

// NewJsTimerCallback wraps a registry task as a one-shot callback.
func NewJsTimerCallback(task *JsTimerTask) OneshotTimerCallback {
	return OneshotTimerCallback{kind: jsTimerCallback, task: task}
}

// NewRequestTimeoutCallback wraps a host notification as a one-shot
// callback.
func NewRequestTimeoutCallback(notice *RequestTimeoutNotice) OneshotTimerCallback {
	return OneshotTimerCallback{kind: requestTimeoutCallback, timeout: notice}
}

// invoke dispatches on the variant tag. The owning queue is passed through
// so a JS timer task can re-arm itself when it is an interval.
func (cb OneshotTimerCallback) invoke(exec ScriptExecutor, owner *OneshotTimers) {
	switch cb.kind {
	case jsTimerCallback:
		cb.task.invoke(exec, owner)
	case requestTimeoutCallback:
		cb.timeout.Notify()
	}
}
