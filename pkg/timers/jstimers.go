package timers

import (
	"time"

	"github.com/dop251/goja"
)

// maxTimerNestingLevel is the nesting depth beyond which zero-delay timers
// are clamped to minTimerDuration, throttling runaway chains of nested
// setTimeout(fn, 0) calls. Matches the HTML timer initialisation steps.
const (
	maxTimerNestingLevel = 5
	minTimerDuration     = 4 * time.Millisecond
)

// TimerCallback is the application-supplied payload of a setTimeout or
// setInterval call: either a source string to evaluate or a function value
// to invoke. Exactly one field must be set.
type TimerCallback struct {
	// Code is evaluated in the global scope when the timer fires.
	Code string
	// Function is invoked with the argument snapshot taken at
	// registration. Takes precedence over Code when non-nil.
	Function goja.Callable
}

// JsTimers maps application-visible timer handles to the queue's one-shot
// handles and applies the nested-call clamping rules. It is owned by an
// OneshotTimers instance and shares its single-goroutine contract.
type JsTimers struct {
	nextHandle JsTimerHandle
	active     map[JsTimerHandle]*jsTimerEntry
	// nestingLevel is the nesting depth of the currently executing timer
	// task, or 0 outside of timer callbacks.
	nestingLevel uint32
}

// jsTimerEntry tracks the current underlying one-shot handle for a live
// application handle. For an interval timer the one-shot handle is
// replaced on every cycle.
type jsTimerEntry struct {
	oneshotHandle OneshotTimerHandle
}

// JsTimerTask is the unit scheduled on the one-shot queue for an
// application timer. The argument snapshot is frozen at registration time
// and never re-read.
type JsTimerTask struct {
	handle       JsTimerHandle
	source       TimerSource
	callback     TimerCallback
	args         []goja.Value
	isInterval   bool
	nestingLevel uint32
	duration     time.Duration
}

func (j *JsTimers) init() {
	j.nextHandle = 1
	j.active = make(map[JsTimerHandle]*jsTimerEntry)
}

// setTimeoutOrInterval implements the timer initialisation steps: allocate
// the handle, clamp a negative timeout to zero, snapshot the arguments and
// schedule the first one-shot entry.
func (j *JsTimers) setTimeoutOrInterval(owner *OneshotTimers, cb TimerCallback, args []goja.Value, timeout time.Duration, isInterval bool, source TimerSource) JsTimerHandle {
	handle := j.nextHandle
	j.nextHandle++

	if timeout < 0 {
		timeout = 0
	}

	task := &JsTimerTask{
		handle:     handle,
		source:     source,
		callback:   cb,
		args:       append([]goja.Value(nil), args...),
		isInterval: isInterval,
		duration:   timeout,
	}

	j.initializeAndSchedule(owner, task)

	return handle
}

// clearTimeoutOrInterval removes the handle's mapping and cancels its
// current one-shot entry. Unknown handles are a no-op.
func (j *JsTimers) clearTimeoutOrInterval(owner *OneshotTimers, handle JsTimerHandle) {
	entry, ok := j.active[handle]
	if !ok {
		return
	}
	delete(j.active, handle)
	owner.UnscheduleCallback(entry.oneshotHandle)
}

// initializeAndSchedule arms a task, both on initial registration and on
// interval re-arm. The task's own nesting level is set one deeper than the
// current one so timers it schedules see the correct depth.
func (j *JsTimers) initializeAndSchedule(owner *OneshotTimers, task *JsTimerTask) {
	handle := task.handle

	nestingLevel := j.nestingLevel
	duration := clampDuration(nestingLevel, task.duration)
	task.nestingLevel = nestingLevel + 1

	oneshotHandle := owner.ScheduleCallback(NewJsTimerCallback(task), duration, task.source)

	entry, ok := j.active[handle]
	if !ok {
		entry = &jsTimerEntry{}
		j.active[handle] = entry
	}
	entry.oneshotHandle = oneshotHandle
}

// clampDuration applies the minimum-delay rule: once calls are nested more
// than maxTimerNestingLevel deep, the effective delay is at least
// minTimerDuration.
func clampDuration(nestingLevel uint32, unclamped time.Duration) time.Duration {
	var lowerBound time.Duration
	if nestingLevel > maxTimerNestingLevel {
		lowerBound = minTimerDuration
	}
	if unclamped < lowerBound {
		return lowerBound
	}
	return unclamped
}

// invoke runs the task's callback. The registry's nesting depth is set to
// the task's level for the duration of the call and reset to 0 after, so
// nested registrations pick up the right depth. Errors from the callback
// are reported by the executor and never stop the subsystem. An interval
// task re-arms itself afterwards unless it was canceled during its own
// callback; a fired non-interval task is pruned from the registry.
func (t *JsTimerTask) invoke(exec ScriptExecutor, owner *OneshotTimers) {
	js := &owner.js

	js.nestingLevel = t.nestingLevel

	if t.callback.Function != nil {
		exec.InvokeCallable(t.callback.Function, t.args)
	} else {
		exec.EvaluateCode(t.callback.Code)
	}

	js.nestingLevel = 0

	if _, alive := js.active[t.handle]; !alive {
		return
	}
	if t.isInterval {
		js.initializeAndSchedule(owner, t)
	} else {
		delete(js.active, t.handle)
	}
}
