package timers

import (
	"fmt"
	"sort"
	"time"

	"github.com/dop251/goja"

	"github.com/warpdl/timerkit/pkg/logger"
)

// oneshotTimer is a single pending entry. Entries are immutable after
// insertion; the only mutation the queue performs is removal.
type oneshotTimer struct {
	handle       OneshotTimerHandle
	source       TimerSource
	callback     OneshotTimerCallback
	scheduledFor time.Time
}

// OneshotTimers is the deadline-ordered timer queue. It owns the JS timer
// registry, the suspension clock and the event-id staleness protocol.
//
// The pending slice is kept sorted with the latest deadline first, so the
// earliest entry is always at the end: popping the next timer to fire is a
// slice truncation, and insertion is a binary search. Entries with equal
// deadlines keep registration order (earlier handle fires first).
type OneshotTimers struct {
	js JsTimers

	// schedulerChan is the intake of the external timer source.
	schedulerChan chan<- TimerEventRequest
	// eventChan is the reply destination embedded in every request the
	// queue issues; fire notifications come back on it.
	eventChan chan<- TimerEvent

	log logger.Logger

	nextHandle OneshotTimerHandle
	timers     []oneshotTimer

	// suspendedSince is the zero time while running.
	suspendedSince time.Time
	// suspensionOffset accumulates time spent suspended. Logical time is
	// wall-clock time minus this offset, so deadlines computed before a
	// suspension stay correctly ordered after resume.
	suspensionOffset time.Duration

	// expectedEventID invalidates stale timer source replies. A fire
	// notification with any other id is discarded: it was issued before
	// timers were suspended, before its entry was canceled, or before an
	// earlier entry displaced it as the next timer.
	expectedEventID TimerEventID

	now func() time.Time
}

// NewOneshotTimers creates a timer queue that issues requests on
// schedulerChan and expects fire notifications to come back on events.
// Both channels should be buffered; the queue sends without a timeout.
func NewOneshotTimers(schedulerChan chan<- TimerEventRequest, events chan<- TimerEvent, l logger.Logger) *OneshotTimers {
	if l == nil {
		l = logger.NewNopLogger()
	}
	t := &OneshotTimers{
		schedulerChan: schedulerChan,
		eventChan:     events,
		log:           l,
		nextHandle:    1,
		now:           time.Now,
	}
	t.js.init()
	return t
}

// ScheduleCallback inserts a one-shot entry firing after duration and
// returns its handle. If the new entry is now the next timer to fire, the
// external source request is re-armed. Never fails; a negative duration
// behaves like zero.
func (t *OneshotTimers) ScheduleCallback(cb OneshotTimerCallback, duration time.Duration, source TimerSource) OneshotTimerHandle {
	handle := t.nextHandle
	t.nextHandle++

	timer := oneshotTimer{
		handle:       handle,
		source:       source,
		callback:     cb,
		scheduledFor: t.baseTime().Add(duration),
	}

	// Latest deadline first, so the new entry goes before the first entry
	// whose deadline is not after its own. For equal deadlines this places
	// it ahead of older entries in the slice, which keeps the older ones
	// nearer the pop end: registration order wins ties.
	i := sort.Search(len(t.timers), func(i int) bool {
		return !t.timers[i].scheduledFor.After(timer.scheduledFor)
	})
	t.timers = append(t.timers, oneshotTimer{})
	copy(t.timers[i+1:], t.timers[i:])
	t.timers[i] = timer

	if t.isNextTimer(handle) {
		t.scheduleTimerCall()
	}

	return handle
}

// UnscheduleCallback removes the entry with the given handle. Unknown
// handles are a no-op so double-cancellation is safe. Removing the next
// timer to fire invalidates the outstanding request and re-arms against
// the new earliest entry, if any.
func (t *OneshotTimers) UnscheduleCallback(handle OneshotTimerHandle) {
	wasNext := t.isNextTimer(handle)

	for i := range t.timers {
		if t.timers[i].handle == handle {
			t.timers = append(t.timers[:i], t.timers[i+1:]...)
			break
		}
	}

	if wasNext {
		t.invalidateExpectedEventID()
		t.scheduleTimerCall()
	}
}

func (t *OneshotTimers) isNextTimer(handle OneshotTimerHandle) bool {
	if len(t.timers) == 0 {
		return false
	}
	return t.timers[len(t.timers)-1].handle == handle
}

// Fire consumes a notification from the external timer source. A stale id
// is discarded silently. Otherwise every entry whose deadline has elapsed
// is collected in one pass and invoked in deadline order; entries scheduled
// by the callbacks themselves are excluded from the current batch. A fire
// with a valid id while suspended, or with no elapsed entry, means the
// source broke its delivery contract and is fatal.
func (t *OneshotTimers) Fire(id TimerEventID, exec ScriptExecutor) {
	if id != t.expectedEventID {
		t.log.Debug("ignoring timer fire event %d (expected %d)", id, t.expectedEventID)
		return
	}

	if t.IsSuspended() {
		panic("timers: fire notification while suspended")
	}

	baseTime := t.baseTime()

	// The id was the expected one, so at least one timer must be due.
	if len(t.timers) == 0 || t.timers[len(t.timers)-1].scheduledFor.After(baseTime) {
		panic(fmt.Sprintf("timers: premature fire notification %d", id))
	}

	// Select the batch up front so timers installed during the firing of
	// another timer never run in the same pass.
	var toRun []oneshotTimer
	for len(t.timers) > 0 {
		next := t.timers[len(t.timers)-1]
		if next.scheduledFor.After(baseTime) {
			break
		}
		t.timers = t.timers[:len(t.timers)-1]
		toRun = append(toRun, next)
	}

	for i := range toRun {
		toRun[i].callback.invoke(exec, t)
	}

	t.scheduleTimerCall()
}

// baseTime returns the current logical time: wall-clock time corrected by
// the cumulative suspension offset, frozen while suspended.
func (t *OneshotTimers) baseTime() time.Time {
	if !t.suspendedSince.IsZero() {
		return t.suspendedSince.Add(-t.suspensionOffset)
	}
	return t.now().Add(-t.suspensionOffset)
}

// Suspend freezes the logical clock. Any outstanding request becomes stale
// through the id protocol; no cancel message is sent. Suspending twice is
// a caller contract violation and panics.
func (t *OneshotTimers) Suspend() {
	if t.IsSuspended() {
		panic("timers: already suspended")
	}
	t.suspendedSince = t.now()
	t.invalidateExpectedEventID()
}

// Resume unfreezes the logical clock, folding the suspended duration into
// the offset, and re-arms against the earliest pending entry. Resuming
// while running panics.
func (t *OneshotTimers) Resume() {
	if !t.IsSuspended() {
		panic("timers: not suspended")
	}
	t.suspensionOffset += t.now().Sub(t.suspendedSince)
	t.suspendedSince = time.Time{}
	t.scheduleTimerCall()
}

// IsSuspended reports whether the logical clock is currently frozen.
func (t *OneshotTimers) IsSuspended() bool {
	return !t.suspendedSince.IsZero()
}

// PendingCount returns the number of pending one-shot entries.
func (t *OneshotTimers) PendingCount() int {
	return len(t.timers)
}

// scheduleTimerCall re-arms the external timer source against the earliest
// pending entry. Issuing a request always burns a fresh event id, so any
// previously issued notification becomes a no-op on arrival. While
// suspended nothing is issued; Resume re-arms.
func (t *OneshotTimers) scheduleTimerCall() {
	if t.IsSuspended() {
		return
	}
	if len(t.timers) == 0 {
		return
	}

	next := t.timers[len(t.timers)-1]
	id := t.invalidateExpectedEventID()

	// Deadlines live on the logical timeline, so the delay is measured
	// from logical now. With no suspensions this equals wall-clock now.
	delay := next.scheduledFor.Sub(t.baseTime())
	if delay < 0 {
		delay = 0
	}

	t.schedulerChan <- TimerEventRequest{
		ReplyTo: t.eventChan,
		Source:  next.source,
		ID:      id,
		Delay:   delay,
	}
}

func (t *OneshotTimers) invalidateExpectedEventID() TimerEventID {
	t.expectedEventID++
	return t.expectedEventID
}

// SetTimeoutOrInterval registers an application-visible timer. See
// JsTimers.SetTimeoutOrInterval.
func (t *OneshotTimers) SetTimeoutOrInterval(cb TimerCallback, args []goja.Value, timeout time.Duration, isInterval bool, source TimerSource) JsTimerHandle {
	return t.js.setTimeoutOrInterval(t, cb, args, timeout, isInterval, source)
}

// SetTimeout registers a non-repeating timer.
func (t *OneshotTimers) SetTimeout(cb TimerCallback, args []goja.Value, timeout time.Duration, source TimerSource) JsTimerHandle {
	return t.SetTimeoutOrInterval(cb, args, timeout, false, source)
}

// SetInterval registers a repeating timer.
func (t *OneshotTimers) SetInterval(cb TimerCallback, args []goja.Value, timeout time.Duration, source TimerSource) JsTimerHandle {
	return t.SetTimeoutOrInterval(cb, args, timeout, true, source)
}

// ClearTimeoutOrInterval cancels an application-visible timer. Unknown
// handles are a no-op.
func (t *OneshotTimers) ClearTimeoutOrInterval(handle JsTimerHandle) {
	t.js.clearTimeoutOrInterval(t, handle)
}

// ActiveJsTimers returns the number of live application-visible timers.
func (t *OneshotTimers) ActiveJsTimers() int {
	return len(t.js.active)
}
