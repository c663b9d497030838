// Package timers implements the timer core of a script runtime: a one-shot
// timer queue ordered by absolute deadline, and a setTimeout/setInterval
// style registry built on top of it.
//
// The queue does not sleep. It talks to an external timer source through
// one-way messages: every time the earliest deadline changes it issues a
// single TimerEventRequest tagged with a fresh event id, and it validates
// the id on every incoming fire notification. Requests are never canceled;
// a superseded request is simply ignored when its notification arrives.
// This keeps at most one outstanding request valid at any time.
//
// All methods must be called from the single goroutine that owns the
// instance. Concurrency exists only at the boundary with the timer source,
// which delivers notifications through the reply channel embedded in each
// request. See internal/daemon for the run loop that enforces this.
package timers
