// Package scheduler implements the external timer source for the timer
// core. It runs a single goroutine around a min-heap of pending event
// requests sorted by due time, with a 60-second max-sleep-cap to handle
// NTP steps, DST transitions, and system sleep (macOS monotonic clock
// pause).
//
// The scheduler is fire-and-forget: each request produces exactly one
// TimerEvent on the request's reply channel, no earlier than the requested
// delay after receipt. There is no cancel primitive and no acknowledgment;
// the timer core discards superseded notifications by event id. The
// scheduler does not persist state and exits when its context is
// cancelled.
package scheduler
