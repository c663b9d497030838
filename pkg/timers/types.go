package timers

import "time"

// OneshotTimerHandle identifies a scheduled one-shot timer entry.
// Handles increase monotonically and are unique for the lifetime of the
// owning OneshotTimers instance.
type OneshotTimerHandle int64

// JsTimerHandle is the application-visible timer handle returned by
// SetTimeoutOrInterval. It is a separate handle space from
// OneshotTimerHandle: an interval timer keeps one JsTimerHandle for its
// whole life while its underlying one-shot handle changes every cycle.
type JsTimerHandle int64

// TimerEventID is the generation counter used to invalidate stale timer
// source replies. Only a notification carrying the most recently issued id
// is acted upon; everything else is discarded.
type TimerEventID uint64

// TimerSource tags where a timer request originated. It is carried through
// to the timer source for diagnostics and is otherwise opaque to the queue.
type TimerSource int

const (
	// SourceScript marks timers registered through the setTimeout or
	// setInterval surface.
	SourceScript TimerSource = iota
	// SourceRequest marks host request-timeout timers.
	SourceRequest
)

// String returns the source tag name.
func (s TimerSource) String() string {
	switch s {
	case SourceScript:
		return "script"
	case SourceRequest:
		return "request"
	default:
		return "unknown"
	}
}

// TimerEvent is a fire notification from the timer source. It is delivered
// on the reply channel of the request that produced it.
type TimerEvent struct {
	Source TimerSource
	ID     TimerEventID
}

// TimerEventRequest asks the timer source to deliver a TimerEvent on
// ReplyTo no earlier than Delay from receipt. There is no cancel message:
// the core supersedes a request by issuing a new one with a higher ID.
type TimerEventRequest struct {
	ReplyTo chan<- TimerEvent
	Source  TimerSource
	ID      TimerEventID
	Delay   time.Duration
}
