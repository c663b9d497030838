package scheduler

import (
	"time"

	"github.com/warpdl/timerkit/pkg/timers"
)

// pendingEvent is a timer event request waiting in the scheduler heap.
// It is an in-memory only type; requests are not persisted.
type pendingEvent struct {
	// req is the original request; its ReplyTo channel receives the
	// TimerEvent when dueAt is reached.
	req timers.TimerEventRequest
	// dueAt is the wall-clock time when the event should be delivered.
	dueAt time.Time
}
