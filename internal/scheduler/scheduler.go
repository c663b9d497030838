package scheduler

import (
	"container/heap"
	"context"
	"time"

	"github.com/warpdl/timerkit/pkg/logger"
	"github.com/warpdl/timerkit/pkg/timers"
)

const maxSleepCap = 60 * time.Second

// Scheduler is the asynchronous timer source behind a timer core. It
// receives TimerEventRequests on its intake channel and delivers each
// request's TimerEvent on the request's reply channel once the delay has
// elapsed. It runs a background goroutine that sleeps until the next
// pending event is due.
type Scheduler struct {
	reqChan chan timers.TimerEventRequest
	ctx     context.Context
	log     logger.Logger
}

// New creates and starts a new Scheduler.
// The scheduler goroutine exits when ctx is cancelled.
func New(ctx context.Context, l logger.Logger) *Scheduler {
	if l == nil {
		l = logger.NewNopLogger()
	}
	s := &Scheduler{
		reqChan: make(chan timers.TimerEventRequest, 64),
		ctx:     ctx,
		log:     l,
	}
	go s.run()
	return s
}

// Chan returns the request intake channel, suitable for passing to
// timers.NewOneshotTimers.
func (s *Scheduler) Chan() chan<- timers.TimerEventRequest {
	return s.reqChan
}

// Schedule enqueues a request directly. It is a convenience for callers
// that hold the Scheduler rather than its intake channel.
func (s *Scheduler) Schedule(req timers.TimerEventRequest) {
	select {
	case s.reqChan <- req:
	case <-s.ctx.Done():
	}
}

// run is the core scheduler goroutine implementing the active-object
// pattern. It maintains a min-heap of pending events and sleeps with a
// 60s max-sleep-cap. Delivery order for equal due times follows heap
// order; the timer core never relies on it, since at most one of its
// outstanding requests is valid.
func (s *Scheduler) run() {
	h := &pendingHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			// No events — block indefinitely on channels
			return nil
		}
		dur := time.Until((*h)[0].dueAt)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			return

		case req := <-s.reqChan:
			delay := req.Delay
			if delay < 0 {
				delay = 0
			}
			heapPush(h, pendingEvent{req: req, dueAt: time.Now().Add(delay)})
			timerCh = resetTimer()

		case <-timerCh:
			// Deliver all events whose time has arrived
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].dueAt.After(now) {
				ev := heapPop(h)
				s.deliver(ev.req)
			}
			timerCh = resetTimer()
		}
	}
}

// deliver sends the event for req on its reply channel. Delivery blocks
// until the owner consumes it or the scheduler shuts down; reply channels
// should be buffered.
func (s *Scheduler) deliver(req timers.TimerEventRequest) {
	ev := timers.TimerEvent{Source: req.Source, ID: req.ID}
	select {
	case req.ReplyTo <- ev:
		s.log.Debug("delivered timer event %d (%s)", ev.ID, ev.Source)
	case <-s.ctx.Done():
	}
}
