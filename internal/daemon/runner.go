// Package daemon provides the run loop that owns a timer core. All
// mutations of the core — registrations, cancellations, suspension and
// fire notifications — are funneled onto one goroutine, which is the
// single-owner contract the core requires.
package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/warpdl/timerkit/internal/scheduler"
	"github.com/warpdl/timerkit/internal/script"
	"github.com/warpdl/timerkit/pkg/logger"
	"github.com/warpdl/timerkit/pkg/timers"
)

// Sentinel errors for the daemon runner.
var (
	// ErrAlreadyRunning is returned when Run is called on a running runner.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when Call is invoked before Run or after
	// shutdown.
	ErrNotRunning = errors.New("daemon is not running")
)

// Config holds the configuration for the runner.
type Config struct {
	// EventBuffer is the capacity of the fire notification channel.
	// Zero means the default of 64.
	EventBuffer int

	// CommandBuffer is the capacity of the command channel.
	// Zero means the default of 64.
	CommandBuffer int

	// StartSuspended suspends the timer core before the loop starts
	// consuming events.
	StartSuspended bool
}

// Task is a unit of work executed on the owner goroutine with exclusive
// access to the timer core and its script runtime.
type Task func(core *timers.OneshotTimers, rt *script.Runtime)

type command struct {
	fn   Task
	done chan struct{}
}

// Runner owns the timer core, its scheduler and its script runtime.
type Runner struct {
	log  logger.Logger
	cfg  Config
	cmds chan command

	mu      sync.Mutex
	running bool
	ctx     context.Context
}

// New creates a runner. The zero Config is valid.
func New(cfg Config, l logger.Logger) *Runner {
	if l == nil {
		l = logger.NewNopLogger()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 64
	}
	return &Runner{
		log:  l,
		cfg:  cfg,
		cmds: make(chan command, cfg.CommandBuffer),
	}
}

// Run starts the scheduler and the owner loop, blocking until ctx is
// cancelled. Fire notifications and posted commands are consumed strictly
// sequentially, so callbacks never race with registrations.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	rt, err := script.New(r.log)
	if err != nil {
		return err
	}

	sched := scheduler.New(ctx, r.log)
	events := make(chan timers.TimerEvent, r.cfg.EventBuffer)
	core := timers.NewOneshotTimers(sched.Chan(), events, r.log)

	if r.cfg.StartSuspended {
		core.Suspend()
	}

	r.log.Info("timer daemon loop started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("timer daemon loop stopped")
			return ctx.Err()

		case ev := <-events:
			core.Fire(ev.ID, rt)

		case c := <-r.cmds:
			c.fn(core, rt)
			close(c.done)
		}
	}
}

// Call runs fn on the owner goroutine and waits for it to complete.
// Returns ErrNotRunning if the loop is not active, or the ctx error if the
// caller gives up first.
func (r *Runner) Call(ctx context.Context, fn Task) error {
	r.mu.Lock()
	running, loopCtx := r.running, r.ctx
	r.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	c := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- c:
	case <-loopCtx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-c.done:
		return nil
	case <-loopCtx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the loop is currently active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
