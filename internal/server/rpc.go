// Package server exposes the timer registration API over JSON-RPC 2.0,
// reachable through an HTTP bridge and a WebSocket endpoint. Every method
// body is executed on the daemon's owner goroutine, preserving the timer
// core's single-threaded contract.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"

	"github.com/warpdl/timerkit/internal/daemon"
	"github.com/warpdl/timerkit/internal/script"
	"github.com/warpdl/timerkit/pkg/logger"
	"github.com/warpdl/timerkit/pkg/timers"
)

// Custom JSON-RPC error codes for timer operations.
const (
	codeAlreadySuspended = jrpc2.Code(-32001)
	codeNotSuspended     = jrpc2.Code(-32002)
	codeNotRunning       = jrpc2.Code(-32003)
	codeInvalidParams    = jrpc2.Code(-32602)
)

// Config holds configuration for the RPC endpoint.
type Config struct {
	// Secret is the Bearer token required on the HTTP endpoints. Empty
	// means no authentication (local development).
	Secret string
	// Version is reported by system.getVersion.
	Version string
}

// RPCServer manages the JSON-RPC 2.0 bridge and method handlers.
type RPCServer struct {
	methods handler.Map
	bridge  jhttp.Bridge
	runner  *daemon.Runner
	log     logger.Logger
	secret  string
	version string
}

// SetParams is the input for timer.setTimeout and timer.setInterval.
type SetParams struct {
	// Code is the script evaluated when the timer fires.
	Code string `json:"code"`
	// DelayMs is the requested delay in milliseconds. Negative values are
	// clamped to zero, matching the in-process API.
	DelayMs int64 `json:"delayMs"`
}

// HandleResult carries an application-visible timer handle.
type HandleResult struct {
	ID int64 `json:"id"`
}

// ClearParams is the input for timer.clear.
type ClearParams struct {
	ID int64 `json:"id"`
}

// EvalParams is the input for script.eval.
type EvalParams struct {
	Code string `json:"code"`
}

// StatusResult is the response for timer.pending.
type StatusResult struct {
	Pending   int  `json:"pending"`
	Active    int  `json:"active"`
	Suspended bool `json:"suspended"`
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version string `json:"version"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// NewRPCServer creates a new RPCServer with method handlers and HTTP bridge.
func NewRPCServer(cfg Config, runner *daemon.Runner, l logger.Logger) *RPCServer {
	if l == nil {
		l = logger.NewNopLogger()
	}
	rs := &RPCServer{
		runner:  runner,
		log:     l,
		secret:  cfg.Secret,
		version: cfg.Version,
	}

	rs.methods = handler.Map{
		"system.getVersion": handler.New(rs.systemGetVersion),
		"timer.setTimeout":  handler.New(rs.timerSetTimeout),
		"timer.setInterval": handler.New(rs.timerSetInterval),
		"timer.clear":       handler.New(rs.timerClear),
		"timer.suspend":     handler.New(rs.timerSuspend),
		"timer.resume":      handler.New(rs.timerResume),
		"timer.pending":     handler.New(rs.timerPending),
		"script.eval":       handler.New(rs.scriptEval),
	}

	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	return rs
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{Version: rs.version}, nil
}

func (rs *RPCServer) timerSetTimeout(ctx context.Context, p *SetParams) (*HandleResult, error) {
	return rs.register(ctx, p, false)
}

func (rs *RPCServer) timerSetInterval(ctx context.Context, p *SetParams) (*HandleResult, error) {
	return rs.register(ctx, p, true)
}

func (rs *RPCServer) register(ctx context.Context, p *SetParams, isInterval bool) (*HandleResult, error) {
	if p.Code == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: code"}
	}

	var h timers.JsTimerHandle
	err := rs.runner.Call(ctx, func(core *timers.OneshotTimers, _ *script.Runtime) {
		cb := timers.TimerCallback{Code: p.Code}
		h = core.SetTimeoutOrInterval(cb, nil, time.Duration(p.DelayMs)*time.Millisecond, isInterval, timers.SourceScript)
	})
	if err != nil {
		return nil, rs.callError(err)
	}
	return &HandleResult{ID: int64(h)}, nil
}

func (rs *RPCServer) timerClear(ctx context.Context, p *ClearParams) (*EmptyResult, error) {
	err := rs.runner.Call(ctx, func(core *timers.OneshotTimers, _ *script.Runtime) {
		core.ClearTimeoutOrInterval(timers.JsTimerHandle(p.ID))
	})
	if err != nil {
		return nil, rs.callError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) timerSuspend(ctx context.Context) (*EmptyResult, error) {
	var already bool
	err := rs.runner.Call(ctx, func(core *timers.OneshotTimers, _ *script.Runtime) {
		if core.IsSuspended() {
			already = true
			return
		}
		core.Suspend()
	})
	if err != nil {
		return nil, rs.callError(err)
	}
	if already {
		return nil, &jrpc2.Error{Code: codeAlreadySuspended, Message: "timers already suspended"}
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) timerResume(ctx context.Context) (*EmptyResult, error) {
	var notSuspended bool
	err := rs.runner.Call(ctx, func(core *timers.OneshotTimers, _ *script.Runtime) {
		if !core.IsSuspended() {
			notSuspended = true
			return
		}
		core.Resume()
	})
	if err != nil {
		return nil, rs.callError(err)
	}
	if notSuspended {
		return nil, &jrpc2.Error{Code: codeNotSuspended, Message: "timers are not suspended"}
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) timerPending(ctx context.Context) (*StatusResult, error) {
	var res StatusResult
	err := rs.runner.Call(ctx, func(core *timers.OneshotTimers, _ *script.Runtime) {
		res.Pending = core.PendingCount()
		res.Active = core.ActiveJsTimers()
		res.Suspended = core.IsSuspended()
	})
	if err != nil {
		return nil, rs.callError(err)
	}
	return &res, nil
}

func (rs *RPCServer) scriptEval(ctx context.Context, p *EvalParams) (*EmptyResult, error) {
	if p.Code == "" {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: code"}
	}
	err := rs.runner.Call(ctx, func(_ *timers.OneshotTimers, rt *script.Runtime) {
		rt.EvaluateCode(p.Code)
	})
	if err != nil {
		return nil, rs.callError(err)
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) callError(err error) error {
	if err == daemon.ErrNotRunning {
		return &jrpc2.Error{Code: codeNotRunning, Message: "timer daemon is not running"}
	}
	return err
}

// Handler returns the HTTP handler exposing the bridge on /rpc and the
// WebSocket endpoint on /ws, both behind token auth when a secret is set.
func (rs *RPCServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/rpc", requireToken(rs.secret, rs.bridge))
	mux.Handle("/ws", requireToken(rs.secret, http.HandlerFunc(rs.handleWS)))
	return mux
}
