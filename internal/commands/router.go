// Package commands answers the requests the CLI sends to the running instance.
package commands

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"shiftygrid/internal/ipc"
	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/keys"
	"shiftygrid/internal/window"
)

// Command names understood by the router.
const (
	CommandStatus  = "status"
	CommandExit    = "exit"
	CommandMessage = "message"
	CommandMove    = "move"
	CommandTrigger = "trigger"
)

// Engine is the part of keyboard.Engine the router reports on and drives.
type Engine interface {
	Running() bool
	CurrentMode() (keyboard.Mode, bool)
	ModeEnteredAt() time.Time
	Modes() []keyboard.Mode
	Modifiers() keys.Modifiers
	ShortcutCount() int
	TriggerAction(actionID string) error
}

// EventEmitter receives user-visible notifications (the event feed).
type EventEmitter interface {
	Emit(name string, payload any)
}

// EventEmitterFunc adapts a function into EventEmitter.
type EventEmitterFunc func(name string, payload any)

func (f EventEmitterFunc) Emit(name string, payload any) {
	f(name, payload)
}

type noopEmitter struct{}

func (noopEmitter) Emit(string, any) {}

// RouterOptions controls command router behavior.
type RouterOptions struct {
	Engine     Engine
	Positioner window.Positioner
	// Gap is the spacing kept around moved windows. Negative selects window.DefaultGap.
	Gap     int
	Emitter EventEmitter
}

// Router dispatches CLI commands. It implements ipc.Handler.
type Router struct {
	opts      RouterOptions
	emitter   EventEmitter
	handlers  map[string]func(ipc.Request) ipc.Response
	startedAt time.Time
	// nowFn is a test seam for uptime.
	nowFn func() time.Time

	shuttingDown atomic.Bool
	exitOnce     sync.Once
	exitCh       chan struct{}
}

// NewRouter builds a router. Engine and Positioner may be nil, in which case
// the commands that need them fail.
func NewRouter(opts RouterOptions) *Router {
	if opts.Gap < 0 {
		opts.Gap = window.DefaultGap
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = noopEmitter{}
	}
	r := &Router{
		opts:      opts,
		emitter:   emitter,
		startedAt: time.Now(),
		nowFn:     time.Now,
		exitCh:    make(chan struct{}),
	}
	r.handlers = map[string]func(ipc.Request) ipc.Response{
		CommandStatus:  r.handleStatus,
		CommandExit:    r.handleExit,
		CommandMessage: r.handleMessage,
		CommandMove:    r.handleMove,
		CommandTrigger: r.handleTrigger,
	}
	return r
}

// Handle implements ipc.Handler.
func (r *Router) Handle(req ipc.Request) ipc.Response {
	return r.Execute(req)
}

// Execute runs one request. While shutting down only exit is accepted.
func (r *Router) Execute(req ipc.Request) ipc.Response {
	command := strings.ToLower(strings.TrimSpace(req.Command))
	slog.Debug("[commands] request received", "command", command, "id", req.ID)

	if r.shuttingDown.Load() && command != CommandExit {
		return ipc.Failure("Server is shutting down")
	}
	handler, ok := r.handlers[command]
	if !ok {
		slog.Warn("[commands] unknown command", "command", req.Command)
		return ipc.Failure("Unknown command: %s", req.Command)
	}
	return handler(req)
}

// Done is closed once an exit has been requested.
func (r *Router) Done() <-chan struct{} {
	return r.exitCh
}

// Shutdown marks the router as shutting down and closes Done. Safe to call
// more than once.
func (r *Router) Shutdown() {
	r.shuttingDown.Store(true)
	r.exitOnce.Do(func() { close(r.exitCh) })
}

// Move places the foreground window at pos. Used by the move command and by
// in-process keyboard actions.
func (r *Router) Move(pos window.Position) ipc.Response {
	if r.shuttingDown.Load() {
		return ipc.Failure("Server is shutting down")
	}
	if r.opts.Positioner == nil {
		return ipc.Failure("Error moving window")
	}
	if err := r.opts.Positioner.Move(pos, r.opts.Gap); err != nil {
		if errors.Is(err, window.ErrInvalidPosition) {
			return ipc.Failure("%v", err)
		}
		slog.Warn("[commands] move failed", "position", pos.String(), "error", err)
		return ipc.Failure("Error moving window")
	}
	slog.Info("[commands] window moved", "position", pos.String())
	return ipc.Success("Window moved", nil)
}

func (r *Router) handleStatus(ipc.Request) ipc.Response {
	data := map[string]string{
		"status": "active",
		"uptime": r.nowFn().Sub(r.startedAt).Round(time.Second).String(),
	}
	if engine := r.opts.Engine; engine != nil {
		data["hook"] = "stopped"
		if engine.Running() {
			data["hook"] = "installed"
		}
		if mode, ok := engine.CurrentMode(); ok {
			data["mode"] = mode.ID()
			if enteredAt := engine.ModeEnteredAt(); !enteredAt.IsZero() {
				data["mode_active"] = r.nowFn().Sub(enteredAt).Round(time.Second).String()
			}
		}
		data["modes"] = strconv.Itoa(len(engine.Modes()))
		data["modifiers"] = engine.Modifiers().String()
		data["shortcuts"] = strconv.Itoa(engine.ShortcutCount())
	}
	return ipc.Success("Server is running", data)
}

func (r *Router) handleExit(ipc.Request) ipc.Response {
	if r.shuttingDown.Load() {
		return ipc.Success("Server is already shutting down", nil)
	}
	slog.Info("[commands] exit requested")
	r.Shutdown()
	return ipc.Success("Server is shutting down", nil)
}

func (r *Router) handleMessage(req ipc.Request) ipc.Response {
	var text string
	if err := req.DecodeData(&text); err != nil && !errors.Is(err, ipc.ErrNoData) {
		return ipc.Failure("%v", err)
	}
	if strings.TrimSpace(text) == "" {
		return ipc.Failure("No message provided")
	}
	slog.Info("[commands] message received", "message", text)
	r.emitter.Emit("message", text)
	return ipc.Success("Message displayed: "+text, nil)
}

func (r *Router) handleMove(req ipc.Request) ipc.Response {
	var pos window.Position
	if err := req.DecodeData(&pos); err != nil {
		return ipc.Failure("move requires a position: %v", err)
	}
	return r.Move(pos)
}

func (r *Router) handleTrigger(req ipc.Request) ipc.Response {
	if r.opts.Engine == nil {
		return ipc.Failure("keyboard engine is not available")
	}
	var actionID string
	if err := req.DecodeData(&actionID); err != nil && !errors.Is(err, ipc.ErrNoData) {
		return ipc.Failure("%v", err)
	}
	actionID = strings.TrimSpace(actionID)
	if actionID == "" {
		return ipc.Failure("No action provided")
	}
	if err := r.opts.Engine.TriggerAction(actionID); err != nil {
		return ipc.Failure("trigger %s: %v", actionID, err)
	}
	return ipc.Success("Action triggered: "+actionID, nil)
}
