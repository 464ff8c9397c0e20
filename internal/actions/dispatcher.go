// Package actions turns the action ids carried by triggered shortcuts into
// effects.
package actions

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shiftygrid/internal/ipc"
	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/window"
)

const (
	// moveModePrefix ids name a window preset, e.g. "move-mode-left-half".
	moveModePrefix = "move-mode-"
	// movePrefix ids carry a position, e.g. "move:0,0,3,9@9x9".
	movePrefix = "move:"
)

// ErrUnsupportedAction is returned for action ids without an executor.
var ErrUnsupportedAction = errors.New("unsupported action")

// Mover places the foreground window. commands.Router implements it.
type Mover interface {
	Move(pos window.Position) ipc.Response
}

// Source publishes triggered shortcuts. keyboard.Engine implements it.
type Source interface {
	OnShortcutTriggered(fn func(keyboard.ShortcutEvent))
}

// Dispatcher executes the actions of triggered shortcuts.
type Dispatcher struct {
	mover Mover
}

// NewDispatcher returns a Dispatcher that moves windows through mover.
func NewDispatcher(mover Mover) *Dispatcher {
	return &Dispatcher{mover: mover}
}

// Attach subscribes the dispatcher to src.
func (d *Dispatcher) Attach(src Source) {
	src.OnShortcutTriggered(d.Handle)
}

// Handle is a ShortcutTriggered listener. Failures are logged.
func (d *Dispatcher) Handle(ev keyboard.ShortcutEvent) {
	actionID := ev.Shortcut.ActionID()
	slog.Info("[actions] shortcut triggered", "shortcut", ev.Shortcut.ID(), "action", actionID, "mode", ev.ModeID)
	err := d.Dispatch(actionID)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedAction):
		slog.Warn("[actions] no executor for action", "action", actionID)
	default:
		slog.Error("[actions] action failed", "action", actionID, "error", err)
	}
}

// Dispatch executes actionID.
func (d *Dispatcher) Dispatch(actionID string) error {
	if strings.HasPrefix(actionID, keyboard.ModeActivationPrefix) {
		// Mode entry is applied by the engine itself.
		return nil
	}
	pos, ok, err := moveTarget(actionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, actionID)
	}
	if d.mover == nil {
		return errors.New("window mover is not configured")
	}
	if resp := d.mover.Move(pos); !resp.Success {
		return fmt.Errorf("move %s: %s", pos, resp.Message)
	}
	return nil
}

// Supports reports whether actionID has an executor.
func Supports(actionID string) bool {
	if strings.HasPrefix(actionID, keyboard.ModeActivationPrefix) {
		return true
	}
	_, ok, err := moveTarget(actionID)
	return ok && err == nil
}

// moveTarget resolves move action ids. ok is false when actionID is not a
// move action.
func moveTarget(actionID string) (window.Position, bool, error) {
	switch {
	case strings.HasPrefix(actionID, moveModePrefix):
		name := strings.TrimPrefix(actionID, moveModePrefix)
		pos, ok := window.Preset(name)
		if !ok {
			return window.Position{}, false, fmt.Errorf("unknown window preset %q", name)
		}
		return pos, true, nil
	case strings.HasPrefix(actionID, movePrefix):
		pos, err := window.ParsePosition(strings.TrimPrefix(actionID, movePrefix))
		if err != nil {
			return window.Position{}, false, err
		}
		return pos, true, nil
	default:
		return window.Position{}, false, nil
	}
}
