// Package keyboard matches global key presses against registered shortcuts
// and modes.
//
// Engine is the entry point: it owns the keyboard hook, the shortcut
// registry, the mode state machine and the double-tap detector, and reports
// matches to listeners on a worker pool so the hook goroutine never waits on
// listener code.
package keyboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"shiftygrid/internal/hook"
	"shiftygrid/internal/keys"
	"shiftygrid/internal/workerutil"
)

const defaultNotifyWorkers = 4

// ErrEngineClosed is returned by Start after Close.
var ErrEngineClosed = errors.New("keyboard engine is closed")

// EngineOptions configures an Engine. Zero values select defaults.
type EngineOptions struct {
	// DoubleTapWindow defaults to DefaultDoubleTapWindow.
	DoubleTapWindow time.Duration
	// CancelKey leaves a mode that allows escape. Defaults to Escape.
	CancelKey int
	// Workers is the size of the notification pool. Defaults to 4.
	Workers int
	// Hook defaults to hook.New(), the platform's native hook.
	Hook *hook.Hook
}

type pendingTap struct {
	code int
	at   time.Time
}

// Engine wires the hook, registry, modes and double-tap detection together.
type Engine struct {
	hook      *hook.Hook
	registry  *Registry
	modes     *ModeManager
	doubleTap *DoubleTapDetector
	notify    *workerutil.Pool
	cancelKey int

	// tap is the last double-tap, kept for one follow-up key within the window.
	tap atomic.Pointer[pendingTap]

	mu      sync.Mutex
	running bool
	closed  bool

	listenersMu sync.RWMutex
	onTriggered []func(ShortcutEvent)
}

// NewEngine builds an idle engine. Call Start to install the hook.
func NewEngine(opts EngineOptions) *Engine {
	if opts.CancelKey == 0 {
		opts.CancelKey = keys.VKEscape
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultNotifyWorkers
	}
	if opts.Hook == nil {
		opts.Hook = hook.New()
	}

	e := &Engine{
		hook:      opts.Hook,
		registry:  NewRegistry(),
		modes:     NewModeManager(),
		doubleTap: NewDoubleTapDetector(opts.DoubleTapWindow),
		notify:    workerutil.NewPool("shortcut-notify", opts.Workers),
		cancelKey: opts.CancelKey,
	}
	e.hook.OnKeyDown(e.handleKeyDown)
	e.doubleTap.OnDoubleTap(e.handleDoubleTap)
	return e
}

// OnShortcutTriggered registers a listener called on a worker goroutine for
// every matched shortcut.
func (e *Engine) OnShortcutTriggered(fn func(ShortcutEvent)) {
	if fn == nil {
		return
	}
	e.listenersMu.Lock()
	e.onTriggered = append(e.onTriggered, fn)
	e.listenersMu.Unlock()
}

// OnModeEntered registers a listener for mode entry.
func (e *Engine) OnModeEntered(fn func(ModeEvent)) { e.modes.OnModeEntered(fn) }

// OnModeExited registers a listener for mode exit.
func (e *Engine) OnModeExited(fn func(ModeEvent)) { e.modes.OnModeExited(fn) }

// RegisterShortcut adds a shortcut. Shortcuts built with NewShortcut are
// always valid; zero values are rejected.
func (e *Engine) RegisterShortcut(s Shortcut) error {
	if err := validateShortcut(s); err != nil {
		return err
	}
	e.registry.Register(s)
	return nil
}

// RegisterMode adds a mode and every shortcut it owns, stamped with the
// mode's id.
func (e *Engine) RegisterMode(m Mode) error {
	if m.IsZero() {
		return ErrEmptyID
	}
	for _, s := range m.shortcuts {
		if err := validateShortcut(s); err != nil {
			return fmt.Errorf("mode %q: %w", m.ID(), err)
		}
	}
	e.modes.RegisterMode(m)
	for _, s := range m.shortcuts {
		e.registry.Register(s.WithMode(m.ID()))
	}
	return nil
}

// Reload replaces every shortcut and mode. An active mode is cancelled.
// Nothing changes when any definition is invalid.
func (e *Engine) Reload(shortcuts []Shortcut, modes []Mode) error {
	for _, s := range shortcuts {
		if err := validateShortcut(s); err != nil {
			return err
		}
	}
	for _, m := range modes {
		if m.IsZero() {
			return ErrEmptyID
		}
		for _, s := range m.shortcuts {
			if err := validateShortcut(s); err != nil {
				return fmt.Errorf("mode %q: %w", m.ID(), err)
			}
		}
	}

	e.modes.Clear()
	e.registry.Clear()
	e.doubleTap.Reset()
	e.tap.Store(nil)
	for _, s := range shortcuts {
		e.registry.Register(s)
	}
	for _, m := range modes {
		e.modes.RegisterMode(m)
		for _, s := range m.shortcuts {
			e.registry.Register(s.WithMode(m.ID()))
		}
	}
	slog.Info("[keyboard] bindings reloaded", "shortcuts", e.registry.Len(), "modes", len(modes))
	return nil
}

// Start installs the keyboard hook. Calling Start while running is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return nil
	}
	if err := e.hook.Install(); err != nil {
		return fmt.Errorf("start keyboard engine: %w", err)
	}
	e.running = true
	slog.Info("[keyboard] engine started", "shortcuts", e.registry.Len())
	return nil
}

// Stop uninstalls the hook and silently discards mode, timeout and
// double-tap state. Calling Stop while stopped is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	e.running = false
	err := e.hook.Uninstall()
	e.modes.Reset()
	e.doubleTap.Reset()
	e.tap.Store(nil)
	slog.Info("[keyboard] engine stopped")
	return err
}

// Close stops the engine and waits for queued notifications.
func (e *Engine) Close() error {
	err := e.Stop()
	e.mu.Lock()
	alreadyClosed := e.closed
	e.closed = true
	e.mu.Unlock()
	if alreadyClosed {
		return err
	}
	e.notify.Close()
	e.modes.Close()
	return err
}

// Running reports whether the hook is installed.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CurrentMode returns the active mode, if any.
func (e *Engine) CurrentMode() (Mode, bool) { return e.modes.Current() }

// ModeEnteredAt returns when the active mode was entered, or the zero time.
func (e *Engine) ModeEnteredAt() time.Time { return e.modes.EnteredAt() }

// Modes returns the registered modes.
func (e *Engine) Modes() []Mode { return e.modes.Modes() }

// Shortcuts returns every registered shortcut, including mode shortcuts.
func (e *Engine) Shortcuts() []Shortcut { return e.registry.Shortcuts() }

// ShortcutCount returns the number of registered shortcuts.
func (e *Engine) ShortcutCount() int { return e.registry.Len() }

// Modifiers returns the modifiers currently held according to the hook.
func (e *Engine) Modifiers() keys.Modifiers { return e.hook.Modifiers() }

// ExitMode leaves the active mode with ExitCancelled.
func (e *Engine) ExitMode() { e.modes.ExitMode(ExitCancelled) }

// TriggerAction runs actionID as if a shortcut bound to it had fired.
// "enter_mode:" actions enter the named mode.
func (e *Engine) TriggerAction(actionID string) error {
	s, err := NewShortcut("manual:"+actionID, KeyCombination{}, actionID, ScopeGlobal, false)
	if err != nil {
		return err
	}
	if modeID, ok := s.ActivatedMode(); ok {
		if _, known := e.modes.Mode(modeID); !known {
			return fmt.Errorf("unknown mode %q", modeID)
		}
	}
	e.dispatch(s, e.modes.CurrentID(), true)
	return nil
}

// handleKeyDown runs on the hook goroutine and must not block.
func (e *Engine) handleKeyDown(ev *hook.KeyEvent) {
	code := ev.KeyCode
	e.doubleTap.ProcessKeyPress(code)

	if !keys.IsModifier(code) {
		if tap := e.tap.Swap(nil); tap != nil && e.doubleTap.now().Sub(tap.at) <= e.doubleTap.Window() {
			matches := e.doubleTapMatches(tap.code, code)
			if len(matches) > 0 {
				for _, s := range matches {
					e.dispatch(s, e.modes.CurrentID(), true)
					if s.BlockKey() {
						ev.ShouldBlock = true
					}
				}
				return
			}
		}
	}

	mode, inMode := e.modes.Current()
	if inMode && code == e.cancelKey && mode.AllowEscape() {
		e.modes.ExitMode(ExitCancelled)
		ev.ShouldBlock = true
		return
	}

	combination := Combination(code, ev.Modifiers)
	for _, s := range e.registry.FindMatches(combination, mode.ID()) {
		e.dispatch(s, mode.ID(), true)
		if s.BlockKey() {
			ev.ShouldBlock = true
		}
	}
}

// handleDoubleTap runs synchronously inside ProcessKeyPress on the hook
// goroutine. Double-tap triggers are never mode-scoped and never block.
func (e *Engine) handleDoubleTap(code int) {
	e.tap.Store(&pendingTap{code: code, at: e.doubleTap.now()})
	for _, s := range e.doubleTapMatches(code, 0) {
		e.dispatch(s, e.modes.CurrentID(), false)
	}
}

// doubleTapMatches returns the global shortcuts bound to a double-tap of code.
// The hook reports sided codes, so bindings on the generic modifier
// ("2xShiftKey") match taps of either side.
func (e *Engine) doubleTapMatches(code, followUp int) []Shortcut {
	matches := e.registry.FindMatches(DoubleTap(code, followUp), "")
	if generic := keys.Generic(code); generic != code {
		matches = append(matches, e.registry.FindMatches(DoubleTap(generic, followUp), "")...)
	}
	return matches
}

// dispatch notifies listeners and applies the mode effects of a match. When
// modeEffects is false only mode entry is applied.
func (e *Engine) dispatch(s Shortcut, activeModeID string, modeEffects bool) {
	e.notifyTriggered(ShortcutEvent{Shortcut: s, ModeID: activeModeID, At: time.Now()})

	if modeID, ok := s.ActivatedMode(); ok {
		e.modes.TryEnterMode(modeID)
		return
	}
	if !modeEffects || activeModeID == "" {
		return
	}
	e.modes.ResetTimeout()
	if s.ExitMode() {
		e.modes.ExitMode(ExitCompleted)
	}
}

// notifyTriggered hands ev to the notification pool. Logging happens there so
// the hook goroutine never writes to the log.
func (e *Engine) notifyTriggered(ev ShortcutEvent) {
	e.notify.Submit(func() {
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("[keyboard] shortcut matched",
				"shortcut", ev.Shortcut.ID(), "action", ev.Shortcut.ActionID(),
				"combination", ev.Shortcut.Combination().String(), "mode", ev.ModeID)
		}
		e.listenersMu.RLock()
		listeners := e.onTriggered
		e.listenersMu.RUnlock()
		for _, fn := range listeners {
			workerutil.SafeCall("shortcut listener "+ev.Shortcut.ActionID(), func() { fn(ev) })
		}
	})
}

func validateShortcut(s Shortcut) error {
	if s.ID() == "" {
		return ErrEmptyID
	}
	if s.ActionID() == "" {
		return ErrEmptyActionID
	}
	return nil
}
