package keyboard

import (
	"log/slog"
	"sync"
	"time"

	"shiftygrid/internal/workerutil"
)

// ModeManager tracks the single active mode and its inactivity timeout.
//
// Every transition runs under one mutex. Entered/exited notifications are
// queued on a single-worker pool, so listeners observe them in the order the
// transitions happened and never on the goroutine holding the lock.
type ModeManager struct {
	mu        sync.Mutex
	modes     map[string]Mode
	current   Mode
	enteredAt time.Time
	timer     *time.Timer

	// generation invalidates timers armed for an earlier activation.
	generation uint64

	events *workerutil.Pool

	listenersMu sync.RWMutex
	onEntered   []func(ModeEvent)
	onExited    []func(ModeEvent)
}

// NewModeManager returns a manager with no registered modes.
func NewModeManager() *ModeManager {
	return &ModeManager{
		modes:  make(map[string]Mode),
		events: workerutil.NewPool("mode-events", 1),
	}
}

// OnModeEntered registers a listener for mode entry.
func (m *ModeManager) OnModeEntered(fn func(ModeEvent)) {
	if fn == nil {
		return
	}
	m.listenersMu.Lock()
	m.onEntered = append(m.onEntered, fn)
	m.listenersMu.Unlock()
}

// OnModeExited registers a listener for mode exit.
func (m *ModeManager) OnModeExited(fn func(ModeEvent)) {
	if fn == nil {
		return
	}
	m.listenersMu.Lock()
	m.onExited = append(m.onExited, fn)
	m.listenersMu.Unlock()
}

// RegisterMode adds or replaces a mode definition. An active mode keeps its
// previous definition until it is left.
func (m *ModeManager) RegisterMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[mode.ID()] = mode
}

// UnregisterMode removes a mode definition, cancelling it if it is active.
func (m *ModeManager) UnregisterMode(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.modes, id)
	if !m.current.IsZero() && m.current.ID() == id {
		m.exitLocked(ExitCancelled)
	}
}

// Clear removes every mode definition, cancelling the active mode.
func (m *ModeManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.modes)
	if !m.current.IsZero() {
		m.exitLocked(ExitCancelled)
	}
}

// Modes returns a snapshot of the registered modes in no particular order.
func (m *ModeManager) Modes() []Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]Mode, 0, len(m.modes))
	for _, mode := range m.modes {
		all = append(all, mode)
	}
	return all
}

// Mode returns the registered mode with the given id.
func (m *ModeManager) Mode(id string) (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.modes[id]
	return mode, ok
}

// Current returns the active mode, if any.
func (m *ModeManager) Current() (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, !m.current.IsZero()
}

// CurrentID returns the active mode id, or "" when idle.
func (m *ModeManager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.ID()
}

// IsInMode reports whether a mode is active.
func (m *ModeManager) IsInMode() bool {
	return m.CurrentID() != ""
}

// EnteredAt returns when the active mode was entered, or the zero time.
func (m *ModeManager) EnteredAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enteredAt
}

// TryEnterMode activates the registered mode id, leaving any active mode with
// ExitNewMode first. It returns false for an unknown id.
func (m *ModeManager) TryEnterMode(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode, ok := m.modes[id]
	if !ok {
		m.events.Submit(func() { slog.Warn("[mode] cannot enter unknown mode", "mode", id) })
		return false
	}
	if !m.current.IsZero() {
		m.exitLocked(ExitNewMode)
	}

	m.current = mode
	m.enteredAt = time.Now()
	m.generation++
	m.armLocked()

	m.emitLocked(true, ModeEvent{Mode: mode, Reason: ExitNone})
	return true
}

// ExitMode leaves the active mode with reason. It is a no-op when idle.
func (m *ModeManager) ExitMode(reason ExitReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.IsZero() {
		return
	}
	m.exitLocked(reason)
}

// ResetTimeout restarts the inactivity timeout of the active mode with its
// full duration.
func (m *ModeManager) ResetTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.IsZero() || !m.current.HasTimeout() {
		return
	}
	m.stopTimerLocked()
	m.generation++
	m.armLocked()
}

// Reset discards the active mode and its timeout without notifying anyone.
func (m *ModeManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.generation++
	m.current = Mode{}
	m.enteredAt = time.Time{}
}

// Close resets the manager and waits for queued notifications to be delivered.
func (m *ModeManager) Close() {
	m.Reset()
	m.events.Close()
}

func (m *ModeManager) exitLocked(reason ExitReason) {
	mode := m.current
	m.stopTimerLocked()
	m.generation++
	m.current = Mode{}
	m.enteredAt = time.Time{}

	m.emitLocked(false, ModeEvent{Mode: mode, Reason: reason})
}

func (m *ModeManager) armLocked() {
	if !m.current.HasTimeout() {
		return
	}
	gen := m.generation
	m.timer = time.AfterFunc(m.current.Timeout(), func() {
		m.onTimeout(gen)
	})
}

func (m *ModeManager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *ModeManager) onTimeout(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A stale timer may fire after the mode was left, replaced or re-armed.
	if gen != m.generation || m.current.IsZero() {
		return
	}
	m.timer = nil
	m.exitLocked(ExitTimeout)
}

func (m *ModeManager) emitLocked(entered bool, ev ModeEvent) {
	m.events.Submit(func() {
		if entered {
			slog.Debug("[mode] entered", "mode", ev.Mode.ID(), "timeout", ev.Mode.Timeout())
		} else {
			slog.Debug("[mode] exited", "mode", ev.Mode.ID(), "reason", ev.Reason.String())
		}
		m.listenersMu.RLock()
		listeners := m.onExited
		if entered {
			listeners = m.onEntered
		}
		m.listenersMu.RUnlock()
		for _, fn := range listeners {
			workerutil.SafeCall("mode listener", func() { fn(ev) })
		}
	})
}
