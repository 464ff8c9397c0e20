// Package hook observes system-wide key presses and lets listeners suppress
// them before other applications see them.
package hook

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"shiftygrid/internal/keys"
	"shiftygrid/internal/workerutil"
)

var (
	// ErrUnsupported is returned by backends that cannot hook the keyboard on
	// the current platform.
	ErrUnsupported = errors.New("keyboard hook is not supported on this platform")
	// ErrAlreadyInstalled is returned when a process-wide hook slot is taken.
	ErrAlreadyInstalled = errors.New("keyboard hook is already installed")
)

// KeyEvent describes one key transition. Listeners set ShouldBlock to
// suppress the key.
type KeyEvent struct {
	KeyCode     int
	Modifiers   keys.Modifiers
	ShouldBlock bool
}

// Handler is called synchronously on the hook goroutine.
type Handler func(ev *KeyEvent)

// DeliverFunc receives raw key transitions from a Backend and returns whether
// the key must be blocked.
type DeliverFunc func(code int, down bool) (block bool)

// Backend connects a Hook to the operating system.
type Backend interface {
	Install(deliver DeliverFunc) error
	Uninstall() error
}

// Hook tracks modifier state and dispatches key events to listeners.
type Hook struct {
	backend Backend

	mu        sync.Mutex
	installed bool

	// held is a bit set over heldBit indices of the modifier keys currently down.
	held atomic.Uint32

	listenersMu sync.RWMutex
	onKeyDown   []Handler
	onKeyUp     []Handler
}

// New returns a Hook using the platform's default backend.
func New() *Hook {
	return NewWithBackend(defaultBackend())
}

// NewWithBackend returns a Hook driven by b.
func NewWithBackend(b Backend) *Hook {
	return &Hook{backend: b}
}

// OnKeyDown registers a key-down listener.
func (h *Hook) OnKeyDown(fn Handler) {
	if fn == nil {
		return
	}
	h.listenersMu.Lock()
	h.onKeyDown = append(h.onKeyDown, fn)
	h.listenersMu.Unlock()
}

// OnKeyUp registers a key-up listener.
func (h *Hook) OnKeyUp(fn Handler) {
	if fn == nil {
		return
	}
	h.listenersMu.Lock()
	h.onKeyUp = append(h.onKeyUp, fn)
	h.listenersMu.Unlock()
}

// Install activates the backend. Calling it while installed is a no-op.
func (h *Hook) Install() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.installed {
		return nil
	}
	h.held.Store(0)
	if err := h.backend.Install(h.deliver); err != nil {
		return fmt.Errorf("install keyboard hook: %w", err)
	}
	h.installed = true
	slog.Info("[hook] keyboard hook installed")
	return nil
}

// Uninstall deactivates the backend. Calling it while not installed is a no-op.
func (h *Hook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.installed {
		return nil
	}
	h.installed = false
	h.held.Store(0)
	if err := h.backend.Uninstall(); err != nil {
		return fmt.Errorf("uninstall keyboard hook: %w", err)
	}
	slog.Info("[hook] keyboard hook uninstalled")
	return nil
}

// Installed reports whether the hook is active.
func (h *Hook) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}

// Modifiers returns the modifier groups currently held. Safe from any goroutine.
func (h *Hook) Modifiers() keys.Modifiers {
	return modifiersFromHeld(h.held.Load())
}

// deliver runs on the backend's hook goroutine. Failures never block a key.
func (h *Hook) deliver(code int, down bool) (block bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] keyboard hook callback recovered from panic",
				"keyCode", code,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			block = false
		}
	}()

	h.trackModifier(code, down)

	ev := &KeyEvent{KeyCode: code, Modifiers: h.Modifiers()}
	h.listenersMu.RLock()
	listeners := h.onKeyUp
	if down {
		listeners = h.onKeyDown
	}
	h.listenersMu.RUnlock()

	failed := false
	for _, fn := range listeners {
		if !workerutil.SafeCall("key listener", func() { fn(ev) }) {
			failed = true
		}
	}
	return ev.ShouldBlock && !failed
}

func (h *Hook) trackModifier(code int, down bool) {
	bit, ok := heldBit(code)
	if !ok {
		return
	}
	for {
		old := h.held.Load()
		next := old &^ bit
		if down {
			next = old | bit
		}
		if old == next || h.held.CompareAndSwap(old, next) {
			return
		}
	}
}

var heldBits = map[int]uint32{
	keys.VKLShift:   1 << 0,
	keys.VKRShift:   1 << 1,
	keys.VKShift:    1 << 2,
	keys.VKLControl: 1 << 3,
	keys.VKRControl: 1 << 4,
	keys.VKControl:  1 << 5,
	keys.VKLMenu:    1 << 6,
	keys.VKRMenu:    1 << 7,
	keys.VKMenu:     1 << 8,
	keys.VKLWin:     1 << 9,
	keys.VKRWin:     1 << 10,
}

const (
	shiftBits   = 1<<0 | 1<<1 | 1<<2
	controlBits = 1<<3 | 1<<4 | 1<<5
	altBits     = 1<<6 | 1<<7 | 1<<8
	winBits     = 1<<9 | 1<<10
)

func heldBit(code int) (uint32, bool) {
	bit, ok := heldBits[code]
	return bit, ok
}

func modifiersFromHeld(held uint32) keys.Modifiers {
	var mods keys.Modifiers
	if held&controlBits != 0 {
		mods |= keys.Control
	}
	if held&altBits != 0 {
		mods |= keys.Alt
	}
	if held&shiftBits != 0 {
		mods |= keys.Shift
	}
	if held&winBits != 0 {
		mods |= keys.Win
	}
	return mods
}
