package keyboard

import (
	"strconv"
	"sync"
	"time"

	"shiftygrid/internal/keys"
	"shiftygrid/internal/workerutil"
)

// DefaultDoubleTapWindow is the maximum gap between two presses of the same
// modifier key that still counts as a double-tap.
const DefaultDoubleTapWindow = 300 * time.Millisecond

// DoubleTapDetector recognizes two presses of the same modifier key within a
// time window. Each exact key code is tracked separately, so LShift followed
// by RShift is not a double-tap. A third press right after a detected
// double-tap starts a new sequence.
type DoubleTapDetector struct {
	window time.Duration
	now    func() time.Time

	// last maps key code -> time.Time of the previous unmatched press.
	last sync.Map

	listenersMu sync.RWMutex
	listeners   []func(code int)
}

// NewDoubleTapDetector returns a detector using window, or
// DefaultDoubleTapWindow when window <= 0.
func NewDoubleTapDetector(window time.Duration) *DoubleTapDetector {
	if window <= 0 {
		window = DefaultDoubleTapWindow
	}
	return &DoubleTapDetector{window: window, now: time.Now}
}

// Window returns the configured detection window.
func (d *DoubleTapDetector) Window() time.Duration { return d.window }

// OnDoubleTap registers fn to be called synchronously, on the goroutine that
// called ProcessKeyPress, for every detected double-tap.
func (d *DoubleTapDetector) OnDoubleTap(fn func(code int)) {
	if fn == nil {
		return
	}
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenersMu.Unlock()
}

// ProcessKeyPress records a key press and reports whether it completed a
// double-tap. Non-modifier keys are ignored.
func (d *DoubleTapDetector) ProcessKeyPress(code int) bool {
	if !keys.IsModifier(code) {
		return false
	}
	now := d.now()
	for {
		prev, loaded := d.last.LoadOrStore(code, now)
		if !loaded {
			return false
		}
		gap := now.Sub(prev.(time.Time))
		if gap >= 0 && gap <= d.window {
			if d.last.CompareAndDelete(code, prev) {
				d.fire(code)
				return true
			}
			continue
		}
		if d.last.CompareAndSwap(code, prev, now) {
			return false
		}
	}
}

// Reset forgets every pending first press.
func (d *DoubleTapDetector) Reset() {
	d.last.Clear()
}

func (d *DoubleTapDetector) fire(code int) {
	d.listenersMu.RLock()
	listeners := d.listeners
	d.listenersMu.RUnlock()
	for _, fn := range listeners {
		workerutil.SafeCall("double-tap listener "+strconv.Itoa(code), func() { fn(code) })
	}
}
