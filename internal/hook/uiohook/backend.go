// Package uiohook provides a hook.Backend for macOS and Linux built on
// libuiohook through github.com/robotn/gohook.
//
// libuiohook delivers events asynchronously, so this backend can observe keys
// but cannot suppress them. Native key codes are translated into Windows
// virtual-key codes before they reach the hook.
package uiohook

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	gohook "github.com/robotn/gohook"

	"shiftygrid/internal/hook"
)

const stopTimeout = 2 * time.Second

// Backend is an observe-only keyboard backend.
type Backend struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}

	blockOnce sync.Once
}

// New returns an idle backend.
func New() *Backend {
	return &Backend{}
}

// Install starts the libuiohook event loop and forwards key presses and
// releases to deliver.
func (b *Backend) Install(deliver hook.DeliverFunc) error {
	if deliver == nil {
		return fmt.Errorf("deliver callback is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return hook.ErrAlreadyInstalled
	}

	events := gohook.Start()
	done := make(chan struct{})
	go b.pump(events, deliver, done)

	b.running = true
	b.done = done
	slog.Warn("[hook] uiohook backend observes keys only; blocking shortcuts still reach other applications")
	return nil
}

// Uninstall stops the event loop and waits for the pump goroutine to exit.
func (b *Backend) Uninstall() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false
	gohook.End()

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-b.done:
		return nil
	case <-timer.C:
		slog.Warn("[hook] DEBUG uiohook event pump did not stop in time")
		return fmt.Errorf("uiohook event pump stop timed out")
	}
}

func (b *Backend) pump(events chan gohook.Event, deliver hook.DeliverFunc, done chan struct{}) {
	defer close(done)
	for ev := range events {
		var down bool
		switch ev.Kind {
		case gohook.KeyHold:
			down = true
		case gohook.KeyUp:
			down = false
		default:
			continue
		}
		code, ok := translate(ev.Rawcode)
		if !ok {
			slog.Debug("[hook] unmapped native key code", "rawcode", ev.Rawcode)
			continue
		}
		if deliver(code, down) {
			b.blockOnce.Do(func() {
				slog.Info("[hook] key suppression requested but not available on this platform", "keyCode", code)
			})
		}
	}
}
