//go:build !windows

package main

import (
	"shiftygrid/internal/hook"
	"shiftygrid/internal/hook/uiohook"
)

// newPlatformHook observes keys through libuiohook. Shortcuts fire but the
// keystrokes still reach the focused application.
func newPlatformHook() *hook.Hook {
	return hook.NewWithBackend(uiohook.New())
}
