//go:build windows

package main

import "shiftygrid/internal/hook"

func newPlatformHook() *hook.Hook {
	return hook.New()
}
