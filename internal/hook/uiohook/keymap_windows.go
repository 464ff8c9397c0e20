//go:build windows

package uiohook

// libuiohook reports Windows virtual-key codes as raw codes.
func translate(raw uint16) (int, bool) {
	return int(raw), raw != 0
}
