// Package keys defines virtual-key codes and modifier flags shared by the hook
// layer and the shortcut engine.
//
// Key codes are Windows virtual-key codes on every platform. Backends for other
// operating systems translate their native codes into this space.
package keys

import "strings"

// Modifiers is a bit set of the modifier groups currently held.
// Left, right and generic codes of the same modifier collapse into one flag.
type Modifiers uint8

const (
	None    Modifiers = 0
	Control Modifiers = 1
	Alt     Modifiers = 2
	Shift   Modifiers = 4
	Win     Modifiers = 8
)

// Has reports whether every flag in other is set in m.
func (m Modifiers) Has(other Modifiers) bool { return m&other == other }

// String renders the set in CTRL+ALT+SHIFT+WIN order, or "" for None.
func (m Modifiers) String() string {
	if m == None {
		return ""
	}
	parts := make([]string, 0, 4)
	if m.Has(Control) {
		parts = append(parts, "CTRL")
	}
	if m.Has(Alt) {
		parts = append(parts, "ALT")
	}
	if m.Has(Shift) {
		parts = append(parts, "SHIFT")
	}
	if m.Has(Win) {
		parts = append(parts, "WIN")
	}
	return strings.Join(parts, "+")
}

// ModifierFor returns the modifier flag a key code belongs to, or None when
// the code is not a modifier key.
func ModifierFor(code int) Modifiers {
	switch code {
	case VKShift, VKLShift, VKRShift:
		return Shift
	case VKControl, VKLControl, VKRControl:
		return Control
	case VKMenu, VKLMenu, VKRMenu:
		return Alt
	case VKLWin, VKRWin:
		return Win
	default:
		return None
	}
}

// IsModifier reports whether code is one of the tracked modifier keys.
func IsModifier(code int) bool { return ModifierFor(code) != None }

// Generic maps a sided modifier code to its generic code. Win has no generic
// virtual key, so Win codes and non-modifiers are returned as is.
func Generic(code int) int {
	switch code {
	case VKLShift, VKRShift:
		return VKShift
	case VKLControl, VKRControl:
		return VKControl
	case VKLMenu, VKRMenu:
		return VKMenu
	default:
		return code
	}
}
