//go:build !darwin && !windows

package uiohook

import "shiftygrid/internal/keys"

// X11 keysyms outside the printable ASCII range.
var keysymToVK = map[uint16]int{
	0xff08: keys.VKBack,
	0xff09: keys.VKTab,
	0xff0d: keys.VKReturn,
	0xff13: keys.VKPause,
	0xff1b: keys.VKEscape,
	0xff50: keys.VKHome,
	0xff51: keys.VKLeft,
	0xff52: keys.VKUp,
	0xff53: keys.VKRight,
	0xff54: keys.VKDown,
	0xff55: keys.VKPrior,
	0xff56: keys.VKNext,
	0xff57: keys.VKEnd,
	0xff61: keys.VKSnapshot,
	0xff63: keys.VKInsert,
	0xff67: keys.VKApps,
	0xffe1: keys.VKLShift,
	0xffe2: keys.VKRShift,
	0xffe3: keys.VKLControl,
	0xffe4: keys.VKRControl,
	0xffe5: keys.VKCapital,
	0xffe9: keys.VKLMenu,
	0xffea: keys.VKRMenu,
	0xffeb: keys.VKLWin,
	0xffec: keys.VKRWin,
	0xffff: keys.VKDelete,

	'=':  keys.VKOEMPlus,
	'-':  keys.VKOEMMinus,
	',':  keys.VKOEMComma,
	'.':  keys.VKOEMPeriod,
	';':  keys.VKOEM1,
	'/':  keys.VKOEM2,
	'`':  keys.VKOEM3,
	'[':  keys.VKOEM4,
	'\\': keys.VKOEM5,
	']':  keys.VKOEM6,
	'\'': keys.VKOEM7,
}

func translate(raw uint16) (int, bool) {
	switch {
	case raw >= 'a' && raw <= 'z':
		return int(raw-'a') + 'A', true
	case raw >= 'A' && raw <= 'Z', raw >= '0' && raw <= '9', raw == ' ':
		return int(raw), true
	case raw >= 0xffbe && raw <= 0xffd5: // F1..F24
		return keys.VKF1 + int(raw-0xffbe), true
	}
	code, ok := keysymToVK[raw]
	return code, ok
}
