//go:build darwin

package uiohook

import "shiftygrid/internal/keys"

// macOS virtual key codes (kVK_* from HIToolbox/Events.h).
var kvkToVK = map[uint16]int{
	0x00: 'A', 0x0B: 'B', 0x08: 'C', 0x02: 'D', 0x0E: 'E', 0x03: 'F',
	0x05: 'G', 0x04: 'H', 0x22: 'I', 0x26: 'J', 0x28: 'K', 0x25: 'L',
	0x2E: 'M', 0x2D: 'N', 0x1F: 'O', 0x23: 'P', 0x0C: 'Q', 0x0F: 'R',
	0x01: 'S', 0x11: 'T', 0x20: 'U', 0x09: 'V', 0x0D: 'W', 0x07: 'X',
	0x10: 'Y', 0x06: 'Z',

	0x1D: '0', 0x12: '1', 0x13: '2', 0x14: '3', 0x15: '4',
	0x17: '5', 0x16: '6', 0x1A: '7', 0x1C: '8', 0x19: '9',

	0x24: keys.VKReturn,
	0x30: keys.VKTab,
	0x31: keys.VKSpace,
	0x33: keys.VKBack,
	0x35: keys.VKEscape,
	0x39: keys.VKCapital,
	0x75: keys.VKDelete,
	0x73: keys.VKHome,
	0x77: keys.VKEnd,
	0x74: keys.VKPrior,
	0x79: keys.VKNext,
	0x7B: keys.VKLeft,
	0x7C: keys.VKRight,
	0x7D: keys.VKDown,
	0x7E: keys.VKUp,

	0x38: keys.VKLShift,
	0x3C: keys.VKRShift,
	0x3B: keys.VKLControl,
	0x3E: keys.VKRControl,
	0x3A: keys.VKLMenu,
	0x3D: keys.VKRMenu,
	0x37: keys.VKLWin,
	0x36: keys.VKRWin,

	0x18: keys.VKOEMPlus,
	0x1B: keys.VKOEMMinus,
	0x2B: keys.VKOEMComma,
	0x2F: keys.VKOEMPeriod,
	0x29: keys.VKOEM1,
	0x2C: keys.VKOEM2,
	0x32: keys.VKOEM3,
	0x21: keys.VKOEM4,
	0x2A: keys.VKOEM5,
	0x1E: keys.VKOEM6,
	0x27: keys.VKOEM7,

	0x7A: keys.VKF1, 0x78: keys.VKF1 + 1, 0x63: keys.VKF1 + 2, 0x76: keys.VKF1 + 3,
	0x60: keys.VKF1 + 4, 0x61: keys.VKF1 + 5, 0x62: keys.VKF1 + 6, 0x64: keys.VKF1 + 7,
	0x65: keys.VKF1 + 8, 0x6D: keys.VKF1 + 9, 0x67: keys.VKF1 + 10, 0x6F: keys.VKF1 + 11,
}

func translate(raw uint16) (int, bool) {
	code, ok := kvkToVK[raw]
	return code, ok
}
