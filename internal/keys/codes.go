package keys

// Windows virtual-key codes. Letters and digits use their ASCII value
// ('A'..'Z' = 0x41..0x5A, '0'..'9' = 0x30..0x39).
const (
	VKBack     = 0x08
	VKTab      = 0x09
	VKReturn   = 0x0D
	VKShift    = 0x10
	VKControl  = 0x11
	VKMenu     = 0x12
	VKPause    = 0x13
	VKCapital  = 0x14
	VKEscape   = 0x1B
	VKSpace    = 0x20
	VKPrior    = 0x21
	VKNext     = 0x22
	VKEnd      = 0x23
	VKHome     = 0x24
	VKLeft     = 0x25
	VKUp       = 0x26
	VKRight    = 0x27
	VKDown     = 0x28
	VKSnapshot = 0x2C
	VKInsert   = 0x2D
	VKDelete   = 0x2E

	VKLWin = 0x5B
	VKRWin = 0x5C
	VKApps = 0x5D

	VKNumpad0  = 0x60
	VKMultiply = 0x6A
	VKAdd      = 0x6B
	VKSubtract = 0x6D
	VKDecimal  = 0x6E
	VKDivide   = 0x6F

	VKF1  = 0x70
	VKF24 = 0x87

	VKLShift   = 0xA0
	VKRShift   = 0xA1
	VKLControl = 0xA2
	VKRControl = 0xA3
	VKLMenu    = 0xA4
	VKRMenu    = 0xA5

	VKOEM1      = 0xBA // ;:
	VKOEMPlus   = 0xBB // =+
	VKOEMComma  = 0xBC
	VKOEMMinus  = 0xBD
	VKOEMPeriod = 0xBE
	VKOEM2      = 0xBF // /?
	VKOEM3      = 0xC0 // `~
	VKOEM4      = 0xDB // [{
	VKOEM5      = 0xDC // \|
	VKOEM6      = 0xDD // ]}
	VKOEM7      = 0xDE // '"
)
