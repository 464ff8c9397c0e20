package keys

import (
	"fmt"
	"strconv"
	"strings"
)

var modifierByName = map[string]Modifiers{
	"CTRL":    Control,
	"CONTROL": Control,
	"SHIFT":   Shift,
	"ALT":     Alt,
	"MENU":    Alt,
	"WIN":     Win,
	"SUPER":   Win,
	"META":    Win,
	"CMD":     Win,
}

var keyByName = map[string]int{
	"BACKSPACE": VKBack,
	"TAB":       VKTab,
	"ENTER":     VKReturn,
	"RETURN":    VKReturn,
	"PAUSE":     VKPause,
	"CAPSLOCK":  VKCapital,
	"ESC":       VKEscape,
	"ESCAPE":    VKEscape,
	"SPACE":     VKSpace,
	"PAGEUP":    VKPrior,
	"PAGEDOWN":  VKNext,
	"END":       VKEnd,
	"HOME":      VKHome,
	"LEFT":      VKLeft,
	"UP":        VKUp,
	"RIGHT":     VKRight,
	"DOWN":      VKDown,
	"PRINT":     VKSnapshot,
	"INSERT":    VKInsert,
	"DELETE":    VKDelete,
	"DEL":       VKDelete,
	"APPS":      VKApps,

	"SHIFTKEY": VKShift,
	"CTRLKEY":  VKControl,
	"ALTKEY":   VKMenu,
	"LSHIFT":   VKLShift,
	"RSHIFT":   VKRShift,
	"LCTRL":    VKLControl,
	"RCTRL":    VKRControl,
	"LALT":     VKLMenu,
	"RALT":     VKRMenu,
	"LWIN":     VKLWin,
	"RWIN":     VKRWin,

	"PLUS":      VKOEMPlus,
	"EQUALS":    VKOEMPlus,
	"MINUS":     VKOEMMinus,
	"COMMA":     VKOEMComma,
	"PERIOD":    VKOEMPeriod,
	"SEMICOLON": VKOEM1,
	"SLASH":     VKOEM2,
	"BACKQUOTE": VKOEM3,
	"GRAVE":     VKOEM3,
	"LBRACKET":  VKOEM4,
	"BACKSLASH": VKOEM5,
	"RBRACKET":  VKOEM6,
	"QUOTE":     VKOEM7,
}

var keyBySymbol = map[byte]int{
	'=':  VKOEMPlus,
	'-':  VKOEMMinus,
	',':  VKOEMComma,
	'.':  VKOEMPeriod,
	';':  VKOEM1,
	'/':  VKOEM2,
	'`':  VKOEM3,
	'[':  VKOEM4,
	'\\': VKOEM5,
	']':  VKOEM6,
	'\'': VKOEM7,
}

// nameByKey holds the canonical display name for named keys.
var nameByKey = map[int]string{
	VKBack:      "Backspace",
	VKTab:       "Tab",
	VKReturn:    "Enter",
	VKPause:     "Pause",
	VKCapital:   "CapsLock",
	VKEscape:    "Esc",
	VKSpace:     "Space",
	VKPrior:     "PageUp",
	VKNext:      "PageDown",
	VKEnd:       "End",
	VKHome:      "Home",
	VKLeft:      "Left",
	VKUp:        "Up",
	VKRight:     "Right",
	VKDown:      "Down",
	VKSnapshot:  "Print",
	VKInsert:    "Insert",
	VKDelete:    "Delete",
	VKApps:      "Apps",
	VKShift:     "ShiftKey",
	VKControl:   "CtrlKey",
	VKMenu:      "AltKey",
	VKLShift:    "LShift",
	VKRShift:    "RShift",
	VKLControl:  "LCtrl",
	VKRControl:  "RCtrl",
	VKLMenu:     "LAlt",
	VKRMenu:     "RAlt",
	VKLWin:      "LWin",
	VKRWin:      "RWin",
	VKOEMPlus:   "=",
	VKOEMMinus:  "-",
	VKOEMComma:  ",",
	VKOEMPeriod: ".",
	VKOEM1:      ";",
	VKOEM2:      "/",
	VKOEM3:      "`",
	VKOEM4:      "[",
	VKOEM5:      "\\",
	VKOEM6:      "]",
	VKOEM7:      "'",
}

// ParseModifier resolves a modifier token such as "Ctrl" or "Win".
func ParseModifier(token string) (Modifiers, bool) {
	mod, ok := modifierByName[strings.ToUpper(strings.TrimSpace(token))]
	return mod, ok
}

// ParseKey resolves a key token such as "A", "1", "Left", "F12", "LShift",
// "=" or a hex code like "0xBB".
func ParseKey(raw string) (int, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, fmt.Errorf("missing key token")
	}

	if code, ok := keyByName[token]; ok {
		return code, nil
	}

	if len(token) == 1 {
		ch := token[0]
		if ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' {
			return int(ch), nil
		}
		if code, ok := keyBySymbol[ch]; ok {
			return code, nil
		}
	}

	if len(token) >= 2 && token[0] == 'F' {
		if n, err := strconv.Atoi(token[1:]); err == nil && n >= 1 && n <= 24 {
			return VKF1 + n - 1, nil
		}
	}

	if strings.HasPrefix(token, "0X") {
		value, err := strconv.ParseUint(token[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid hex key %q", raw)
		}
		if value == 0 {
			return 0, fmt.Errorf("key code 0x00 is not a valid virtual key")
		}
		return int(value), nil
	}

	return 0, fmt.Errorf("unknown key %q", raw)
}

// KeyName returns a human-readable name for code. Codes without a name are
// rendered as hex ("0x3A").
func KeyName(code int) string {
	if name, ok := nameByKey[code]; ok {
		return name
	}
	if code >= 'A' && code <= 'Z' || code >= '0' && code <= '9' {
		return string(rune(code))
	}
	if code >= VKF1 && code <= VKF24 {
		return "F" + strconv.Itoa(code-VKF1+1)
	}
	return fmt.Sprintf("0x%02X", code)
}
