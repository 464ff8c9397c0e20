package keyboard

import (
	"fmt"
	"strings"

	"shiftygrid/internal/keys"
)

// KeyCombination identifies a trigger: either a key pressed with a set of
// modifiers, or a double-tap of a modifier key optionally followed by a key.
//
// KeyCombination is comparable; two values are equal exactly when all fields
// are equal, so it is safe to use as a map key.
type KeyCombination struct {
	key          int
	modifiers    keys.Modifiers
	doubleTap    bool
	doubleTapKey int
}

// Combination returns a regular combination of key plus modifiers.
func Combination(key int, modifiers keys.Modifiers) KeyCombination {
	return KeyCombination{key: key, modifiers: modifiers}
}

// DoubleTap returns a double-tap combination of tapKey. followUp is the key
// pressed after the double-tap, or 0 for a bare double-tap.
func DoubleTap(tapKey, followUp int) KeyCombination {
	return KeyCombination{key: followUp, doubleTap: true, doubleTapKey: tapKey}
}

// Key returns the main key (the follow-up key for double-tap combinations).
func (c KeyCombination) Key() int { return c.key }

// Modifiers returns the required modifier set.
func (c KeyCombination) Modifiers() keys.Modifiers { return c.modifiers }

// IsDoubleTap reports whether c is a double-tap combination.
func (c KeyCombination) IsDoubleTap() bool { return c.doubleTap }

// DoubleTapKey returns the tapped modifier code of a double-tap combination.
func (c KeyCombination) DoubleTapKey() int { return c.doubleTapKey }

// String renders the diagnostic form: "CTRL+ALT+VK25", "2xVKA0", "2xVKA0+VK31".
func (c KeyCombination) String() string {
	if c.doubleTap {
		s := "2x" + vkString(c.doubleTapKey)
		if c.key != 0 {
			s += "+" + vkString(c.key)
		}
		return s
	}
	if mods := c.modifiers.String(); mods != "" {
		return mods + "+" + vkString(c.key)
	}
	return vkString(c.key)
}

// DisplayName renders a human-readable form such as "Ctrl+Alt+Left" or
// "2xLShift+1". The result is accepted by ParseCombination.
func (c KeyCombination) DisplayName() string {
	if c.doubleTap {
		s := "2x" + keys.KeyName(c.doubleTapKey)
		if c.key != 0 {
			s += "+" + keys.KeyName(c.key)
		}
		return s
	}
	parts := make([]string, 0, 5)
	if c.modifiers.Has(keys.Control) {
		parts = append(parts, "Ctrl")
	}
	if c.modifiers.Has(keys.Alt) {
		parts = append(parts, "Alt")
	}
	if c.modifiers.Has(keys.Shift) {
		parts = append(parts, "Shift")
	}
	if c.modifiers.Has(keys.Win) {
		parts = append(parts, "Win")
	}
	parts = append(parts, keys.KeyName(c.key))
	return strings.Join(parts, "+")
}

func vkString(code int) string {
	return fmt.Sprintf("VK%02X", code)
}

// ParseCombination parses "Ctrl+Alt+Left", "1", "Shift+Alt+Up",
// "2xLShift" or "2xLShift+1". Modifier and key names are case-insensitive.
func ParseCombination(text string) (KeyCombination, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return KeyCombination{}, fmt.Errorf("key combination is empty")
	}

	if rest, ok := cutDoubleTapPrefix(raw); ok {
		tapToken, followToken, hasFollow := strings.Cut(rest, "+")
		tapKey, err := keys.ParseKey(tapToken)
		if err != nil {
			return KeyCombination{}, fmt.Errorf("double-tap key in %q: %w", raw, err)
		}
		if !keys.IsModifier(tapKey) {
			return KeyCombination{}, fmt.Errorf("double-tap key in %q must be a modifier key", raw)
		}
		follow := 0
		if hasFollow {
			follow, err = keys.ParseKey(followToken)
			if err != nil {
				return KeyCombination{}, fmt.Errorf("follow-up key in %q: %w", raw, err)
			}
			if keys.IsModifier(follow) {
				return KeyCombination{}, fmt.Errorf("follow-up key in %q must not be a modifier key", raw)
			}
		}
		return DoubleTap(tapKey, follow), nil
	}

	parts := strings.Split(raw, "+")
	// "Ctrl++" names the plus key.
	if strings.HasSuffix(raw, "++") {
		parts = append(parts[:len(parts)-2], "+")
	}

	var modifiers keys.Modifiers
	for _, token := range parts[:len(parts)-1] {
		mod, ok := keys.ParseModifier(token)
		if !ok {
			return KeyCombination{}, fmt.Errorf("unknown modifier %q in %q", token, raw)
		}
		modifiers |= mod
	}

	keyToken := parts[len(parts)-1]
	if keyToken == "+" {
		keyToken = "="
	}
	key, err := keys.ParseKey(keyToken)
	if err != nil {
		return KeyCombination{}, fmt.Errorf("key in %q: %w", raw, err)
	}
	return Combination(key, modifiers), nil
}

func cutDoubleTapPrefix(raw string) (string, bool) {
	if len(raw) > 2 && raw[0] == '2' && (raw[1] == 'x' || raw[1] == 'X') {
		return raw[2:], true
	}
	return raw, false
}
