package keyboard

import (
	"errors"
	"strings"
	"time"
)

// ModeActivationPrefix marks action ids that enter a mode: "enter_mode:<id>".
const ModeActivationPrefix = "enter_mode:"

var (
	// ErrEmptyID is returned when a shortcut or mode is built without an id.
	ErrEmptyID = errors.New("id must not be empty")
	// ErrEmptyActionID is returned when a shortcut is built without an action id.
	ErrEmptyActionID = errors.New("action id must not be empty")
)

// Scope controls where a shortcut applies. Per-application shortcuts are
// currently matched like global ones.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopePerApplication
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopePerApplication:
		return "per-application"
	default:
		return "unknown"
	}
}

// Shortcut binds a KeyCombination to an action id.
// Construct only via NewShortcut; values are immutable.
type Shortcut struct {
	id          string
	combination KeyCombination
	actionID    string
	scope       Scope
	blockKey    bool
	modeID      string
	exitMode    bool
}

// NewShortcut builds a shortcut that is not bound to any mode.
func NewShortcut(id string, combination KeyCombination, actionID string, scope Scope, blockKey bool) (Shortcut, error) {
	if strings.TrimSpace(id) == "" {
		return Shortcut{}, ErrEmptyID
	}
	if strings.TrimSpace(actionID) == "" {
		return Shortcut{}, ErrEmptyActionID
	}
	return Shortcut{
		id:          id,
		combination: combination,
		actionID:    actionID,
		scope:       scope,
		blockKey:    blockKey,
	}, nil
}

func (s Shortcut) ID() string { return s.id }
func (s Shortcut) Combination() KeyCombination { return s.combination }
func (s Shortcut) ActionID() string { return s.actionID }
func (s Shortcut) Scope() Scope { return s.scope }
func (s Shortcut) BlockKey() bool { return s.blockKey }

// ModeID returns the owning mode id, or "" for shortcuts outside any mode.
func (s Shortcut) ModeID() string { return s.modeID }

// ExitMode reports whether triggering the shortcut leaves its mode.
func (s Shortcut) ExitMode() bool { return s.exitMode }

// WithMode returns a copy of s bound to modeID.
func (s Shortcut) WithMode(modeID string) Shortcut {
	s.modeID = modeID
	return s
}

// WithExitMode returns a copy of s with the exit-mode flag set to exit.
func (s Shortcut) WithExitMode(exit bool) Shortcut {
	s.exitMode = exit
	return s
}

// ActivatedMode returns the mode id named by an "enter_mode:" action.
func (s Shortcut) ActivatedMode() (string, bool) {
	rest, ok := strings.CutPrefix(s.actionID, ModeActivationPrefix)
	if !ok {
		return "", false
	}
	return rest, true
}

// IsModeActivation reports whether the shortcut's action enters a mode.
func (s Shortcut) IsModeActivation() bool {
	return strings.HasPrefix(s.actionID, ModeActivationPrefix)
}

// Mode is a named, temporary shortcut context.
// Construct only via NewMode; values are immutable.
type Mode struct {
	id          string
	name        string
	timeout     time.Duration
	allowEscape bool
	shortcuts   []Shortcut
}

// NewMode builds a mode. A timeout <= 0 disables the inactivity timeout.
func NewMode(id, name string, timeout time.Duration, allowEscape bool, shortcuts ...Shortcut) (Mode, error) {
	if strings.TrimSpace(id) == "" {
		return Mode{}, ErrEmptyID
	}
	if name == "" {
		name = id
	}
	return Mode{
		id:          id,
		name:        name,
		timeout:     timeout,
		allowEscape: allowEscape,
		shortcuts:   append([]Shortcut(nil), shortcuts...),
	}, nil
}

func (m Mode) ID() string { return m.id }
func (m Mode) Name() string { return m.name }
func (m Mode) Timeout() time.Duration { return m.timeout }
func (m Mode) AllowEscape() bool { return m.allowEscape }
func (m Mode) HasTimeout() bool { return m.timeout > 0 }
func (m Mode) Shortcuts() []Shortcut { return append([]Shortcut(nil), m.shortcuts...) }
func (m Mode) IsZero() bool { return m.id == "" }

// ActivationShortcut returns the global shortcut that enters m when combination
// is pressed. The key is always blocked.
func (m Mode) ActivationShortcut(combination KeyCombination) Shortcut {
	id := ModeActivationPrefix + m.id
	return Shortcut{
		id:          id,
		combination: combination,
		actionID:    id,
		scope:       ScopeGlobal,
		blockKey:    true,
	}
}

// ExitReason tells listeners why a mode was left.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitTimeout
	ExitCancelled
	ExitNewMode
	ExitCompleted
)

func (r ExitReason) String() string {
	switch r {
	case ExitNone:
		return "none"
	case ExitTimeout:
		return "timeout"
	case ExitCancelled:
		return "cancelled"
	case ExitNewMode:
		return "new_mode"
	case ExitCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ModeEvent is delivered to mode listeners.
type ModeEvent struct {
	Mode   Mode
	Reason ExitReason
}

// ShortcutEvent is delivered to ShortcutTriggered listeners.
type ShortcutEvent struct {
	Shortcut Shortcut
	ModeID   string // mode active when the shortcut matched, "" if none
	At       time.Time
}
