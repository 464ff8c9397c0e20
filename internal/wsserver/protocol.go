// Package wsserver streams engine events to a local WebSocket client, such as
// an on-screen overlay that shows the keys available in the active mode.
//
// # Event frames
//
// Every frame is a JSON text message with a "type" field:
//
//   - "shortcut": a shortcut fired (shortcut, action, keys, mode).
//   - "mode_entered": a mode became active (mode, modeName, hints).
//   - "mode_exited": the active mode ended (mode, reason).
//   - "log": a warning or error was logged (level, message).
//   - "message": text sent with the CLI message command.
//
// A new client receives every type. It may send
// {"action":"unsubscribe","types":["log"]} or the matching "subscribe" to
// narrow or widen the stream.
package wsserver

import (
	"encoding/json"
	"fmt"
	"time"

	"shiftygrid/internal/keyboard"
	"shiftygrid/internal/logging"
)

// Event types.
const (
	EventShortcut    = "shortcut"
	EventModeEntered = "mode_entered"
	EventModeExited  = "mode_exited"
	EventLog         = "log"
	EventMessage     = "message"
)

var eventTypes = []string{EventShortcut, EventModeEntered, EventModeExited, EventLog, EventMessage}

// Hint describes one key available in an entered mode.
type Hint struct {
	Keys   string `json:"keys"`
	Action string `json:"action"`
	Exits  bool   `json:"exits,omitempty"`
}

// Event is a single frame sent to the client.
type Event struct {
	Type     string    `json:"type"`
	Time     time.Time `json:"time"`
	Shortcut string    `json:"shortcut,omitempty"`
	Action   string    `json:"action,omitempty"`
	Keys     string    `json:"keys,omitempty"`
	Mode     string    `json:"mode,omitempty"`
	ModeName string    `json:"modeName,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Level    string    `json:"level,omitempty"`
	Message  string    `json:"message,omitempty"`
	Hints    []Hint    `json:"hints,omitempty"`
}

// ShortcutEvent converts a triggered shortcut.
func ShortcutEvent(ev keyboard.ShortcutEvent) Event {
	return Event{
		Type:     EventShortcut,
		Time:     ev.At,
		Shortcut: ev.Shortcut.ID(),
		Action:   ev.Shortcut.ActionID(),
		Keys:     ev.Shortcut.Combination().String(),
		Mode:     ev.ModeID,
	}
}

// ModeEnteredEvent converts a mode entry. Hints list the mode's shortcuts in
// registration order.
func ModeEnteredEvent(ev keyboard.ModeEvent) Event {
	shortcuts := ev.Mode.Shortcuts()
	hints := make([]Hint, 0, len(shortcuts))
	for _, s := range shortcuts {
		hints = append(hints, Hint{Keys: s.Combination().String(), Action: s.ActionID(), Exits: s.ExitMode()})
	}
	return Event{
		Type:     EventModeEntered,
		Time:     time.Now(),
		Mode:     ev.Mode.ID(),
		ModeName: ev.Mode.Name(),
		Hints:    hints,
	}
}

// ModeExitedEvent converts a mode exit.
func ModeExitedEvent(ev keyboard.ModeEvent) Event {
	return Event{
		Type:   EventModeExited,
		Time:   time.Now(),
		Mode:   ev.Mode.ID(),
		Reason: ev.Reason.String(),
	}
}

// LogEvent converts a mirrored log record.
func LogEvent(entry logging.Entry) Event {
	return Event{
		Type:    EventLog,
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
	}
}

// MessageEvent wraps free text.
func MessageEvent(text string) Event {
	return Event{Type: EventMessage, Time: time.Now(), Message: text}
}

// EncodeEvent marshals ev into a text frame payload.
func EncodeEvent(ev Event) ([]byte, error) {
	if ev.Type == "" {
		return nil, fmt.Errorf("wsserver: encode event: type must not be empty")
	}
	return json.Marshal(ev)
}
