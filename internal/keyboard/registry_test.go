package keyboard

import (
	"errors"
	"slices"
	"testing"

	"shiftygrid/internal/keys"
)

func mustShortcut(t *testing.T, id string, combo KeyCombination, action string, block bool) Shortcut {
	t.Helper()
	s, err := NewShortcut(id, combo, action, ScopeGlobal, block)
	if err != nil {
		t.Fatalf("NewShortcut(%q) error: %v", id, err)
	}
	return s
}

func shortcutIDs(list []Shortcut) []string {
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID())
	}
	slices.Sort(ids)
	return ids
}

func TestNewShortcutValidation(t *testing.T) {
	combo := Combination('A', keys.Control)
	if _, err := NewShortcut("", combo, "act", ScopeGlobal, false); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("empty id error = %v, want ErrEmptyID", err)
	}
	if _, err := NewShortcut("id", combo, " ", ScopeGlobal, false); !errors.Is(err, ErrEmptyActionID) {
		t.Fatalf("empty action error = %v, want ErrEmptyActionID", err)
	}
	if _, err := NewMode("", "Nameless", 0, true); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("empty mode id error = %v, want ErrEmptyID", err)
	}
}

func TestModeActivationShortcut(t *testing.T) {
	mode, err := NewMode("move_mode", "Move Mode", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	s := mode.ActivationShortcut(Combination('D', keys.Control|keys.Shift))
	if s.ActionID() != "enter_mode:move_mode" || s.ID() != "enter_mode:move_mode" {
		t.Fatalf("activation shortcut id/action = %q/%q", s.ID(), s.ActionID())
	}
	if !s.BlockKey() || s.ModeID() != "" || !s.IsModeActivation() {
		t.Fatalf("activation shortcut flags: block=%v mode=%q activation=%v", s.BlockKey(), s.ModeID(), s.IsModeActivation())
	}
	if id, ok := s.ActivatedMode(); !ok || id != "move_mode" {
		t.Fatalf("ActivatedMode() = %q, %v", id, ok)
	}
}

func TestRegistryFindMatches(t *testing.T) {
	one := Combination('1', keys.None)
	r := NewRegistry()
	r.Register(mustShortcut(t, "global-one", one, "global-action", true))
	r.Register(mustShortcut(t, "enter-other", one, "enter_mode:other_mode", true))
	r.Register(mustShortcut(t, "move-one", one, "move-mode-left-half", true).WithMode("move_mode"))
	r.Register(mustShortcut(t, "other-one", one, "other-action", true).WithMode("other_mode"))
	r.Register(mustShortcut(t, "global-two", Combination('2', keys.None), "two", true))

	tests := []struct {
		name   string
		combo  KeyCombination
		modeID string
		want   []string
	}{
		{name: "idle sees global and activation", combo: one, modeID: "", want: []string{"enter-other", "global-one"}},
		{name: "move mode sees own and activation", combo: one, modeID: "move_mode", want: []string{"enter-other", "move-one"}},
		{name: "other mode sees own and activation", combo: one, modeID: "other_mode", want: []string{"enter-other", "other-one"}},
		{name: "unknown mode sees activation only", combo: one, modeID: "ghost", want: []string{"enter-other"}},
		{name: "global suppressed in mode", combo: Combination('2', keys.None), modeID: "move_mode", want: []string{}},
		{name: "absent key", combo: Combination('9', keys.None), modeID: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.FindMatches(tt.combo, tt.modeID)
			if got == nil {
				t.Fatal("FindMatches returned nil")
			}
			if ids := shortcutIDs(got); !slices.Equal(ids, tt.want) {
				t.Fatalf("FindMatches ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestRegistryUnregisterAndClear(t *testing.T) {
	r := NewRegistry()
	r.Register(mustShortcut(t, "dup", Combination('A', keys.Control), "a", false))
	r.Register(mustShortcut(t, "dup", Combination('B', keys.Control), "b", false))
	r.Register(mustShortcut(t, "keep", Combination('A', keys.Control), "c", false))

	if n := r.Unregister("dup"); n != 2 {
		t.Fatalf("Unregister removed %d, want 2", n)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if got := shortcutIDs(r.FindMatches(Combination('A', keys.Control), "")); !slices.Equal(got, []string{"keep"}) {
		t.Fatalf("remaining matches = %v", got)
	}
	if got := r.FindMatches(Combination('B', keys.Control), ""); len(got) != 0 {
		t.Fatalf("unregistered key still matches: %v", shortcutIDs(got))
	}

	r.Clear()
	if r.Len() != 0 || len(r.Shortcuts()) != 0 {
		t.Fatalf("after Clear Len()=%d Shortcuts()=%d", r.Len(), len(r.Shortcuts()))
	}
}
