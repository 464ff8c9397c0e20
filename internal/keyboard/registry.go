package keyboard

import "sync"

// Registry indexes shortcuts by KeyCombination and resolves which of them
// apply in the current mode context.
type Registry struct {
	mu     sync.Mutex
	byKey  map[KeyCombination][]Shortcut
	length int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[KeyCombination][]Shortcut)}
}

// Register adds s. Several shortcuts may share a combination; they are kept
// in registration order.
func (r *Registry) Register(s Shortcut) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := s.Combination()
	r.byKey[key] = append(r.byKey[key], s)
	r.length++
}

// Unregister removes every shortcut with the given id and reports how many
// were removed.
func (r *Registry) Unregister(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, list := range r.byKey {
		kept := list[:0:0]
		for _, s := range list {
			if s.ID() == id {
				removed++
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(r.byKey, key)
		} else {
			r.byKey[key] = kept
		}
	}
	r.length -= removed
	return removed
}

// FindMatches returns the shortcuts registered for combination that apply
// while activeModeID is active ("" when no mode is active).
//
// Inside a mode only the mode's own shortcuts and mode-activation shortcuts
// match; other global shortcuts are suppressed. Outside any mode only
// shortcuts without a mode match. The result is never nil.
func (r *Registry) FindMatches(combination KeyCombination, activeModeID string) []Shortcut {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byKey[combination]
	matches := make([]Shortcut, 0, len(list))
	for _, s := range list {
		if activeModeID != "" {
			if s.ModeID() == activeModeID || (s.ModeID() == "" && s.IsModeActivation()) {
				matches = append(matches, s)
			}
			continue
		}
		if s.ModeID() == "" {
			matches = append(matches, s)
		}
	}
	return matches
}

// Clear removes every shortcut.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.byKey)
	r.length = 0
}

// Len returns the number of registered shortcuts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.length
}

// Shortcuts returns a snapshot of every registered shortcut.
func (r *Registry) Shortcuts() []Shortcut {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]Shortcut, 0, r.length)
	for _, list := range r.byKey {
		all = append(all, list...)
	}
	return all
}
