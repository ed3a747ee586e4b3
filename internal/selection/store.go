// Package selection holds the mutable selection and lock state for one
// blocked-users table view.
package selection

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store tracks the known username universe, the selected set, and the
// locked set. The central invariant is that a username is never locked and
// selected at the same time; every mutation preserves it.
//
// Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	order    []string // insertion order = row order at extraction time
	all      map[string]struct{}
	selected map[string]struct{}
	locked   map[string]struct{}
}

// NewStore returns an empty Store. The locked set is hydrated separately
// once persistence has loaded.
func NewStore() *Store {
	return &Store{
		all:      make(map[string]struct{}),
		selected: make(map[string]struct{}),
		locked:   make(map[string]struct{}),
	}
}

// SetAll replaces the username universe with the given usernames, keeping
// their order. Selection and lock state are untouched; callers that need
// the selected-subset invariant must Prune afterwards.
func (s *Store) SetAll(usernames []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = make([]string, 0, len(usernames))
	s.all = make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		if _, dup := s.all[u]; dup {
			continue
		}
		s.all[u] = struct{}{}
		s.order = append(s.order, u)
	}
}

// Prune drops selected usernames that are no longer in the universe.
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for u := range s.selected {
		if _, ok := s.all[u]; !ok {
			delete(s.selected, u)
		}
	}
}

// Select adds username to the selected set. Selecting a locked username is
// a silent no-op: the lock wins at the mutation boundary, not just in the
// rendered view.
func (s *Store) Select(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, lk := s.locked[username]; lk {
		return
	}
	s.selected[username] = struct{}{}
}

// Deselect removes username from the selected set.
func (s *Store) Deselect(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selected, username)
}

// Lock adds username to the locked set and removes it from the selected
// set in the same critical section, so observers never see both.
func (s *Store) Lock(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locked[username] = struct{}{}
	delete(s.selected, username)
}

// Unlock removes username from the locked set. It does not re-select.
func (s *Store) Unlock(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locked, username)
}

// ReplaceLocked swaps in a freshly hydrated locked set, clearing any
// selections that the new locks shadow.
func (s *Store) ReplaceLocked(usernames []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locked = make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		s.locked[u] = struct{}{}
		if _, sel := s.selected[u]; sel {
			log.Debug().Str("username", u).Msg("selection: hydrated lock cleared existing selection")
			delete(s.selected, u)
		}
	}
}

// ClearSelection empties the selected set.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]struct{})
}

// ToggleSelectAll sets the selection state of every visible, non-locked
// username to checked.
func (s *Store) ToggleSelectAll(visible []string, checked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range visible {
		if _, lk := s.locked[u]; lk {
			continue
		}
		if checked {
			s.selected[u] = struct{}{}
		} else {
			delete(s.selected, u)
		}
	}
}

// IsSelected reports whether username is currently selected.
func (s *Store) IsSelected(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[username]
	return ok
}

// IsLocked reports whether username is currently locked.
func (s *Store) IsLocked(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.locked[username]
	return ok
}

// Known reports whether username is in the current universe.
func (s *Store) Known(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.all[username]
	return ok
}

// All returns the username universe in extraction order.
func (s *Store) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Selected returns the selected usernames in extraction order. Usernames
// selected but no longer in the universe (i.e. before a Prune) are
// appended after the ordered ones.
func (s *Store) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.selected))
	seen := make(map[string]struct{}, len(s.selected))
	for _, u := range s.order {
		if _, ok := s.selected[u]; ok {
			out = append(out, u)
			seen[u] = struct{}{}
		}
	}
	for u := range s.selected {
		if _, ok := seen[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// Locked returns the locked usernames. Lock membership is independent of
// the current universe: a username may be locked before it ever appears.
func (s *Store) Locked() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.locked))
	seen := make(map[string]struct{}, len(s.locked))
	for _, u := range s.order {
		if _, ok := s.locked[u]; ok {
			out = append(out, u)
			seen[u] = struct{}{}
		}
	}
	for u := range s.locked {
		if _, ok := seen[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

// SelectedCount returns the number of selected usernames.
func (s *Store) SelectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected)
}
