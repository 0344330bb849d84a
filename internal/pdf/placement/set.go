// Package placement holds the field content of a signing session and the
// single-selection rules for radio groups.
package placement

import (
	"sort"
	"sync"

	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
)

// Set maps field IDs to their placement. A field has at most one placement
// and Put replaces any previous one.
type Set struct {
	mu    sync.RWMutex
	items map[string]form.Placement
}

// NewSet creates an empty placement set
func NewSet() *Set {
	return &Set{items: make(map[string]form.Placement)}
}

// Put binds p to fieldID, replacing any prior placement
func (s *Set) Put(fieldID string, p form.Placement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[fieldID] = p
}

// Get returns the placement for fieldID
func (s *Set) Get(fieldID string) (form.Placement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[fieldID]
	return p, ok
}

// Delete removes the placement for fieldID and reports whether one existed
func (s *Set) Delete(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[fieldID]
	delete(s.items, fieldID)
	return ok
}

// Update runs fn with exclusive access to the underlying map, so several
// fields can change as one step
func (s *Set) Update(fn func(items map[string]form.Placement)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.items)
}

// Snapshot returns a copy of all placements
func (s *Set) Snapshot() map[string]form.Placement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]form.Placement, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// IDs returns the sorted IDs of filled fields
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Missing returns the IDs of the requirements none of whose fields has a
// placement, keeping their order
func (s *Set) Missing(required []form.Requirement) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for _, r := range required {
		if !s.anyPlaced(r.AnyOf) {
			missing = append(missing, r.ID)
		}
	}
	return missing
}

func (s *Set) anyPlaced(ids []string) bool {
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			return true
		}
	}
	return false
}
