package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultStep is the per-notch volume change applied when no step is
	// configured.
	DefaultStep = 0.05
	// MinStep and MaxStep bound the configurable per-notch step.
	MinStep = 0.01
	MaxStep = 0.50
)

// ErrMappingNotFound is returned by Remove for an unknown mapping id.
var ErrMappingNotFound = errors.New("mapping not found")

// Store owns the loaded mapping collection and the volume step. The hook
// callback reads snapshots; mutation happens only through the control
// surface (ipc commands, settings reload), so reads never iterate a
// collection mid-mutation.
type Store struct {
	mu       sync.RWMutex
	step     float64
	mappings []Mapping
}

// NewStore builds a store with the given step and mappings. The step is
// clamped into [MinStep, MaxStep]; zero selects DefaultStep.
func NewStore(step float64, mappings []Mapping) *Store {
	s := &Store{}
	s.Replace(step, mappings)
	return s
}

// ClampStep normalizes a configured step value: zero (unset) becomes
// DefaultStep, out-of-range values are clamped to the nearest bound.
func ClampStep(step float64) float64 {
	if step == 0 {
		return DefaultStep
	}
	if step < MinStep {
		return MinStep
	}
	if step > MaxStep {
		return MaxStep
	}
	return step
}

// Step returns the current per-notch volume step.
func (s *Store) Step() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// SetStep updates the per-notch volume step, rejecting out-of-range values.
func (s *Store) SetStep(step float64) error {
	if step < MinStep || step > MaxStep {
		return fmt.Errorf("step %.3f out of range [%.2f, %.2f]", step, MinStep, MaxStep)
	}
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the mapping list safe to iterate while the
// collection is concurrently mutated.
func (s *Store) Snapshot() []Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mapping, len(s.mappings))
	copy(out, s.mappings)
	return out
}

// Add appends a mapping. Identical combos are allowed: every match fires at
// event time, so a duplicate is only warned about, not rejected.
func (s *Store) Add(m Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.mappings {
		if existing.Combo() == m.Combo() {
			slog.Warn("[hotkey] duplicate combo configured; all matches will fire",
				"combo", m.Combo(), "existingTarget", existing.Target().String(), "newTarget", m.Target().String())
			break
		}
	}
	s.mappings = append(s.mappings, m)
}

// Remove deletes the mapping with the given id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.mappings {
		if m.ID() == id {
			s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
			return nil
		}
	}
	return ErrMappingNotFound
}

// Replace swaps the entire configuration in one step, used by settings
// reload. Duplicate combos are preserved but logged.
func (s *Store) Replace(step float64, mappings []Mapping) {
	warnDuplicateCombos(mappings)
	next := make([]Mapping, len(mappings))
	copy(next, mappings)

	s.mu.Lock()
	s.step = ClampStep(step)
	s.mappings = next
	s.mu.Unlock()
}

func warnDuplicateCombos(mappings []Mapping) {
	seen := make(map[string]int, len(mappings))
	for _, m := range mappings {
		seen[m.Combo()]++
	}
	for combo, n := range seen {
		if n > 1 {
			slog.Warn("[hotkey] duplicate combo configured; all matches will fire",
				"combo", combo, "count", n)
		}
	}
}
