package keys

import (
	"sort"
	"strings"
)

// Set is a collection of normalized key identities. The zero value is an
// empty set; construct via NewSet to guarantee members are normalized.
type Set map[Key]struct{}

// NewSet builds a Set from raw key codes, normalizing each member. Toggle
// keys are dropped.
func NewSet(ks ...Key) Set {
	s := make(Set, len(ks))
	for _, k := range ks {
		if IsToggle(k) {
			continue
		}
		s[Normalize(k)] = struct{}{}
	}
	return s
}

// Contains reports whether the canonical identity of k is in the set.
func (s Set) Contains(k Key) bool {
	_, ok := s[Normalize(k)]
	return ok
}

// Equal reports exact set equality: same cardinality, same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// String renders the set in canonical display order (modifiers first, then
// remaining keys sorted by name), joined with "+".
func (s Set) String() string {
	return strings.Join(s.SortedNames(), "+")
}

// SortedNames returns the display names of all members in canonical order:
// Ctrl, Shift, Alt, Win, then other keys sorted alphabetically.
func (s Set) SortedNames() []string {
	modOrder := []Key{Control, Shift, Alt, LeftWin}
	names := make([]string, 0, len(s))
	for _, m := range modOrder {
		if _, ok := s[m]; ok {
			names = append(names, NameOf(m))
		}
	}
	var rest []string
	for k := range s {
		if IsModifier(k) {
			continue
		}
		rest = append(rest, NameOf(k))
	}
	sort.Strings(rest)
	return append(names, rest...)
}
