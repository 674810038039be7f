package hotkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"volwheel/internal/keys"
)

// Mapping is one configured rule: a normalized key combo and the audio
// target it routes wheel notches to. Construct only via NewMapping so the
// combo is guaranteed normalized and non-empty.
type Mapping struct {
	id      string
	combo   keys.Set
	display string
	target  Target
}

// NewMapping parses a combo spec like "Ctrl+Shift" and binds it to target.
// An empty id is replaced with a fresh UUID; ids are how the control surface
// addresses individual mappings for removal.
func NewMapping(id, comboSpec string, target Target) (Mapping, error) {
	combo, display, err := ParseCombo(comboSpec)
	if err != nil {
		return Mapping{}, err
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return Mapping{id: id, combo: combo, display: display, target: target}, nil
}

// ID returns the stable mapping identifier.
func (m Mapping) ID() string { return m.id }

// Combo returns the canonical combo display string, e.g. "Ctrl+Shift+V".
func (m Mapping) Combo() string { return m.display }

// Target returns the mapping's audio target.
func (m Mapping) Target() Target { return m.target }

// Matches reports whether the pressed set is exactly equal to the combo:
// same cardinality, same members. Supersets and subsets do not match, which
// keeps a combo from firing while extra keys are held or mid-transition.
func (m Mapping) Matches(pressed keys.Set) bool {
	return pressed.Equal(m.combo)
}

// ParseCombo parses a "+"-separated combo spec into a normalized key set and
// its canonical display string. Duplicate tokens (including left/right
// variants of the same modifier) collapse to one member.
func ParseCombo(spec string) (keys.Set, string, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return nil, "", fmt.Errorf("combo spec is empty")
	}
	set := make(keys.Set)
	for _, token := range strings.Split(raw, "+") {
		k, err := keys.ParseName(token)
		if err != nil {
			return nil, "", fmt.Errorf("combo %q: %w", raw, err)
		}
		set[k] = struct{}{}
	}
	if len(set) == 0 {
		return nil, "", fmt.Errorf("combo %q has no keys", raw)
	}
	return set, set.String(), nil
}
