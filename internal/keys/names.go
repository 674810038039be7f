package keys

import (
	"fmt"
	"strconv"
	"strings"
)

var keyByName = map[string]Key{
	"CTRL":    Control,
	"CONTROL": Control,
	"SHIFT":   Shift,
	"ALT":     Alt,
	"WIN":     LeftWin,
	"SUPER":   LeftWin,
	"SPACE":   Space,
	"TAB":     Tab,
	"ENTER":   Return,
	"RETURN":  Return,
	"ESC":     Escape,
	"ESCAPE":  Escape,
	"BACK":    Back,
}

var nameByKey = map[Key]string{
	Control: "Ctrl",
	Shift:   "Shift",
	Alt:     "Alt",
	LeftWin: "Win",
	Space:   "Space",
	Tab:     "Tab",
	Return:  "Enter",
	Escape:  "Esc",
	Back:    "Back",
}

// NameOf returns the canonical display name for a key. Letters and digits
// render as themselves, function keys as "F1".."F12", and anything without
// a friendly name as a hex code.
func NameOf(k Key) string {
	k = Normalize(k)
	if name, ok := nameByKey[k]; ok {
		return name
	}
	if k >= F1 && k <= F12 {
		return fmt.Sprintf("F%d", int(k-F1)+1)
	}
	if (k >= 'A' && k <= 'Z') || (k >= '0' && k <= '9') {
		return string(rune(k))
	}
	return fmt.Sprintf("0x%02X", uint16(k))
}

// ParseName resolves a single key token ("Ctrl", "F5", "A", "0x2D") to its
// canonical key identity.
func ParseName(raw string) (Key, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, fmt.Errorf("empty key token")
	}
	if k, ok := keyByName[token]; ok {
		return k, nil
	}
	if len(token) >= 2 && token[0] == 'F' {
		if n, err := strconv.Atoi(token[1:]); err == nil {
			if n < 1 || n > 12 {
				return 0, fmt.Errorf("function key out of range: %q", raw)
			}
			return F1 + Key(n-1), nil
		}
	}
	if len(token) == 1 {
		ch := token[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return Key(ch), nil
		}
	}
	if strings.HasPrefix(token, "0X") {
		value, err := strconv.ParseUint(token[2:], 16, 16)
		if err != nil || value == 0 || value > uint64(MaxCode) {
			return 0, fmt.Errorf("invalid hex key %q", raw)
		}
		k := Key(value)
		if IsToggle(k) {
			return 0, fmt.Errorf("toggle key %q cannot be part of a combination", raw)
		}
		return Normalize(k), nil
	}
	return 0, fmt.Errorf("unknown key %q", raw)
}
