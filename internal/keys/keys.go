// Package keys models Windows virtual-key identities and the set of keys
// held down at the instant of an input event.
//
// Left/right variants of Control, Shift and Alt are distinct virtual-key
// codes on the wire but normalize to one canonical identity each; toggle
// keys (Caps Lock, Num Lock, Scroll Lock) are never part of a combination.
package keys

// Key is a Windows virtual-key code identifying one physical key.
type Key uint16

// Virtual-key codes used by normalization, toggle exclusion and combo
// parsing. Values are the Win32 VK_* constants from winuser.h.
const (
	Back   Key = 0x08
	Tab    Key = 0x09
	Return Key = 0x0D

	Shift   Key = 0x10
	Control Key = 0x11
	Alt     Key = 0x12 // VK_MENU

	CapsLock Key = 0x14
	Escape   Key = 0x1B
	Space    Key = 0x20

	LeftWin  Key = 0x5B
	RightWin Key = 0x5C

	NumLock    Key = 0x90
	ScrollLock Key = 0x91

	LeftShift    Key = 0xA0
	RightShift   Key = 0xA1
	LeftControl  Key = 0xA2
	RightControl Key = 0xA3
	LeftAlt      Key = 0xA4
	RightAlt     Key = 0xA5

	F1  Key = 0x70
	F2  Key = 0x71
	F3  Key = 0x72
	F4  Key = 0x73
	F5  Key = 0x74
	F6  Key = 0x75
	F7  Key = 0x76
	F8  Key = 0x77
	F9  Key = 0x78
	F10 Key = 0x79
	F11 Key = 0x7A
	F12 Key = 0x7B
)

// MaxCode is the highest addressable virtual-key code. The key-state reader
// scans 1..MaxCode on every event.
const MaxCode Key = 0xFF

// Normalize collapses left/right modifier variants to their canonical
// identity. All other codes pass through unchanged. Idempotent: applying
// Normalize to an already-canonical code returns it as is.
func Normalize(k Key) Key {
	switch k {
	case LeftControl, RightControl:
		return Control
	case LeftShift, RightShift:
		return Shift
	case LeftAlt, RightAlt:
		return Alt
	case RightWin:
		return LeftWin
	default:
		return k
	}
}

// IsToggle reports whether k is a lock-state key. Toggle keys are excluded
// from pressed-set construction unconditionally.
func IsToggle(k Key) bool {
	return k == CapsLock || k == NumLock || k == ScrollLock
}

// IsModifier reports whether the canonical identity of k is a modifier key.
func IsModifier(k Key) bool {
	switch Normalize(k) {
	case Control, Shift, Alt, LeftWin:
		return true
	}
	return false
}
