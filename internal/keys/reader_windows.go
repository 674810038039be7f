//go:build windows

package keys

import (
	"fmt"
	"syscall"
)

var (
	user32DLL            = syscall.NewLazyDLL("user32.dll")
	procGetAsyncKeyState = user32DLL.NewProc("GetAsyncKeyState")
)

// asyncReader queries instantaneous key-down state via GetAsyncKeyState.
type asyncReader struct{}

// NewReader returns a Reader backed by the live Win32 keyboard state.
func NewReader() (Reader, error) {
	// Pre-check DLL availability so failures surface at startup instead of
	// panicking inside the first hook callback.
	if err := user32DLL.Load(); err != nil {
		return nil, fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	return asyncReader{}, nil
}

// Pressed scans the full virtual-key range, skips toggle keys, and returns
// the normalized set of keys currently down.
func (asyncReader) Pressed() Set {
	s := make(Set)
	for code := Key(1); code <= MaxCode; code++ {
		if IsToggle(code) {
			continue
		}
		// High-order bit set means the key is currently down.
		r, _, _ := procGetAsyncKeyState.Call(uintptr(code))
		if int16(r) < 0 {
			s[Normalize(code)] = struct{}{}
		}
	}
	return s
}
