//go:build !windows

package mousehook

import (
	"errors"
	"sync"
)

// Hook is a stub off Windows: Install always fails, Uninstall is a no-op.
type Hook struct {
	handler Handler

	mu     sync.Mutex
	active bool
}

// New creates an uninstalled hook.
func New(handler Handler) *Hook {
	return &Hook{handler: handler}
}

// Installed reports whether the hook is registered (never true here).
func (h *Hook) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Install fails: low-level mouse hooks are only supported on Windows.
func (h *Hook) Install() error {
	return errors.New("global mouse hooks are only supported on windows")
}

// Uninstall is a no-op on an uninstalled hook.
func (h *Hook) Uninstall() error {
	return nil
}
