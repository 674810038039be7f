// Package mousehook installs a process-wide low-level mouse hook and routes
// wheel notches to a handler that decides whether each event is consumed.
//
// The hook has two states, uninstalled and installed. Install registers with
// the OS event source on a dedicated message-loop thread; Uninstall posts
// WM_QUIT to that thread and waits for the loop to exit, so an in-flight
// callback can never race the unhook.
package mousehook

import "errors"

// Handler receives one call per wheel notch, synchronously on the hook
// thread. delta is the signed wheel movement (positive away from the user).
// Returning true consumes the event: it is not passed down the hook chain
// and the OS default wheel behavior is suppressed.
//
// The OS disables hooks whose callbacks block, so implementations must
// return promptly.
type Handler interface {
	OnWheel(delta int) (consumed bool)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(delta int) bool

// OnWheel implements Handler.
func (f HandlerFunc) OnWheel(delta int) bool { return f(delta) }

// ErrAlreadyInstalled is returned by Install when the hook is already
// registered. Installing twice would duplicate the OS registration, so the
// state machine guards against it instead of relying on caller discipline.
var ErrAlreadyInstalled = errors.New("mouse hook already installed")
