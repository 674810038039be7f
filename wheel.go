package main

import (
	"log/slog"

	"volwheel/internal/hotkey"
	"volwheel/internal/keys"
	"volwheel/internal/router"
)

// volumeAdjuster is the routing dependency of the wheel engine; satisfied by
// *router.Router.
type volumeAdjuster interface {
	Adjust(target hotkey.Target, delta int) []router.AppliedLevel
}

// WheelEngine connects the low-level mouse hook to the mapping store: on
// every wheel notch it reads the pressed-key set, finds the mappings whose
// combo matches exactly, and routes the notch to each match's target.
//
// OnWheel runs on the hook's message-loop thread, so everything here must
// stay non-blocking and cheap: one key scan, one snapshot, and the volume
// calls themselves.
type WheelEngine struct {
	reader keys.Reader
	store  *hotkey.Store
	router volumeAdjuster
}

// NewWheelEngine builds the engine.
func NewWheelEngine(reader keys.Reader, store *hotkey.Store, adjuster volumeAdjuster) *WheelEngine {
	return &WheelEngine{reader: reader, store: store, router: adjuster}
}

// OnWheel handles one wheel event. It returns true when at least one mapping
// matched, which tells the hook to swallow the event so the window under the
// cursor never scrolls; an unmatched event passes through untouched.
func (e *WheelEngine) OnWheel(delta int) bool {
	if delta == 0 {
		return false
	}

	pressed := e.reader.Pressed()
	// No keys held is by far the common case for wheel events; skip the
	// mapping scan entirely.
	if len(pressed) == 0 {
		return false
	}

	matched := false
	for _, m := range e.store.Snapshot() {
		if !m.Matches(pressed) {
			continue
		}
		matched = true
		slog.Debug("[wheel] mapping matched",
			"combo", m.Combo(), "target", m.Target().String(), "delta", delta)
		e.router.Adjust(m.Target(), delta)
	}
	return matched
}
