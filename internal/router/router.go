// Package router applies clamped, step-wise volume changes to the audio
// target of a matched mapping and reports each applied level to the overlay
// notifier.
//
// All failures below the target level are transient by nature (device
// unplugged, process exited mid-enumeration), so they are logged and
// isolated: one bad endpoint or session never prevents the rest of a
// fan-out from being adjusted.
package router

import (
	"errors"
	"log/slog"
	"strings"

	"volwheel/internal/audio"
	"volwheel/internal/hotkey"
	"volwheel/internal/procutil"
)

// AppliedLevel describes one successful volume application.
type AppliedLevel struct {
	TargetKind   string  `json:"target_kind"`
	EndpointID   string  `json:"endpoint_id,omitempty"`
	EndpointName string  `json:"endpoint_name,omitempty"`
	Process      string  `json:"process,omitempty"`
	Level        float64 `json:"level"`
}

// Notifier receives the resulting level after every successful volume
// application. Fire-and-forget: the router neither blocks on nor inspects
// the notifier's behavior.
type Notifier interface {
	ShowLevel(applied AppliedLevel)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(AppliedLevel)

// ShowLevel implements Notifier.
func (f NotifierFunc) ShowLevel(applied AppliedLevel) { f(applied) }

// Router resolves mapping targets to audio endpoints/sessions and applies
// step changes. Construct via New.
type Router struct {
	system   audio.System
	notifier Notifier
	step     func() float64

	// processName resolves a session's owning process; overridable in tests.
	processName func(pid uint32) (string, error)
}

// New builds a Router. step is read per wheel notch so live configuration
// changes take effect immediately; a nil notifier is a no-op.
func New(system audio.System, notifier Notifier, step func() float64) *Router {
	if notifier == nil {
		notifier = NotifierFunc(func(AppliedLevel) {})
	}
	return &Router{
		system:      system,
		notifier:    notifier,
		step:        step,
		processName: procutil.ImageBaseName,
	}
}

// Adjust applies one wheel notch to target and returns the applied levels.
// A zero delta has no direction and is a no-op. The returned slice is empty
// when nothing was adjusted (no such device, no matching session).
func (r *Router) Adjust(target hotkey.Target, delta int) []AppliedLevel {
	if delta == 0 {
		return nil
	}
	change := r.step()
	if delta < 0 {
		change = -change
	}

	switch target.Kind() {
	case hotkey.TargetMaster:
		return r.adjustMaster(change)
	case hotkey.TargetDevice:
		return r.adjustDevice(target.DeviceID(), change)
	case hotkey.TargetApplication:
		return r.adjustApplication(target.ProcessName(), change)
	default:
		slog.Error("[router] unknown target kind", "kind", int(target.Kind()))
		return nil
	}
}

// adjustMaster fans out to every active render endpoint.
func (r *Router) adjustMaster(change float64) []AppliedLevel {
	endpoints, err := r.system.Endpoints()
	if err != nil {
		slog.Warn("[router] endpoint enumeration failed", "error", err)
		return nil
	}

	var applied []AppliedLevel
	for _, ep := range endpoints {
		level, err := r.applyEndpoint(ep, change)
		if err != nil {
			slog.Warn("[router] endpoint adjustment failed",
				"endpoint", ep.Name(), "error", err)
			ep.Close()
			continue
		}
		a := AppliedLevel{
			TargetKind:   hotkey.TargetMaster.String(),
			EndpointID:   ep.ID(),
			EndpointName: ep.Name(),
			Level:        level,
		}
		applied = append(applied, a)
		r.notifier.ShowLevel(a)
		ep.Close()
	}
	return applied
}

// adjustDevice resolves one endpoint by id. An absent device is expected
// and transient: no overlay, no error surfaced, just a debug log.
func (r *Router) adjustDevice(deviceID string, change float64) []AppliedLevel {
	ep, err := r.system.EndpointByID(deviceID)
	if err != nil {
		if errors.Is(err, audio.ErrEndpointNotFound) {
			slog.Debug("[router] device target unavailable", "deviceID", deviceID)
		} else {
			slog.Warn("[router] device resolution failed", "deviceID", deviceID, "error", err)
		}
		return nil
	}
	defer ep.Close()

	level, err := r.applyEndpoint(ep, change)
	if err != nil {
		slog.Warn("[router] device adjustment failed", "endpoint", ep.Name(), "error", err)
		return nil
	}
	a := AppliedLevel{
		TargetKind:   hotkey.TargetDevice.String(),
		EndpointID:   ep.ID(),
		EndpointName: ep.Name(),
		Level:        level,
	}
	r.notifier.ShowLevel(a)
	return []AppliedLevel{a}
}

// adjustApplication fans out to every session owned by the named process
// across all endpoints. Several sessions may match (multiple windows of the
// same app); all of them receive the adjustment. No match is a no-op, not
// an error: the application may simply not be producing audio right now.
func (r *Router) adjustApplication(processName string, change float64) []AppliedLevel {
	endpoints, err := r.system.Endpoints()
	if err != nil {
		slog.Warn("[router] endpoint enumeration failed", "error", err)
		return nil
	}

	var applied []AppliedLevel
	for _, ep := range endpoints {
		sessions, err := ep.Sessions()
		if err != nil {
			slog.Warn("[router] session enumeration failed",
				"endpoint", ep.Name(), "error", err)
			ep.Close()
			continue
		}
		for _, session := range sessions {
			if a, ok := r.applySession(ep, session, processName, change); ok {
				applied = append(applied, a)
				r.notifier.ShowLevel(a)
			}
			session.Close()
		}
		ep.Close()
	}
	return applied
}

func (r *Router) applySession(ep audio.Endpoint, session audio.Session, processName string, change float64) (AppliedLevel, bool) {
	owner, err := r.processName(session.ProcessID())
	if err != nil {
		// The owning process can exit between enumeration and lookup.
		slog.Debug("[router] session owner lookup failed",
			"pid", session.ProcessID(), "error", err)
		return AppliedLevel{}, false
	}
	if !processNamesEqual(processName, owner) {
		return AppliedLevel{}, false
	}

	current, err := session.Volume()
	if err != nil {
		slog.Warn("[router] session volume read failed",
			"pid", session.ProcessID(), "process", owner, "error", err)
		return AppliedLevel{}, false
	}
	next := Clamp(current + change)
	if err := session.SetVolume(next); err != nil {
		slog.Warn("[router] session volume write failed",
			"pid", session.ProcessID(), "process", owner, "error", err)
		return AppliedLevel{}, false
	}
	if reread, err := session.Volume(); err == nil {
		next = reread
	}
	return AppliedLevel{
		TargetKind:   hotkey.TargetApplication.String(),
		EndpointID:   ep.ID(),
		EndpointName: ep.Name(),
		Process:      owner,
		Level:        next,
	}, true
}

// applyEndpoint reads, steps, clamps, writes and re-reads one endpoint's
// master scalar. The post-write re-read is what gets reported, so the
// overlay always shows the level the mixer actually settled on.
func (r *Router) applyEndpoint(ep audio.Endpoint, change float64) (float64, error) {
	current, err := ep.Volume()
	if err != nil {
		return 0, err
	}
	next := Clamp(current + change)
	if err := ep.SetVolume(next); err != nil {
		return 0, err
	}
	if reread, err := ep.Volume(); err == nil {
		next = reread
	}
	return next, nil
}

// Clamp bounds a scalar level to [0.0, 1.0].
func Clamp(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// processNamesEqual compares a configured process name against a session
// owner's image name, case-insensitively and tolerating a missing or
// present ".exe" suffix on either side.
func processNamesEqual(configured, actual string) bool {
	return strings.EqualFold(trimExe(configured), trimExe(actual))
}

func trimExe(name string) string {
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}
