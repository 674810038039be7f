// Package audio abstracts the OS audio subsystem: render endpoint
// enumeration, per-endpoint master scalar volume, and per-process session
// volumes. All levels are linear scalars in [0.0, 1.0], never decibels.
//
// The Windows implementation talks to Core Audio (WASAPI) over COM; tests
// and non-Windows builds substitute fakes.
package audio

import "errors"

// ErrEndpointNotFound is returned by EndpointByID when no active render
// endpoint carries the requested id. Device unavailability is expected and
// transient (unplugged headset), so callers treat this as a quiet no-op.
var ErrEndpointNotFound = errors.New("audio endpoint not found")

// Session is one per-process audio stream exposed by an endpoint's mixer.
type Session interface {
	// ProcessID is the owning process.
	ProcessID() uint32
	// Volume reads the session's independent scalar volume.
	Volume() (float64, error)
	// SetVolume writes the session's scalar volume.
	SetVolume(level float64) error
	// Close releases the underlying OS resources.
	Close()
}

// Endpoint is an OS-level audio render device.
type Endpoint interface {
	// ID is the stable endpoint identifier used for device-target mappings.
	ID() string
	// Name is the display name recorded when a mapping is created.
	Name() string
	// Volume reads the endpoint's master scalar volume.
	Volume() (float64, error)
	// SetVolume writes the endpoint's master scalar volume.
	SetVolume(level float64) error
	// Sessions enumerates the endpoint's live audio sessions. Expired
	// sessions are excluded.
	Sessions() ([]Session, error)
	// Close releases the underlying OS resources.
	Close()
}

// System is the entry point into the audio subsystem.
type System interface {
	// Endpoints enumerates all currently active render endpoints.
	Endpoints() ([]Endpoint, error)
	// EndpointByID resolves one endpoint by stable identifier, returning
	// ErrEndpointNotFound when it is absent.
	EndpointByID(id string) (Endpoint, error)
	// Close tears down the subsystem connection.
	Close() error
}
