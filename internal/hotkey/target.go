// Package hotkey defines the configured wheel-to-volume rules: a key combo
// plus the audio target it routes to, and the store that owns the loaded
// rule set at runtime.
package hotkey

import (
	"errors"
	"fmt"
	"strings"
)

// TargetKind discriminates the audio target variant of a mapping.
type TargetKind int

const (
	// TargetMaster adjusts every active render endpoint.
	TargetMaster TargetKind = iota
	// TargetDevice adjusts one endpoint resolved by stable identifier.
	TargetDevice
	// TargetApplication adjusts every session owned by a named process.
	TargetApplication
)

// String returns the persisted identifier for the kind.
func (k TargetKind) String() string {
	switch k {
	case TargetMaster:
		return "master"
	case TargetDevice:
		return "device"
	case TargetApplication:
		return "application"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// ParseTargetKind resolves a persisted kind identifier.
func ParseTargetKind(raw string) (TargetKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "master":
		return TargetMaster, nil
	case "device":
		return TargetDevice, nil
	case "application", "app":
		return TargetApplication, nil
	default:
		return 0, fmt.Errorf("unknown target kind %q", raw)
	}
}

// Target is a tagged variant: exactly one of the three audio destinations is
// active. Construct only via MasterTarget, DeviceTarget or ApplicationTarget
// so a mapping can never carry both a device id and a process name.
type Target struct {
	kind        TargetKind
	deviceID    string
	deviceName  string
	processName string
}

// MasterTarget returns the system-wide target.
func MasterTarget() Target {
	return Target{kind: TargetMaster}
}

// DeviceTarget returns a target bound to one endpoint. The name is display
// metadata only; resolution always goes through the stable id.
func DeviceTarget(id, name string) (Target, error) {
	if strings.TrimSpace(id) == "" {
		return Target{}, errors.New("device target requires a device id")
	}
	return Target{kind: TargetDevice, deviceID: id, deviceName: name}, nil
}

// ApplicationTarget returns a target bound to a process name, matched
// case-insensitively against session owners.
func ApplicationTarget(processName string) (Target, error) {
	if strings.TrimSpace(processName) == "" {
		return Target{}, errors.New("application target requires a process name")
	}
	return Target{kind: TargetApplication, processName: processName}, nil
}

// Kind returns the active variant.
func (t Target) Kind() TargetKind { return t.kind }

// DeviceID returns the endpoint id for TargetDevice, empty otherwise.
func (t Target) DeviceID() string { return t.deviceID }

// DeviceName returns the display name recorded for TargetDevice.
func (t Target) DeviceName() string { return t.deviceName }

// ProcessName returns the process name for TargetApplication, empty otherwise.
func (t Target) ProcessName() string { return t.processName }

// String renders the target for logs.
func (t Target) String() string {
	switch t.kind {
	case TargetDevice:
		if t.deviceName != "" {
			return fmt.Sprintf("device(%s)", t.deviceName)
		}
		return fmt.Sprintf("device(%s)", t.deviceID)
	case TargetApplication:
		return fmt.Sprintf("application(%s)", t.processName)
	default:
		return "master"
	}
}
