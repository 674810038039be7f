// Package levelstream streams applied-volume events to a single local
// overlay client over WebSocket. The daemon publishes an event after every
// successful volume change; the overlay renders it as a transient on-screen
// level indicator.
package levelstream

import (
	"encoding/json"
	"time"
)

// Event is one applied-volume notification sent to the overlay as a JSON
// text message.
type Event struct {
	Type         string    `json:"type"` // always "level"
	Time         time.Time `json:"time"`
	TargetKind   string    `json:"target_kind"`
	EndpointID   string    `json:"endpoint_id,omitempty"`
	EndpointName string    `json:"endpoint_name,omitempty"`
	Process      string    `json:"process,omitempty"`
	Level        float64   `json:"level"`
}

// eventType is the discriminator stamped on every outgoing event.
const eventType = "level"

func encodeEvent(e Event) ([]byte, error) {
	e.Type = eventType
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	return json.Marshal(e)
}

// DecodeEvent parses a JSON event frame, used by overlay clients and tests.
func DecodeEvent(raw []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(raw, &e)
	return e, err
}
