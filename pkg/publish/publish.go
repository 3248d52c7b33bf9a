// Package publish forwards recognized gestures to MQTT, with a fake for testing.
package publish

import (
	"encoding/json"
	"time"

	"github.com/teslashibe/go-headgesture/pkg/session"
)

// DefaultTopicPrefix is the root of all published topics.
const DefaultTopicPrefix = "headgesture"

// System lifecycle events.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventOffline  = "OFFLINE" // last will
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a recognized gesture to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event session.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a daemon lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // e.g. "SIGTERM" (shutdown only)
	Retained  bool
}

// GestureTopic returns the topic for gestures on one stream.
func GestureTopic(prefix, streamID string) string {
	return prefix + "/" + streamID + "/gesture"
}

// SystemTopic returns the lifecycle topic.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// Payload is the MQTT message body for a gesture.
type Payload struct {
	Gesture GesturePayload `json:"gesture"`
}

// GesturePayload contains the gesture details.
type GesturePayload struct {
	ID        string `json:"id"`
	Stream    string `json:"stream"`
	Timestamp string `json:"timestamp"`
	Gesture   string `json:"gesture"`
	Label     string `json:"label"`
	Axis      string `json:"axis"`
	Count     uint64 `json:"count"`
}

// FormatPayload creates the JSON payload for a gesture.
func FormatPayload(event session.Event) ([]byte, error) {
	payload := Payload{
		Gesture: GesturePayload{
			ID:        event.ID,
			Stream:    event.StreamID,
			Timestamp: event.At.UTC().Format(time.RFC3339),
			Gesture:   string(event.Gesture),
			Label:     event.Gesture.Label(),
			Axis:      event.Axis.String(),
			Count:     event.Matches,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message body for a lifecycle event.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the lifecycle event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
