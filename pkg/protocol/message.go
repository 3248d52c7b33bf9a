// Package protocol defines the WebSocket messages exchanged with pose producers
// and dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Producer → server
	TypePose  MessageType = "pose"  // Head orientation sample
	TypeReset MessageType = "reset" // Reset the stream's detector

	// Server → clients
	TypeState   MessageType = "state"   // Detector snapshot
	TypeGesture MessageType = "gesture" // Recognized gesture
	TypeError   MessageType = "error"   // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Producer → Server Message Types
// =============================================================================

// PoseData is one head orientation sample (radians).
// Either yaw/pitch or an [x, y, z, w] orientation quaternion may be given;
// the quaternion wins when both are present.
type PoseData struct {
	Yaw         *float64    `json:"yaw,omitempty"`
	Pitch       *float64    `json:"pitch,omitempty"`
	Orientation *[4]float64 `json:"orientation,omitempty"`
}

// PoseBatch carries several samples in arrival order.
type PoseBatch struct {
	Samples []PoseData `json:"samples"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// AnglesData is a bare yaw/pitch pair.
type AnglesData struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// StateData is a detector snapshot with display labels.
type StateData struct {
	StreamID       string      `json:"stream_id"`
	Direction      string      `json:"direction"`
	DirectionLabel string      `json:"direction_label"`
	History        []string    `json:"history"` // newest first
	Gesture        string      `json:"gesture"`
	GestureLabel   string      `json:"gesture_label"`
	Matches        uint64      `json:"matches"`
	LastSample     *AnglesData `json:"last_sample,omitempty"`
	Reset          bool        `json:"reset,omitempty"`
}

// GestureData announces a recognized gesture.
type GestureData struct {
	ID       string `json:"id"`
	StreamID string `json:"stream_id"`
	Gesture  string `json:"gesture"`
	Label    string `json:"label"`
	Axis     string `json:"axis"`
	Matches  uint64 `json:"matches"`
	At       string `json:"at"` // RFC3339 (ms)
}

// ErrorData describes why a message was rejected.
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
