package protocol

import (
	"math"
	"time"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/orientation"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPoseMessage creates a pose message from yaw/pitch.
func NewPoseMessage(yaw, pitch float64) (*Message, error) {
	return NewMessage(TypePose, PoseData{Yaw: &yaw, Pitch: &pitch})
}

// NewOrientationMessage creates a pose message from an [x, y, z, w] quaternion.
func NewOrientationMessage(q [4]float64) (*Message, error) {
	return NewMessage(TypePose, PoseData{Orientation: &q})
}

// NewResetMessage creates a reset request.
func NewResetMessage() (*Message, error) {
	return NewMessage(TypeReset, nil)
}

// NewStateMessage creates a state message from a detector snapshot.
func NewStateMessage(streamID string, st gesture.State, reset bool) (*Message, error) {
	return NewMessage(TypeState, NewStateData(streamID, st, reset))
}

// NewStateData converts a detector snapshot to its wire form.
func NewStateData(streamID string, st gesture.State, reset bool) StateData {
	history := make([]string, len(st.History))
	for i, m := range st.History {
		history[i] = m.String()
	}

	data := StateData{
		StreamID:       streamID,
		Direction:      st.Direction.String(),
		DirectionLabel: st.Direction.Label(),
		History:        history,
		Gesture:        string(st.Gesture),
		GestureLabel:   st.Gesture.Label(),
		Matches:        st.Matches,
		Reset:          reset,
	}
	if st.HasLastSample {
		data.LastSample = &AnglesData{Yaw: st.LastSample.Yaw, Pitch: st.LastSample.Pitch}
	}
	return data
}

// NewGestureMessage creates a gesture announcement from a session event.
func NewGestureMessage(ev session.Event) (*Message, error) {
	return NewMessage(TypeGesture, NewGestureData(ev))
}

// NewGestureData converts a session event to its wire form.
func NewGestureData(ev session.Event) GestureData {
	return GestureData{
		ID:       ev.ID,
		StreamID: ev.StreamID,
		Gesture:  string(ev.Gesture),
		Label:    ev.Gesture.Label(),
		Axis:     ev.Axis.String(),
		Matches:  ev.Matches,
		At:       ev.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// NewUpdateMessages returns the messages a session update should fan out:
// always a state message, plus a gesture message when a match completed.
func NewUpdateMessages(u session.Update) ([]*Message, error) {
	state, err := NewStateMessage(u.StreamID, u.State, u.Reset)
	if err != nil {
		return nil, err
	}
	msgs := []*Message{state}

	if u.Event != nil {
		g, err := NewGestureMessage(*u.Event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, g)
	}
	return msgs, nil
}

// NewErrorMessage creates an error message.
func NewErrorMessage(msg string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: msg})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetPoseData extracts pose data from a message
func (m *Message) GetPoseData() (*PoseData, error) {
	var data PoseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPoseBatch extracts a batch of poses from a message
func (m *Message) GetPoseBatch() (*PoseBatch, error) {
	var data PoseBatch
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetGestureData extracts gesture data from a message
func (m *Message) GetGestureData() (*GestureData, error) {
	var data GestureData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Sample converts the pose to a detector sample. Missing angles become NaN,
// which the detector treats as a frame without motion.
func (p PoseData) Sample() gesture.Sample {
	if p.Orientation != nil {
		return orientation.FromQuaternion(*p.Orientation).Sample(false)
	}
	s := gesture.Sample{Yaw: math.NaN(), Pitch: math.NaN()}
	if p.Yaw != nil {
		s.Yaw = *p.Yaw
	}
	if p.Pitch != nil {
		s.Pitch = *p.Pitch
	}
	return s
}
