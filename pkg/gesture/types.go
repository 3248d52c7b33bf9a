// Package gesture recognizes head nods and shakes from a stream of orientation samples.
//
// A Detector turns per-frame (yaw, pitch) samples into discrete motion events,
// locks onto the axis of the first event, and declares a gesture once a fixed-size
// window of same-axis events cancels out. This package has no I/O and no goroutines:
// hosts drive it with one Process call per frame.
package gesture

import "math"

// Sample is an absolute head orientation at one point in time (radians).
type Sample struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// finite reports whether both angles are usable for delta computation.
func (s Sample) finite() bool {
	return !math.IsNaN(s.Yaw) && !math.IsInf(s.Yaw, 0) &&
		!math.IsNaN(s.Pitch) && !math.IsInf(s.Pitch, 0)
}

// Motion is a discretized motion event. Its value is the signed weight used for
// cancellation: two opposite motions on the same axis sum to zero, and the
// vertical (1) and horizontal (2) magnitudes never cancel each other.
type Motion int

const (
	MotionUp    Motion = -1
	MotionDown  Motion = 1
	MotionLeft  Motion = 2
	MotionRight Motion = -2
)

// String returns the motion name.
func (m Motion) String() string {
	switch m {
	case MotionUp:
		return "UP"
	case MotionDown:
		return "DOWN"
	case MotionLeft:
		return "LEFT"
	case MotionRight:
		return "RIGHT"
	default:
		return "UNKNOWN"
	}
}

// Axis is the direction of motion a history is locked to.
type Axis int

const (
	AxisNone Axis = iota
	AxisVertical
	AxisHorizontal
)

// String returns the axis name.
func (a Axis) String() string {
	switch a {
	case AxisVertical:
		return "VERTICAL"
	case AxisHorizontal:
		return "HORIZONTAL"
	default:
		return "NONE"
	}
}

// Label returns the on-screen direction text.
func (a Axis) Label() string {
	switch a {
	case AxisVertical:
		return "UP/DOWN"
	case AxisHorizontal:
		return "LEFT/RIGHT"
	default:
		return ""
	}
}

// MarshalText encodes the axis by name.
func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Gesture is a recognized head gesture.
type Gesture string

const (
	GestureNone Gesture = ""
	GestureYes  Gesture = "YES"
	GestureNo   Gesture = "NO"
)

// Label returns the on-screen gesture text.
func (g Gesture) Label() string {
	switch g {
	case GestureYes:
		return "YEAH"
	case GestureNo:
		return "NOPE!"
	default:
		return ""
	}
}

// gestureFor maps a locked axis to the gesture its oscillation means.
func gestureFor(a Axis) Gesture {
	switch a {
	case AxisVertical:
		return GestureYes
	case AxisHorizontal:
		return GestureNo
	default:
		return GestureNone
	}
}

// State is a snapshot of the detector. Snapshots are copies and safe to keep.
type State struct {
	// LastSample is the baseline for the next delta; valid only if HasLastSample.
	LastSample    Sample `json:"last_sample"`
	HasLastSample bool   `json:"has_last_sample"`

	Direction Axis     `json:"direction"`
	History   []Motion `json:"history"` // newest first
	Gesture   Gesture  `json:"gesture"`

	// Matches counts completed oscillations since the last reset.
	Matches uint64 `json:"matches"`
}

