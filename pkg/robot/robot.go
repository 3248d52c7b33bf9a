// Package robot reads head poses from a Reachy Mini daemon and feeds them to
// gesture detectors.
package robot

import (
	"context"
	"errors"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
	"github.com/teslashibe/go-headgesture/pkg/orientation"
	"github.com/teslashibe/go-headgesture/pkg/session"
)

// ControlLoopHz is the default polling frequency
const ControlLoopHz = 30

// DaemonPort is the Reachy Mini daemon HTTP port
const DaemonPort = 8000

// ErrNoHeadPose is returned when the daemon state carries no usable head pose.
var ErrNoHeadPose = errors.New("robot: no head pose in daemon state")

// HeadPoseState is the head pose as reported by the daemon. Newer daemons
// report roll/pitch/yaw; older ones an [x, y, z, w] orientation quaternion.
type HeadPoseState struct {
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	Z           float64     `json:"z"`
	Roll        *float64    `json:"roll,omitempty"`
	Pitch       *float64    `json:"pitch,omitempty"`
	Yaw         *float64    `json:"yaw,omitempty"`
	Orientation *[4]float64 `json:"orientation,omitempty"`
}

// Pose converts the reported head pose. The quaternion wins when both are present.
func (h HeadPoseState) Pose() (orientation.Pose, error) {
	if h.Orientation != nil {
		return orientation.FromQuaternion(*h.Orientation), nil
	}
	if h.Yaw == nil || h.Pitch == nil {
		return orientation.Pose{}, ErrNoHeadPose
	}
	p := orientation.Pose{Pitch: *h.Pitch, Yaw: *h.Yaw}
	if h.Roll != nil {
		p.Roll = *h.Roll
	}
	return p, nil
}

// FullState is the subset of GET /api/state/full the poller needs.
type FullState struct {
	HeadPose *HeadPoseState `json:"head_pose"`
	BodyYaw  float64        `json:"body_yaw"`
}

// PoseSource provides the current head pose.
type PoseSource interface {
	HeadPose(ctx context.Context) (orientation.Pose, error)
}

// SampleSink consumes detector samples. *session.Registry satisfies it.
type SampleSink interface {
	Process(streamID string, s gesture.Sample) (session.Update, error)
}

// PoseFromQuaternion converts an [x, y, z, w] quaternion to roll/pitch/yaw.
func PoseFromQuaternion(q [4]float64) orientation.Pose {
	return orientation.FromQuaternion(q)
}

var (
	_ PoseSource = (*Client)(nil)
	_ SampleSink = (*session.Registry)(nil)
)
