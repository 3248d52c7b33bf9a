// Package orientation converts head orientations between representations.
package orientation

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/teslashibe/go-headgesture/pkg/gesture"
)

// Pose is a head orientation in radians.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Forward is the head's rest-facing direction (x forward, y left, z up).
var Forward = mgl64.Vec3{1, 0, 0}

// FromQuaternion converts an [x, y, z, w] quaternion to a Pose.
// Yaw is rotation about +z, pitch about +y (positive looks down), roll about +x.
// A zero quaternion yields the zero pose.
func FromQuaternion(q [4]float64) Pose {
	quat := mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}
	if quat.Len() == 0 {
		return Pose{}
	}
	quat = quat.Normalize()

	// ZYX (yaw, pitch, roll) decomposition of the rotation matrix.
	m := quat.Mat4()
	sinPitch := clamp(-m.At(2, 0), -1, 1)
	return Pose{
		Roll:  math.Atan2(m.At(2, 1), m.At(2, 2)),
		Pitch: math.Asin(sinPitch),
		Yaw:   math.Atan2(m.At(1, 0), m.At(0, 0)),
	}
}

// ToQuaternion converts a Pose to an [x, y, z, w] quaternion.
func ToQuaternion(p Pose) [4]float64 {
	q := mgl64.AnglesToQuat(p.Yaw, p.Pitch, p.Roll, mgl64.ZYX)
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

// Heading returns the direction the head faces.
func Heading(p Pose) mgl64.Vec3 {
	q := mgl64.AnglesToQuat(p.Yaw, p.Pitch, p.Roll, mgl64.ZYX)
	return q.Rotate(Forward)
}

// Sample converts a Pose to a detector sample. With swap set, pitch feeds the
// sample's yaw (and yaw its pitch), so a physical nod drives the vertical gesture.
func (p Pose) Sample(swap bool) gesture.Sample {
	if swap {
		return gesture.Sample{Yaw: p.Pitch, Pitch: p.Yaw}
	}
	return gesture.Sample{Yaw: p.Yaw, Pitch: p.Pitch}
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
