// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation holds the absolute attitude references used to seed
// and correct the filter (accelerometer tilt, tilt-compensated magnetic
// heading) and the Euler double-flip resolver.
//
// All vectors are in the NED body frame: X forward, Y right, Z down.
package orientation

import (
	"errors"
	"math"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
)

// ErrNoHorizontalField is returned by Heading when the tilt-compensated
// field has no usable horizontal component (sensor pointing along it).
var ErrNoHorizontalField = errors.New("orientation: no horizontal magnetic component")

// minHorizontal is the smallest horizontal field (same unit as the input)
// that still yields a heading.
const minHorizontal = 1e-6

// Pose is the canonical representation of orientation for your app, in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// PoseFromRadians converts filter angles to a Pose.
func PoseFromRadians(roll, pitch, yaw float64) Pose {
	return Pose{Roll: geom.Deg(roll), Pitch: geom.Deg(pitch), Yaw: geom.Deg(yaw)}
}

// TiltFromAccel computes roll and pitch (radians) from a gravity-direction
// vector in any unit:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func TiltFromAccel(a geom.Vec3) (roll, pitch float64) {
	roll = math.Atan2(a[1], a[2])
	pitch = math.Atan2(-a[0], math.Sqrt(a[1]*a[1]+a[2]*a[2]))
	return roll, pitch
}

// HorizontalField rotates the body-frame field by -roll/-pitch onto the
// local horizontal plane.
func HorizontalField(m geom.Vec3, roll, pitch float64) (xh, yh float64) {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	xh = m[0]*cp + m[1]*sr*sp + m[2]*cr*sp
	yh = m[1]*cr - m[2]*sr
	return xh, yh
}

// Heading returns the magnetic heading (radians, clockwise from magnetic
// north, in (-π, π]) of a body-frame field given the current tilt.
func Heading(m geom.Vec3, roll, pitch float64) (float64, error) {
	xh, yh := HorizontalField(m, roll, pitch)
	if math.Hypot(xh, yh) < minHorizontal {
		return 0, ErrNoHorizontalField
	}
	return geom.Wrap(math.Atan2(-yh, xh)), nil
}
