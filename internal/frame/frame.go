// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame maps each sensor's native axes onto the NED navigation
// frame (X=North, Y=East, Z=Down) with fixed signed permutations.
package frame

import (
	"fmt"
	"strings"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

// AxisMap is a signed permutation matrix: exactly one ±1 per row and column.
type AxisMap struct {
	m geom.Mat3
}

// NewAxisMap validates m as a signed permutation.
func NewAxisMap(m geom.Mat3) (AxisMap, error) {
	var colUsed [3]bool
	for i := 0; i < 3; i++ {
		nonzero := 0
		for j := 0; j < 3; j++ {
			switch m[i][j] {
			case 0:
			case 1, -1:
				if colUsed[j] {
					return AxisMap{}, fmt.Errorf("frame: column %d used twice", j)
				}
				colUsed[j] = true
				nonzero++
			default:
				return AxisMap{}, fmt.Errorf("frame: entry [%d][%d]=%v is not 0 or ±1", i, j, m[i][j])
			}
		}
		if nonzero != 1 {
			return AxisMap{}, fmt.Errorf("frame: row %d has %d non-zero entries, want 1", i, nonzero)
		}
	}
	return AxisMap{m: m}, nil
}

// Identity returns the map that leaves vectors unchanged.
func Identity() AxisMap {
	return AxisMap{m: geom.Identity3()}
}

// ParseAxisMap parses "+x,+y,-z" style strings: entry i names which sensor
// axis (with sign) becomes navigation axis i.
func ParseAxisMap(axes string) (AxisMap, error) {
	parts := strings.Split(axes, ",")
	if len(parts) != 3 {
		return AxisMap{}, fmt.Errorf("frame: axis map %q must have 3 entries", axes)
	}
	var m geom.Mat3
	for i, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		sign := 1.0
		switch {
		case strings.HasPrefix(p, "-"):
			sign = -1
			p = p[1:]
		case strings.HasPrefix(p, "+"):
			p = p[1:]
		}
		var col int
		switch p {
		case "x":
			col = 0
		case "y":
			col = 1
		case "z":
			col = 2
		default:
			return AxisMap{}, fmt.Errorf("frame: unknown axis %q in %q", parts[i], axes)
		}
		m[i][col] = sign
	}
	return NewAxisMap(m)
}

// ToNav maps a calibrated sensor-frame vector into the navigation frame.
func (a AxisMap) ToNav(v geom.Vec3) geom.Vec3 {
	return a.m.MulVec(v)
}

// FromNav is the inverse mapping (the transpose of an orthonormal map).
func (a AxisMap) FromNav(v geom.Vec3) geom.Vec3 {
	return a.m.Transpose().MulVec(v)
}

func (a AxisMap) Matrix() geom.Mat3 {
	return a.m
}

func (a AxisMap) String() string {
	names := [3]string{"x", "y", "z"}
	out := make([]string, 3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			switch a.m[i][j] {
			case 1:
				out[i] = "+" + names[j]
			case -1:
				out[i] = "-" + names[j]
			}
		}
	}
	return strings.Join(out, ",")
}

// Transform holds one AxisMap per sensor kind.
type Transform struct {
	maps [len(imu.Kinds)]AxisMap
}

// NewTransform builds a Transform from per-sensor maps.
func NewTransform(accel, gyro, mag AxisMap) Transform {
	var t Transform
	t.maps[imu.Accel] = accel
	t.maps[imu.Gyro] = gyro
	t.maps[imu.Mag] = mag
	return t
}

// DefaultICM20948 is the mapping for an ICM-20948 mounted chip-up with its
// X axis pointing forward.
//
// The accelerometer map yields the gravity direction (not specific force),
// so a level board reads (0, 0, 1). Gyro Y/Z flip into NED. The AK09916 die
// already has Y and Z opposite to the accel/gyro die, which lands it on NED
// unchanged.
func DefaultICM20948() Transform {
	return NewTransform(
		AxisMap{m: geom.Diag(geom.Vec3{-1, 1, 1})},
		AxisMap{m: geom.Diag(geom.Vec3{1, -1, -1})},
		AxisMap{m: geom.Identity3()},
	)
}

// ToNav maps a calibrated vector of kind k into the navigation frame.
func (t Transform) ToNav(k imu.Kind, v geom.Vec3) geom.Vec3 {
	return t.maps[k].ToNav(v)
}

// Map returns the axis map used for kind k.
func (t Transform) Map(k imu.Kind) AxisMap {
	return t.maps[k]
}
