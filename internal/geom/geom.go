// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geom holds the small fixed-size vector and matrix helpers shared
// by calibration, frame mapping and the attitude filter.
package geom

import (
	"fmt"
	"math"
)

// Vec3 is a 3-axis sample or vector (x, y, z).
type Vec3 [3]float64

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Diag(Vec3{1, 1, 1})
}

// Diag builds a diagonal matrix from d.
func Diag(d Vec3) Mat3 {
	return Mat3{
		{d[0], 0, 0},
		{0, d[1], 0},
		{0, 0, d[2]},
	}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{v[0] * k, v[1] * k, v[2] * k}
}

func (v Vec3) Dot(o Vec3) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Unit returns v scaled to length 1. A zero vector is an error.
func (v Vec3) Unit() (Vec3, error) {
	n := v.Norm()
	if n <= 0 {
		return Vec3{}, fmt.Errorf("zero vector")
	}
	return v.Scale(1 / n), nil
}

// IsFinite reports whether no component is NaN or ±Inf.
func (v Vec3) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	var out Vec3
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

func (m Mat3) Transpose() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// IsFinite reports whether every entry is a finite number.
func (m Mat3) IsFinite() bool {
	for _, row := range m {
		if !Vec3(row).IsFinite() {
			return false
		}
	}
	return true
}

// Wrap maps an angle in radians into (-π, π].
func Wrap(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func Deg(rad float64) float64 { return rad * 180.0 / math.Pi }

func Rad(deg float64) float64 { return deg * math.Pi / 180.0 }

// RadVec converts every component from degrees to radians.
func RadVec(v Vec3) Vec3 {
	return Vec3{Rad(v[0]), Rad(v[1]), Rad(v[2])}
}

// DegVec converts every component from radians to degrees.
func DegVec(v Vec3) Vec3 {
	return Vec3{Deg(v[0]), Deg(v[1]), Deg(v[2])}
}
