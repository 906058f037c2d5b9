// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
)

// DefaultFlipTolerance is how close (radians) both roll and pitch must be
// to ±π before a triple is treated as the flipped representation.
var DefaultFlipTolerance = geom.Rad(30)

// Resolver collapses the Euler double-flip
//
//	(roll, pitch, yaw) ≡ (roll ∓ π, pitch ∓ π, yaw ± π)
//
// back to the representation with small roll and pitch. Only triples with
// both roll and pitch near ±π are touched; a single angle near ±π can be a
// real orientation.
type Resolver struct {
	Tolerance float64
}

// NewResolver returns a Resolver with the given tolerance in degrees.
func NewResolver(toleranceDeg float64) Resolver {
	return Resolver{Tolerance: geom.Rad(toleranceDeg)}
}

// Resolve returns the minimal-magnitude equivalent of (roll, pitch, yaw)
// and whether a flip was applied. Inputs and outputs are radians.
func (r Resolver) Resolve(roll, pitch, yaw float64) (float64, float64, float64, bool) {
	if !nearPi(roll, r.Tolerance) || !nearPi(pitch, r.Tolerance) {
		return roll, pitch, yaw, false
	}
	roll = geom.Wrap(roll - sign(roll)*math.Pi)
	pitch = geom.Wrap(pitch - sign(pitch)*math.Pi)
	yaw = geom.Wrap(yaw + math.Pi)
	return roll, pitch, yaw, true
}

func nearPi(a, tol float64) bool {
	return math.Pi-math.Abs(geom.Wrap(a)) <= tol
}

// sign treats 0 as positive; it is only called on angles near ±π.
func sign(a float64) float64 {
	if a < 0 {
		return -1
	}
	return 1
}
