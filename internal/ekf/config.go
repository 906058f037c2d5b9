// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"fmt"
	"math"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/orientation"
)

// Config is the immutable tuning of one Filter. Variances are in rad² and
// (rad/s)²; process noise is a spectral density multiplied by dt on every
// Predict.
type Config struct {
	InitialAttitudeVar float64 // P0 roll/pitch/yaw
	InitialBiasVar     float64 // P0 gyro bias

	AttitudeNoise float64 // Q roll/pitch/yaw, rad²/s
	BiasNoise     float64 // Q bias random walk, (rad/s)²/s

	AccelNoise float64 // R per axis of the unit gravity vector
	MagNoise   float64 // R of the heading measurement, rad²

	// CosPitchEpsilon is the floor applied to |cos(pitch)| in the kinematics.
	CosPitchEpsilon float64
	// MaxDt rejects gaps (seconds) too long to integrate as one step.
	MaxDt float64

	AccelMinG, AccelMaxG               float64
	MagMinMicroTesla, MagMaxMicroTesla float64

	// CovarianceCeiling is the largest trace(P) tolerated before ErrDiverged.
	CovarianceCeiling float64
	// FlipTolerance (radians) for the Euler double-flip resolver.
	FlipTolerance float64
}

// DefaultConfig returns the tuning used on the ICM-20948 at 20 Hz.
func DefaultConfig() Config {
	return Config{
		InitialAttitudeVar: 0.1 * 0.1,
		InitialBiasVar:     0.01 * 0.01,
		AttitudeNoise:      0.001 * 0.001,
		BiasNoise:          1e-6,
		AccelNoise:         0.1 * 0.1,
		MagNoise:           0.05 * 0.05,
		CosPitchEpsilon:    1e-3,
		MaxDt:              1.0,
		AccelMinG:          0.8,
		AccelMaxG:          1.2,
		MagMinMicroTesla:   20,
		MagMaxMicroTesla:   80,
		CovarianceCeiling:  1e3,
		FlipTolerance:      orientation.DefaultFlipTolerance,
	}
}

// Validate reports the first unusable value.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"initial attitude variance", c.InitialAttitudeVar},
		{"initial bias variance", c.InitialBiasVar},
		{"attitude process noise", c.AttitudeNoise},
		{"bias process noise", c.BiasNoise},
		{"accelerometer noise", c.AccelNoise},
		{"magnetometer noise", c.MagNoise},
		{"max dt", c.MaxDt},
		{"covariance ceiling", c.CovarianceCeiling},
	}
	for _, p := range positive {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return fmt.Errorf("ekf config: %s must be positive and finite, got %v", p.name, p.v)
		}
	}
	if !(c.CosPitchEpsilon > 0 && c.CosPitchEpsilon < 1) {
		return fmt.Errorf("ekf config: cos(pitch) epsilon must be in (0, 1), got %v", c.CosPitchEpsilon)
	}
	if !(c.AccelMinG >= 0 && c.AccelMinG < c.AccelMaxG) {
		return fmt.Errorf("ekf config: accel band [%v, %v] g is empty", c.AccelMinG, c.AccelMaxG)
	}
	if !(c.MagMinMicroTesla >= 0 && c.MagMinMicroTesla < c.MagMaxMicroTesla) {
		return fmt.Errorf("ekf config: mag band [%v, %v] uT is empty", c.MagMinMicroTesla, c.MagMaxMicroTesla)
	}
	if !(c.FlipTolerance > 0 && c.FlipTolerance <= geom.Rad(90)) {
		return fmt.Errorf("ekf config: flip tolerance must be in (0, 90] degrees, got %v", geom.Deg(c.FlipTolerance))
	}
	return nil
}
