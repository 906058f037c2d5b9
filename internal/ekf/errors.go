// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import "errors"

var (
	// ErrNotInitialized is returned by Predict/Update before Initialize.
	ErrNotInitialized = errors.New("ekf: filter not initialized")
	// ErrInvalidInput is returned for NaN/Inf inputs; the state is untouched.
	ErrInvalidInput = errors.New("ekf: invalid input")
	// ErrBadInterval is returned for dt <= 0 or dt above Config.MaxDt.
	ErrBadInterval = errors.New("ekf: bad time step")
	// ErrAccelRejected means the accelerometer norm left the gravity band
	// (linear acceleration); the update was skipped.
	ErrAccelRejected = errors.New("ekf: accelerometer reading rejected")
	// ErrMagRejected means the field magnitude left the Earth-field band or
	// had no horizontal component; the update was skipped.
	ErrMagRejected = errors.New("ekf: magnetometer reading rejected")
	// ErrDiverged is returned once trace(P) exceeds Config.CovarianceCeiling
	// or the state stops being finite. The filter refuses further steps until
	// it is initialized again.
	ErrDiverged = errors.New("ekf: covariance diverged")
)
