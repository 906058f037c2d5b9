// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ekf

import (
	"time"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/orientation"
)

// Estimate is the per-cycle output in display units: degrees and deg/s.
// This is the JSON published on the attitude topic.
type Estimate struct {
	Time time.Time `json:"time"`

	orientation.Pose
	Bias geom.Vec3 `json:"bias"` // deg/s

	AttitudeSigma geom.Vec3 `json:"attitude_sigma"` // deg
	BiasSigma     geom.Vec3 `json:"bias_sigma"`     // deg/s

	AccelSkipped bool `json:"accel_skipped"`
	MagSkipped   bool `json:"mag_skipped"`
	Diverged     bool `json:"diverged"`
	Flipped      bool `json:"flipped"`
}

// Estimate converts the current state and the diagonal of P. Flags other
// than Diverged are filled in by the caller that ran the cycle.
func (f *Filter) Estimate() Estimate {
	sd := f.StdDev()
	return Estimate{
		Pose:          orientation.PoseFromRadians(f.x.Roll, f.x.Pitch, f.x.Yaw),
		Bias:          geom.DegVec(f.x.Bias),
		AttitudeSigma: geom.DegVec(geom.Vec3{sd[Roll], sd[Pitch], sd[Yaw]}),
		BiasSigma:     geom.DegVec(geom.Vec3{sd[BiasX], sd[BiasY], sd[BiasZ]}),
		Diverged:      f.diverged,
	}
}
