// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
	"github.com/asesyuk/icm20948-ekf/internal/orientation"
)

// SimOptions shapes the simulated board.
type SimOptions struct {
	// Field is the Earth field in NED (µT), already in true-north axes.
	Field geom.Vec3
	// Motion scales the swing amplitudes and the turn rate; 0 is a board
	// sitting level and facing north.
	Motion float64
	// GyroBias is added to every gyro sample (deg/s, sensor axes).
	GyroBias geom.Vec3
	// Noise is the standard deviation added to accel (g), gyro (deg/s) and
	// mag (µT) in that order.
	Noise geom.Vec3
	// MagDropEvery marks every Nth sample MagValid=false (0 never).
	MagDropEvery int
	Seed         int64
}

// DefaultSimOptions is a quiet board in a mid-latitude field.
func DefaultSimOptions() SimOptions {
	return SimOptions{Field: geom.Vec3{20, 0, 45}, Motion: 1}
}

// SimSource generates smooth changing attitude and the raw sensor readings
// that board would produce, mapped back through the inverse of the
// configured axis maps.
type SimSource struct {
	tr    frame.Transform
	opts  SimOptions
	rng   *rand.Rand
	start time.Time
	now   func() time.Time
	count int
}

// NewSimSource creates a simulated source.
func NewSimSource(tr frame.Transform, opts SimOptions) *SimSource {
	return &SimSource{
		tr:    tr,
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		start: time.Now(),
		now:   time.Now,
	}
}

// Truth returns the simulated attitude (radians) and its Euler rates at
// elapsed seconds t.
func (s *SimSource) Truth(t float64) (angles, rates geom.Vec3) {
	k := s.opts.Motion
	angles = geom.Vec3{
		k * geom.Rad(20) * math.Sin(t),
		k * geom.Rad(15) * math.Cos(t*0.7),
		geom.Wrap(k * geom.Rad(30) * t),
	}
	rates = geom.Vec3{
		k * geom.Rad(20) * math.Cos(t),
		-k * geom.Rad(15) * 0.7 * math.Sin(t*0.7),
		k * geom.Rad(30),
	}
	return angles, rates
}

// Pose is Truth as an orientation.Pose in degrees.
func (s *SimSource) Pose(t float64) orientation.Pose {
	a, _ := s.Truth(t)
	return orientation.PoseFromRadians(a[0], a[1], a[2])
}

func (s *SimSource) Next(ctx context.Context) (imu.Sample, error) {
	if err := ctx.Err(); err != nil {
		return imu.Sample{}, err
	}
	now := s.now()
	sample := s.SampleAt(now.Sub(s.start).Seconds())
	sample.Time = now
	return sample, nil
}

// SampleAt builds the raw readings for elapsed seconds t.
func (s *SimSource) SampleAt(t float64) imu.Sample {
	a, r := s.Truth(t)
	roll, pitch, yaw := a[0], a[1], a[2]

	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	body := bodyRates(r, sr, cr, sp, cp)

	gravity := rotateToBody(geom.Vec3{0, 0, 1}, roll, pitch, yaw)
	field := rotateToBody(s.opts.Field, roll, pitch, yaw)

	s.count++
	sample := imu.Sample{
		Source:   "sim",
		Accel:    s.tr.Map(imu.Accel).FromNav(gravity).Add(s.noise(0)),
		Gyro:     s.tr.Map(imu.Gyro).FromNav(geom.DegVec(body)).Add(s.opts.GyroBias).Add(s.noise(1)),
		Mag:      s.tr.Map(imu.Mag).FromNav(field).Add(s.noise(2)),
		MagValid: s.opts.MagDropEvery <= 0 || s.count%s.opts.MagDropEvery != 0,
	}
	return sample
}

func (s *SimSource) Close() error {
	return nil
}

func (s *SimSource) noise(i int) geom.Vec3 {
	sd := s.opts.Noise[i]
	if sd == 0 {
		return geom.Vec3{}
	}
	return geom.Vec3{s.rng.NormFloat64() * sd, s.rng.NormFloat64() * sd, s.rng.NormFloat64() * sd}
}

// bodyRates converts Euler angle rates to body rates (p, q, r).
func bodyRates(euler geom.Vec3, sr, cr, sp, cp float64) geom.Vec3 {
	dRoll, dPitch, dYaw := euler[0], euler[1], euler[2]
	return geom.Vec3{
		dRoll - dYaw*sp,
		dPitch*cr + dYaw*sr*cp,
		-dPitch*sr + dYaw*cr*cp,
	}
}

// rotateToBody expresses a NED vector in the body frame (Z-Y-X Euler).
func rotateToBody(v geom.Vec3, roll, pitch, yaw float64) geom.Vec3 {
	sy, cy := math.Sincos(yaw)
	v = geom.Vec3{cy*v[0] + sy*v[1], -sy*v[0] + cy*v[1], v[2]}
	sp, cp := math.Sincos(pitch)
	v = geom.Vec3{cp*v[0] - sp*v[2], v[1], sp*v[0] + cp*v[2]}
	sr, cr := math.Sincos(roll)
	return geom.Vec3{v[0], cr*v[1] + sr*v[2], -sr*v[1] + cr*v[2]}
}
