// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion runs one filter cycle per raw sample:
//
//	raw -> calibration -> axis map -> predict (gyro) -> update (accel, mag)
//
// It also owns the recovery paths: seeding on the first sample, skipping
// rejected measurements, and re-seeding after divergence or a long gap.
package fusion

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/asesyuk/icm20948-ekf/internal/calibration"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

// DeclinationSource supplies a live magnetic declination in radians (east
// positive). ok is false until a value is known.
type DeclinationSource interface {
	Declination() (rad float64, ok bool)
}

// Options for a Pipeline.
type Options struct {
	// Declination (radians) used while no DeclinationSource value is known.
	Declination float64
	// NominalDt (seconds) replaces a missing or non-increasing timestamp.
	NominalDt float64
	// Declinations is optional.
	Declinations DeclinationSource
}

// Stats counts what happened across all cycles.
type Stats struct {
	Cycles        uint64 `json:"cycles"`
	AccelSkipped  uint64 `json:"accel_skipped"`
	MagSkipped    uint64 `json:"mag_skipped"`
	Reinitialized uint64 `json:"reinitialized"`
	Flips         uint64 `json:"flips"`
	Errors        uint64 `json:"errors"`
}

// Pipeline owns one filter. It is not safe for concurrent use: Step is the
// critical section.
type Pipeline struct {
	cal    *calibration.Set
	tr     frame.Transform
	filter *ekf.Filter
	opts   Options

	lastTime time.Time
	stats    Stats
}

// New wires the stages together. cal and filter are required.
func New(cal *calibration.Set, tr frame.Transform, filter *ekf.Filter, opts Options) (*Pipeline, error) {
	if cal == nil {
		return nil, fmt.Errorf("fusion: calibration is required")
	}
	if filter == nil {
		return nil, fmt.Errorf("fusion: filter is required")
	}
	if !(opts.NominalDt > 0) || opts.NominalDt > filter.Config().MaxDt {
		return nil, fmt.Errorf("fusion: nominal dt %v must be in (0, %v]", opts.NominalDt, filter.Config().MaxDt)
	}
	return &Pipeline{cal: cal, tr: tr, filter: filter, opts: opts}, nil
}

// Stats returns the counters so far.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Filter exposes the owned filter for inspection.
func (p *Pipeline) Filter() *ekf.Filter {
	return p.filter
}

// Step runs one cycle. The returned estimate is always well formed; err is
// non-nil when the cycle could not be applied (bad input or divergence), in
// which case the next Step recovers on its own.
func (p *Pipeline) Step(s imu.Sample) (ekf.Estimate, error) {
	p.stats.Cycles++
	flipsBefore := p.filter.Flips()

	accel := p.tr.ToNav(imu.Accel, p.cal.Apply(imu.Accel, s.Accel))
	gyro := geom.RadVec(p.tr.ToNav(imu.Gyro, p.cal.Apply(imu.Gyro, s.Gyro)))
	mag := p.tr.ToNav(imu.Mag, p.cal.Apply(imu.Mag, s.Mag))
	decl := p.declination()

	dt := s.Time.Sub(p.lastTime).Seconds()
	if p.lastTime.IsZero() || s.Time.IsZero() || dt <= 0 {
		dt = p.opts.NominalDt
	}

	var (
		out ekf.Estimate
		err error
	)
	switch {
	case !p.filter.Initialized() || p.filter.Diverged() || dt > p.filter.Config().MaxDt:
		out, err = p.seed(accel, mag, s.MagValid, decl, dt)
	default:
		out, err = p.cycle(accel, gyro, mag, s.MagValid, decl, dt)
	}
	if !s.Time.IsZero() {
		p.lastTime = s.Time
	}

	out.Time = s.Time
	if flips := p.filter.Flips() - flipsBefore; flips > 0 {
		out.Flipped = true
		p.stats.Flips += flips
	}
	if err != nil {
		p.stats.Errors++
	}
	return out, err
}

func (p *Pipeline) seed(accel, mag geom.Vec3, magValid bool, decl, dt float64) (ekf.Estimate, error) {
	switch {
	case p.filter.Diverged():
		p.stats.Reinitialized++
		log.Printf("fusion: covariance diverged, re-initializing from sensors")
	case p.filter.Initialized():
		p.stats.Reinitialized++
		log.Printf("fusion: %.2fs gap exceeds max dt, re-initializing from sensors", dt)
	}
	if err := p.filter.SeedFromSensors(accel, mag, magValid, decl); err != nil {
		return p.filter.Estimate(), fmt.Errorf("fusion: seed: %w", err)
	}
	out := p.filter.Estimate()
	out.MagSkipped = !magValid
	return out, nil
}

func (p *Pipeline) cycle(accel, gyro, mag geom.Vec3, magValid bool, decl, dt float64) (ekf.Estimate, error) {
	if err := p.filter.Predict(gyro, dt); err != nil {
		return p.filter.Estimate(), fmt.Errorf("fusion: predict: %w", err)
	}

	var out ekf.Estimate
	switch err := p.filter.UpdateAccel(accel); {
	case errors.Is(err, ekf.ErrAccelRejected):
		out.AccelSkipped = true
		p.stats.AccelSkipped++
	case errors.Is(err, ekf.ErrInvalidInput):
		log.Printf("fusion: skipping accel update: %v", err)
		out.AccelSkipped = true
		p.stats.AccelSkipped++
	case err != nil:
		return p.filter.Estimate(), fmt.Errorf("fusion: accel update: %w", err)
	}

	if !magValid {
		out.MagSkipped = true
		p.stats.MagSkipped++
	} else {
		switch err := p.filter.UpdateMag(mag, decl); {
		case errors.Is(err, ekf.ErrMagRejected):
			out.MagSkipped = true
			p.stats.MagSkipped++
		case errors.Is(err, ekf.ErrInvalidInput):
			log.Printf("fusion: skipping mag update: %v", err)
			out.MagSkipped = true
			p.stats.MagSkipped++
		case err != nil:
			return p.filter.Estimate(), fmt.Errorf("fusion: mag update: %w", err)
		}
	}

	e := p.filter.Estimate()
	e.AccelSkipped = out.AccelSkipped
	e.MagSkipped = out.MagSkipped
	return e, nil
}

func (p *Pipeline) declination() float64 {
	if p.opts.Declinations != nil {
		if d, ok := p.opts.Declinations.Declination(); ok {
			return d
		}
	}
	return p.opts.Declination
}
