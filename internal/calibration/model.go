// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration applies precomputed bias/scale corrections to raw
// sensor samples and loads those parameters from disk.
//
// Corrections are physical-sensor properties: they are always applied in
// the sensor's own axes, before any frame remapping.
package calibration

import (
	"fmt"
	"math"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

// minAbsDet is the smallest |det(scale)| accepted as invertible.
const minAbsDet = 1e-12

// Params is the affine correction for one sensor:
//
//	corrected = Scale · (raw − Bias)
//
// For the magnetometer Bias is the hard-iron offset and Scale the soft-iron
// matrix; accelerometer and gyroscope use a diagonal Scale.
type Params struct {
	Bias  geom.Vec3
	Scale geom.Mat3
}

// Identity returns parameters that leave samples unchanged.
func Identity() Params {
	return Params{Scale: geom.Identity3()}
}

// Model is an immutable, validated correction for one sensor.
type Model struct {
	p Params
}

// NewModel validates p and returns a Model. A singular or non-finite scale
// matrix is rejected.
func NewModel(p Params) (*Model, error) {
	if !p.Bias.IsFinite() {
		return nil, fmt.Errorf("calibration: bias is not finite: %v", p.Bias)
	}
	if !p.Scale.IsFinite() {
		return nil, fmt.Errorf("calibration: scale is not finite: %v", p.Scale)
	}
	if det := p.Scale.Det(); math.Abs(det) < minAbsDet {
		return nil, fmt.Errorf("calibration: scale matrix is singular (det=%g)", det)
	}
	return &Model{p: p}, nil
}

// Apply returns Scale · (raw − Bias).
func (m *Model) Apply(raw geom.Vec3) geom.Vec3 {
	return m.p.Scale.MulVec(raw.Sub(m.p.Bias))
}

// Params returns a copy of the parameters behind the model.
func (m *Model) Params() Params {
	return m.p
}

// Set holds one Model per sensor kind.
type Set struct {
	models [len(imu.Kinds)]*Model
}

// NewSet builds a Set. Every sensor kind must be present.
func NewSet(params map[imu.Kind]Params) (*Set, error) {
	s := &Set{}
	for _, k := range imu.Kinds {
		p, ok := params[k]
		if !ok {
			return nil, fmt.Errorf("calibration: missing %s parameters", k)
		}
		m, err := NewModel(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		s.models[k] = m
	}
	return s, nil
}

// IdentitySet returns a Set that leaves every sensor unchanged.
func IdentitySet() *Set {
	s := &Set{}
	for _, k := range imu.Kinds {
		s.models[k] = &Model{p: Identity()}
	}
	return s
}

// Apply corrects a raw sample of the given kind.
func (s *Set) Apply(k imu.Kind, raw geom.Vec3) geom.Vec3 {
	return s.models[k].Apply(raw)
}

// Model returns the model for kind k.
func (s *Set) Model(k imu.Kind) *Model {
	return s.models[k]
}
