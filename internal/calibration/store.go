// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

// File is the persisted calibration document.
//
// Field names follow the calibration tool output; the *_raw / *_factors
// aliases are what older calibration runs wrote and are still accepted.
type File struct {
	Timestamp        string   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	CoordinateSystem string   `json:"coordinate_system,omitempty" yaml:"coordinate_system,omitempty"`
	Abnormalities    []string `json:"abnormalities,omitempty" yaml:"abnormalities,omitempty"`

	Accelerometer *SensorEntry `json:"accelerometer" yaml:"accelerometer"`
	Gyroscope     *SensorEntry `json:"gyroscope" yaml:"gyroscope"`
	Magnetometer  *SensorEntry `json:"magnetometer" yaml:"magnetometer"`
}

// SensorEntry holds bias and scale for one sensor. Scale is either three
// per-axis factors or a full 3x3 matrix (magnetometer soft iron).
type SensorEntry struct {
	Bias  []float64 `json:"bias,omitempty" yaml:"bias,omitempty"`
	Scale any       `json:"scale,omitempty" yaml:"scale,omitempty"`

	BiasRaw      []float64 `json:"bias_raw,omitempty" yaml:"bias_raw,omitempty"`
	ScaleFactors any       `json:"scale_factors,omitempty" yaml:"scale_factors,omitempty"`
	HardIron     []float64 `json:"hard_iron_offset_raw,omitempty" yaml:"hard_iron_offset_raw,omitempty"`
	SoftIron     any       `json:"soft_iron_scale_raw,omitempty" yaml:"soft_iron_scale_raw,omitempty"`
}

// Load reads a calibration file (JSON, or YAML for .yaml/.yml) and returns
// a validated Set. A missing file or sensor section is a fatal error.
func Load(path string) (*Set, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	params, err := f.Params()
	if err != nil {
		return nil, fmt.Errorf("calibration %s: %w", path, err)
	}
	set, err := NewSet(params)
	if err != nil {
		return nil, fmt.Errorf("calibration %s: %w", path, err)
	}
	return set, nil
}

// ReadFile decodes a calibration document without validating it.
func ReadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration file: %w", err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &f)
	default:
		err = json.Unmarshal(b, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	return &f, nil
}

// Params converts the document into per-sensor parameters.
func (f *File) Params() (map[imu.Kind]Params, error) {
	entries := map[imu.Kind]*SensorEntry{
		imu.Accel: f.Accelerometer,
		imu.Gyro:  f.Gyroscope,
		imu.Mag:   f.Magnetometer,
	}
	out := make(map[imu.Kind]Params, len(entries))
	for _, k := range imu.Kinds {
		e := entries[k]
		if e == nil {
			return nil, fmt.Errorf("missing %s section", k)
		}
		p, err := e.params()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = p
	}
	return out, nil
}

func (e *SensorEntry) params() (Params, error) {
	bias := firstFloats(e.Bias, e.BiasRaw, e.HardIron)
	if bias == nil {
		return Params{}, fmt.Errorf("bias is required")
	}
	if len(bias) != 3 {
		return Params{}, fmt.Errorf("bias must have 3 values, got %d", len(bias))
	}

	p := Params{Bias: geom.Vec3{bias[0], bias[1], bias[2]}, Scale: geom.Identity3()}

	scale := e.Scale
	if scale == nil {
		scale = e.ScaleFactors
	}
	if scale == nil {
		scale = e.SoftIron
	}
	if scale == nil {
		// Gyro calibration runs only record a bias.
		return p, nil
	}
	m, err := parseScale(scale)
	if err != nil {
		return Params{}, err
	}
	p.Scale = m
	return p, nil
}

func firstFloats(candidates ...[]float64) []float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// parseScale accepts [sx, sy, sz] or [[...],[...],[...]] as decoded by
// encoding/json or yaml.v3.
func parseScale(v any) (geom.Mat3, error) {
	list, ok := v.([]any)
	if !ok {
		return geom.Mat3{}, fmt.Errorf("scale must be a list, got %T", v)
	}
	if len(list) != 3 {
		return geom.Mat3{}, fmt.Errorf("scale must have 3 entries, got %d", len(list))
	}

	if _, nested := list[0].([]any); !nested {
		var d geom.Vec3
		for i, x := range list {
			f, err := toFloat(x)
			if err != nil {
				return geom.Mat3{}, fmt.Errorf("scale[%d]: %w", i, err)
			}
			d[i] = f
		}
		return geom.Diag(d), nil
	}

	var m geom.Mat3
	for i, row := range list {
		cols, ok := row.([]any)
		if !ok || len(cols) != 3 {
			return geom.Mat3{}, fmt.Errorf("scale row %d must have 3 entries", i)
		}
		for j, x := range cols {
			f, err := toFloat(x)
			if err != nil {
				return geom.Mat3{}, fmt.Errorf("scale[%d][%d]: %w", i, j, err)
			}
			m[i][j] = f
		}
	}
	return m, nil
}

func toFloat(x any) (float64, error) {
	switch n := x.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("not a number: %v", x)
}

// IdentityFile is a calibration document with zero bias and unit scale for
// every sensor, the starting point for a hand-edited calibration.
func IdentityFile() *File {
	entry := func() *SensorEntry {
		return &SensorEntry{Bias: []float64{0, 0, 0}, Scale: []float64{1, 1, 1}}
	}
	return &File{
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		CoordinateSystem: "sensor",
		Accelerometer:    entry(),
		Gyroscope:        entry(),
		Magnetometer: &SensorEntry{
			Bias:  []float64{0, 0, 0},
			Scale: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		},
	}
}

// Save writes f as indented JSON.
func Save(path string, f *File) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write calibration file: %w", err)
	}
	return nil
}
