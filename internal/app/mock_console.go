// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"time"

	"github.com/asesyuk/icm20948-ekf/internal/calibration"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/fusion"
	"github.com/asesyuk/icm20948-ekf/internal/sensors"
)

// RunMockConsole runs the filter against the simulator in-process and
// prints the estimate next to the simulated truth. No broker or hardware.
func RunMockConsole(rateHz float64, opts sensors.SimOptions) error {
	tr := frame.DefaultICM20948()
	src := sensors.NewSimSource(tr, opts)

	filter, err := ekf.New(ekf.DefaultConfig())
	if err != nil {
		return err
	}
	pipe, err := fusion.New(calibration.IdentitySet(), tr, filter, fusion.Options{NominalDt: 1 / rateHz})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rateHz))
	defer ticker.Stop()

	start := time.Now()
	for t := range ticker.C {
		sample := src.SampleAt(t.Sub(start).Seconds())
		sample.Time = t
		est, err := pipe.Step(sample)
		if err != nil {
			fmt.Printf("ekf: %v\n", err)
			continue
		}
		truth := src.Pose(t.Sub(start).Seconds())
		fmt.Printf("%s\n[TRUE] ROLL=%7.2f       PITCH=%7.2f       YAW=%7.2f\n",
			formatEstimate(est), truth.Roll, truth.Pitch, truth.Yaw)
	}
	return nil
}
