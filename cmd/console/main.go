// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/asesyuk/icm20948-ekf/internal/app"
	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/sensors"
)

func main() {
	rate := flag.Float64("rate", 20, "filter rate in Hz")
	motion := flag.Float64("motion", 1, "simulated motion scale, 0 for a level board facing north")
	biasZ := flag.Float64("gyro-bias-z", 0.5, "simulated gyro Z bias in deg/s")
	noise := flag.Bool("noise", true, "add sensor noise")
	flag.Parse()

	log.Println("starting icm20948-ekf (simulated console)")

	opts := sensors.DefaultSimOptions()
	opts.Motion = *motion
	opts.GyroBias = geom.Vec3{0, 0, *biasZ}
	if *noise {
		opts.Noise = geom.Vec3{0.01, 0.1, 0.5}
	}
	if err := app.RunMockConsole(*rate, opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
