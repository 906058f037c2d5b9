// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/asesyuk/icm20948-ekf/internal/app"
	"github.com/asesyuk/icm20948-ekf/internal/calibration"
	"github.com/asesyuk/icm20948-ekf/internal/config"
)

func main() {
	configPath := flag.String("config", "./ekf_config.txt", "path to configuration file")
	initCal := flag.String("init-calibration", "", "write an identity calibration file to this path and exit")
	flag.Parse()

	if *initCal != "" {
		if err := calibration.Save(*initCal, calibration.IdentityFile()); err != nil {
			log.Fatalf("failed to write calibration: %v", err)
		}
		log.Printf("wrote identity calibration to %s", *initCal)
		return
	}

	log.Println("starting icm20948-ekf attitude producer (ICM-20948 → EKF → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunAttitudeProducer(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
