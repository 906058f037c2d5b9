// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/asesyuk/icm20948-ekf/internal/config"
	"github.com/asesyuk/icm20948-ekf/internal/sensors"
)

func main() {
	configPath := flag.String("config", "./ekf_config.txt", "path to configuration file")
	asJSON := flag.Bool("json", false, "print registers as JSON")
	flag.Parse()

	log.Println("starting ICM-20948 register dump")

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dev, err := sensors.OpenICM20948(config.Get().SensorOptions())
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	defer dev.Close()

	regs, err := dev.DumpRegisters()
	if err != nil {
		log.Printf("register dump incomplete: %v", err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(regs); err != nil {
			log.Fatalf("json encode error: %v", err)
		}
		return
	}
	for _, r := range regs {
		fmt.Println(r)
	}
}
