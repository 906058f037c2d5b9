package main

import (
	"flag"
	"log"

	"github.com/asesyuk/icm20948-ekf/internal/app"
	"github.com/asesyuk/icm20948-ekf/internal/config"
)

func main() {
	configPath := flag.String("config", "./ekf_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting icm20948-ekf console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
