package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/asesyuk/icm20948-ekf/internal/config"
	"github.com/asesyuk/icm20948-ekf/internal/gps"
)

// publishFix returns the onFix callback that publishes every valid RMC fix
// as JSON.
func publishFix(pub Publisher, topic string) func(gps.Fix) {
	return func(f gps.Fix) {
		payload, err := json.Marshal(f)
		if err != nil {
			log.Printf("GPS JSON marshal error: %v", err)
			return
		}
		if err := pub.Publish(topic, payload); err != nil {
			log.Printf("GPS publish error: %v", err)
		}
	}
}

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes fixes (with magnetic declination) to the GPS topic. The attitude
// producer subscribes to it for live declination.
func RunGPSProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	if cfg.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required")
	}
	if cfg.TopicGPS == "" {
		return fmt.Errorf("TOPIC_GPS is required")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	port, err := gps.OpenPort(gps.PortOptions{Name: cfg.GPSSerialPort, Baud: uint(cfg.GPSBaudRate)})
	if err != nil {
		return err
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	reader := gps.NewDeclinationReader()
	err = reader.Run(ctx, port, publishFix(mqttPublisher{client: client}, cfg.TopicGPS))
	if ctx.Err() != nil {
		log.Println("GPS producer: shutting down")
		return nil
	}
	return err
}
