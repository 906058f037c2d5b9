package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/asesyuk/icm20948-ekf/internal/config"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/gps"
)

func formatEstimate(e ekf.Estimate) string {
	flags := ""
	if e.AccelSkipped {
		flags += " A"
	}
	if e.MagSkipped {
		flags += " M"
	}
	if e.Flipped {
		flags += " FLIP"
	}
	if e.Diverged {
		flags += " DIVERGED"
	}
	return fmt.Sprintf(
		"[ATT]  ROLL=%7.2f±%.2f  PITCH=%7.2f±%.2f  YAW=%7.2f±%.2f  BIAS=%6.3f %6.3f %6.3f°/s%s",
		e.Roll, e.AttitudeSigma[0], e.Pitch, e.AttitudeSigma[1], e.Yaw, e.AttitudeSigma[2],
		e.Bias[0], e.Bias[1], e.Bias[2], flags,
	)
}

func formatFix(f gps.Fix) string {
	decl := "n/a"
	if f.HasDeclination {
		decl = fmt.Sprintf("%.1f°", f.Declination)
	}
	return fmt.Sprintf(
		"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f speed=%.1fkn course=%.1f° decl=%s validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.SpeedKnots, f.CourseDeg, decl, f.Validity,
	)
}

// RunConsoleMQTT prints attitude and GPS messages until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	err = subscribe(client, cfg.TopicAttitude, func(payload []byte) error {
		var e ekf.Estimate
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}
		fmt.Println(formatEstimate(e))
		return nil
	})
	if err != nil {
		return err
	}

	if cfg.TopicGPS != "" {
		err = subscribe(client, cfg.TopicGPS, func(payload []byte) error {
			var f gps.Fix
			if err := json.Unmarshal(payload, &f); err != nil {
				return err
			}
			fmt.Println(formatFix(f))
			return nil
		})
		if err != nil {
			return err
		}
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
