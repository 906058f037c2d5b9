// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asesyuk/icm20948-ekf/internal/calibration"
	"github.com/asesyuk/icm20948-ekf/internal/config"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/fusion"
	"github.com/asesyuk/icm20948-ekf/internal/gps"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
	"github.com/asesyuk/icm20948-ekf/internal/sensors"
)

// AttitudeProducer reads the sensor on every tick, runs one filter cycle
// and publishes the estimate.
type AttitudeProducer struct {
	src   imu.Source
	pipe  *fusion.Pipeline
	pub   Publisher
	topic string

	logEvery time.Duration
	lastLog  time.Time
}

// NewAttitudeProducer wires a source, a pipeline and a publisher. logEvery
// of zero disables the periodic status line.
func NewAttitudeProducer(src imu.Source, pipe *fusion.Pipeline, pub Publisher, topic string, logEvery time.Duration) *AttitudeProducer {
	return &AttitudeProducer{src: src, pipe: pipe, pub: pub, topic: topic, logEvery: logEvery}
}

// Tick runs one cycle. Filter errors are logged and the estimate is still
// published (it carries the diverged flag) once the filter has been seeded.
func (p *AttitudeProducer) Tick(ctx context.Context, now time.Time) error {
	s, err := p.src.Next(ctx)
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}

	est, err := p.pipe.Step(s)
	if err != nil {
		log.Printf("ekf: %v", err)
		if !p.pipe.Filter().Initialized() {
			return nil
		}
	}

	payload, err := json.Marshal(est)
	if err != nil {
		return fmt.Errorf("json marshal error (attitude): %w", err)
	}
	if err := p.pub.Publish(p.topic, payload); err != nil {
		return fmt.Errorf("MQTT publish error (attitude): %w", err)
	}

	if p.logEvery > 0 && now.Sub(p.lastLog) >= p.logEvery {
		p.lastLog = now
		p.logStatus(est)
	}
	return nil
}

func (p *AttitudeProducer) logStatus(est ekf.Estimate) {
	st := p.pipe.Stats()
	log.Printf("attitude: roll=%6.2f pitch=%6.2f yaw=%7.2f σ=(%.2f %.2f %.2f)° bias=(%.3f %.3f %.3f)°/s cycles=%d accel_skip=%d mag_skip=%d reinit=%d flips=%d",
		est.Roll, est.Pitch, est.Yaw,
		est.AttitudeSigma[0], est.AttitudeSigma[1], est.AttitudeSigma[2],
		est.Bias[0], est.Bias[1], est.Bias[2],
		st.Cycles, st.AccelSkipped, st.MagSkipped, st.Reinitialized, st.Flips)
}

// Run calls Tick for every tick until ctx is done or ticks is closed.
func (p *AttitudeProducer) Run(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := p.Tick(ctx, t); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Printf("producer: %v", err)
			}
		}
	}
}

// openSource returns the sensor source and the calibration selected in cfg.
// The simulator runs without a calibration file.
func openSource(cfg *config.Config, tr frame.Transform) (imu.Source, *calibration.Set, error) {
	var cal *calibration.Set
	if cfg.CalibrationFile != "" {
		var err error
		cal, err = calibration.Load(cfg.CalibrationFile)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("calibration loaded from %s", cfg.CalibrationFile)
	}

	switch cfg.Source {
	case config.SourceSim:
		log.Println("using simulated ICM-20948 source")
		if cal == nil {
			cal = calibration.IdentitySet()
		}
		return sensors.NewSimSource(tr, sensors.DefaultSimOptions()), cal, nil
	default:
		dev, err := sensors.OpenICM20948(cfg.SensorOptions())
		if err != nil {
			return nil, nil, err
		}
		return dev, cal, nil
	}
}

// RunAttitudeProducer runs the sensor → EKF → MQTT loop with the global
// configuration until SIGINT/SIGTERM.
func RunAttitudeProducer() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	tr, err := cfg.Transform()
	if err != nil {
		return err
	}
	src, cal, err := openSource(cfg, tr)
	if err != nil {
		return err
	}
	defer src.Close()

	filter, err := ekf.New(cfg.Filter())
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// Declination from the GPS producer, when one is running.
	decl := gps.NewDeclinationReader()
	if cfg.TopicGPS != "" {
		err := subscribe(client, cfg.TopicGPS, func(payload []byte) error {
			var fix gps.Fix
			if err := json.Unmarshal(payload, &fix); err != nil {
				return err
			}
			decl.Update(fix)
			return nil
		})
		if err != nil {
			return err
		}
	}

	pipe, err := fusion.New(cal, tr, filter, fusion.Options{
		Declination:  cfg.Declination(),
		NominalDt:    cfg.NominalDt(),
		Declinations: decl,
	})
	if err != nil {
		return err
	}

	producer := NewAttitudeProducer(src, pipe, mqttPublisher{client: client}, cfg.TopicAttitude,
		time.Duration(cfg.ConsoleLogInterval)*time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(cfg.SampleInterval())
	defer ticker.Stop()

	log.Printf("publishing attitude to %s at %.1f Hz", cfg.TopicAttitude, cfg.UpdateRateHz)
	if err := producer.Run(ctx, ticker.C); err != nil && ctx.Err() == nil {
		return err
	}
	log.Println("producer: shutting down")
	return nil
}
