package app

import (
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/asesyuk/icm20948-ekf/internal/config"
	"github.com/asesyuk/icm20948-ekf/internal/ekf"
)

// frameDrawer is the part of *ssd1306.Dev the display loop uses.
type frameDrawer interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

func newFrame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// renderAttitude draws roll, pitch, yaw and the yaw sigma on a 128x64
// frame, or a waiting screen before the first estimate.
func renderAttitude(e ekf.Estimate, haveData bool) *image1bit.VerticalLSB {
	img, drawer := newFrame()

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString("Attitude EKF")
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawString(fmt.Sprintf("R: %6.1f", e.Roll))
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawString(fmt.Sprintf("P: %6.1f", e.Pitch))
	drawer.Dot = fixed.P(0, 39)
	drawer.DrawString(fmt.Sprintf("Y: %6.1f", e.Yaw))

	status := fmt.Sprintf("sY %.1f", e.AttitudeSigma[2])
	switch {
	case e.Diverged:
		status = "DIVERGED"
	case e.MagSkipped:
		status += " noMAG"
	}
	drawer.Dot = fixed.P(0, 52)
	drawer.DrawString(status)
	return img
}

// RunDisplay shows the latest attitude on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.IMUI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: SSD1306 initialized")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// AttitudeServer already keeps the latest estimate under a lock.
	latest := NewAttitudeServer()
	if err := subscribe(client, cfg.TopicAttitude, latest.HandleMessage); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for range ticker.C {
		if err := showLatest(dev, latest); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

func showLatest(dev frameDrawer, latest *AttitudeServer) error {
	e, ok := latest.Latest()
	return dev.Draw(dev.Bounds(), renderAttitude(e, ok), image.Point{})
}
