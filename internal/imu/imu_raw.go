package imu

import (
	"context"
	"fmt"
	"time"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
)

// Kind identifies one of the three sensors on the 9-DoF board.
type Kind int

const (
	Accel Kind = iota
	Gyro
	Mag
)

// Kinds lists every sensor kind in a fixed order.
var Kinds = [...]Kind{Accel, Gyro, Mag}

func (k Kind) String() string {
	switch k {
	case Accel:
		return "accelerometer"
	case Gyro:
		return "gyroscope"
	case Mag:
		return "magnetometer"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sample represents a single raw IMU+mag reading in physical units.
type Sample struct {
	Source string    `json:"source"`
	Time   time.Time `json:"time"`

	Accel geom.Vec3 `json:"accel"` // g
	Gyro  geom.Vec3 `json:"gyro"`  // deg/s
	Mag   geom.Vec3 `json:"mag"`   // µT

	// MagValid is false when the magnetometer had no fresh data, overflowed
	// or could not be read. Accel and gyro are always valid when Next succeeds.
	MagValid bool `json:"mag_valid"`
}

// Source supplies raw samples on demand. Next may block on bus I/O.
type Source interface {
	Next(ctx context.Context) (Sample, error)
	Close() error
}
