package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

func TestNewAxisMapRejectsNonPermutations(t *testing.T) {
	cases := []struct {
		name string
		m    geom.Mat3
	}{
		{"Scaled", geom.Diag(geom.Vec3{2, 1, 1})},
		{"ZeroRow", geom.Mat3{{1, 0, 0}, {0, 0, 0}, {0, 0, 1}}},
		{"DuplicateColumn", geom.Mat3{{1, 0, 0}, {-1, 0, 0}, {0, 0, 1}}},
		{"TwoPerRow", geom.Mat3{{1, 1, 0}, {0, 0, 1}, {0, 0, 0}}},
		{"Rotation45", geom.Mat3{{0.7071, -0.7071, 0}, {0.7071, 0.7071, 0}, {0, 0, 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAxisMap(tc.m)
			assert.Error(t, err)
		})
	}
}

func TestAxisMapIsOrthonormal(t *testing.T) {
	for _, axes := range []string{"+x,+y,+z", "-x,+y,+z", "+y,-x,+z", "-z,+x,-y"} {
		a, err := ParseAxisMap(axes)
		require.NoError(t, err, axes)
		m := a.Matrix()
		for j, row := range m {
			// Column j of m·mᵀ is m·(row j).
			assert.Equal(t, geom.Vec3(geom.Identity3()[j]), m.MulVec(row), axes)
		}

		v := geom.Vec3{1, 2, 3}
		assert.Equal(t, v, a.FromNav(a.ToNav(v)), axes)
		assert.Equal(t, axes, a.String())
	}
}

func TestParseAxisMap(t *testing.T) {
	a, err := ParseAxisMap(" +y , -x, z ")
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{2, -1, 3}, a.ToNav(geom.Vec3{1, 2, 3}))

	_, err = ParseAxisMap("+x,+y")
	assert.Error(t, err)
	_, err = ParseAxisMap("+x,+x,+z")
	assert.Error(t, err)
	_, err = ParseAxisMap("+x,+y,+w")
	assert.Error(t, err)
}

func TestDefaultICM20948LevelReadsGravityDown(t *testing.T) {
	tr := DefaultICM20948()

	// Chip-up and level, the accelerometer reports +1 g on its Z axis.
	assert.Equal(t, geom.Vec3{0, 0, 1}, tr.ToNav(imu.Accel, geom.Vec3{0, 0, 1}))
	// Nose up: sensor X points toward the sky and reads positive.
	assert.Equal(t, geom.Vec3{-0.5, 0, 0.8}, tr.ToNav(imu.Accel, geom.Vec3{0.5, 0, 0.8}))
	// Yawing right (clockwise from above) is negative about the chip's Z.
	assert.Equal(t, geom.Vec3{0, 0, 0.3}, tr.ToNav(imu.Gyro, geom.Vec3{0, 0, -0.3}))
	assert.Equal(t, geom.Vec3{20, 0, 40}, tr.ToNav(imu.Mag, geom.Vec3{20, 0, 40}))
}
