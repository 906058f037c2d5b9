package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestModelApply(t *testing.T) {
	m, err := NewModel(Params{
		Bias:  geom.Vec3{0.1, -0.2, 0.05},
		Scale: geom.Diag(geom.Vec3{2, 1, 0.5}),
	})
	require.NoError(t, err)

	got := m.Apply(geom.Vec3{1.1, 0.8, 1.05})
	assert.InDelta(t, 2.0, got[0], 1e-12)
	assert.InDelta(t, 1.0, got[1], 1e-12)
	assert.InDelta(t, 0.5, got[2], 1e-12)
}

func TestModelApplySoftIronMatrix(t *testing.T) {
	soft := geom.Mat3{{1, 0.1, 0}, {0.1, 1, 0}, {0, 0, 1}}
	m, err := NewModel(Params{Bias: geom.Vec3{10, 0, 0}, Scale: soft})
	require.NoError(t, err)

	got := m.Apply(geom.Vec3{11, 2, 3})
	assert.InDelta(t, 1.2, got[0], 1e-12)
	assert.InDelta(t, 2.1, got[1], 1e-12)
	assert.InDelta(t, 3.0, got[2], 1e-12)
}

func TestNewModelRejectsSingularScale(t *testing.T) {
	_, err := NewModel(Params{Scale: geom.Diag(geom.Vec3{1, 0, 1})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "singular")

	_, err = NewModel(Params{Scale: geom.Mat3{{1, 2, 3}, {2, 4, 6}, {1, 0, 0}}})
	assert.Error(t, err)
}

func TestNewSetRequiresEveryKind(t *testing.T) {
	_, err := NewSet(map[imu.Kind]Params{
		imu.Accel: Identity(),
		imu.Gyro:  Identity(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magnetometer")
}

func TestLoadJSON(t *testing.T) {
	path := writeTemp(t, "cal.json", `{
  "timestamp": "2025-08-01T10:00:00",
  "accelerometer": {"bias": [0.01, -0.02, 0.03], "scale": [1.0, 1.0, 0.98]},
  "gyroscope": {"bias": [0.5, -0.3, 0.1]},
  "magnetometer": {
    "bias": [12.0, -4.0, 30.0],
    "scale": [[1.02, 0.01, 0.0], [0.01, 0.97, 0.0], [0.0, 0.0, 1.01]]
  }
}`)
	set, err := Load(path)
	require.NoError(t, err)

	g := set.Model(imu.Gyro).Params()
	assert.Equal(t, geom.Vec3{0.5, -0.3, 0.1}, g.Bias)
	assert.Equal(t, geom.Identity3(), g.Scale)

	mag := set.Model(imu.Mag).Params()
	assert.InDelta(t, 0.01, mag.Scale[0][1], 1e-12)
	assert.InDelta(t, 0.97, mag.Scale[1][1], 1e-12)

	got := set.Apply(imu.Accel, geom.Vec3{0.01, -0.02, 1.03})
	assert.InDelta(t, 0.98, got[2], 1e-12)
}

func TestLoadAcceptsLegacyKeys(t *testing.T) {
	path := writeTemp(t, "legacy.json", `{
  "coordinate_system": "raw_sensor_coordinates",
  "accelerometer": {"bias_raw": [0.0, 0.0, 0.1], "scale_factors": [1.0, 1.0, 1.0]},
  "gyroscope": {"bias_raw": [1.0, 2.0, 3.0]},
  "magnetometer": {"hard_iron_offset_raw": [5.0, 6.0, 7.0], "soft_iron_scale_raw": [1.1, 0.9, 1.0]}
}`)
	set, err := Load(path)
	require.NoError(t, err)

	mag := set.Model(imu.Mag).Params()
	assert.Equal(t, geom.Vec3{5, 6, 7}, mag.Bias)
	assert.InDelta(t, 1.1, mag.Scale[0][0], 1e-12)
	assert.InDelta(t, 0.0, mag.Scale[0][1], 1e-12)
}

func TestLoadYAML(t *testing.T) {
	path := writeTemp(t, "cal.yaml", `
accelerometer:
  bias: [0, 0, 0]
  scale: [1, 1, 1]
gyroscope:
  bias: [0.2, 0.2, 0.2]
magnetometer:
  bias: [1, 2, 3]
  scale:
    - [2, 0, 0]
    - [0, 2, 0]
    - [0, 0, 2]
`)
	set, err := Load(path)
	require.NoError(t, err)

	got := set.Apply(imu.Mag, geom.Vec3{2, 3, 4})
	assert.Equal(t, geom.Vec3{2, 2, 2}, got)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		want     string
	}{
		{
			name:     "MissingMag",
			contents: `{"accelerometer": {"bias": [0,0,0]}, "gyroscope": {"bias": [0,0,0]}}`,
			want:     "missing magnetometer section",
		},
		{
			name:     "MissingBias",
			contents: `{"accelerometer": {"scale": [1,1,1]}, "gyroscope": {"bias": [0,0,0]}, "magnetometer": {"bias": [0,0,0]}}`,
			want:     "bias is required",
		},
		{
			name:     "ShortBias",
			contents: `{"accelerometer": {"bias": [0,0]}, "gyroscope": {"bias": [0,0,0]}, "magnetometer": {"bias": [0,0,0]}}`,
			want:     "bias must have 3 values",
		},
		{
			name:     "SingularSoftIron",
			contents: `{"accelerometer": {"bias": [0,0,0]}, "gyroscope": {"bias": [0,0,0]}, "magnetometer": {"bias": [0,0,0], "scale": [1, 0, 1]}}`,
			want:     "singular",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, "cal.json", tc.contents)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	f := &File{
		Accelerometer: &SensorEntry{Bias: []float64{0, 0, 0}, Scale: []float64{1, 1, 1}},
		Gyroscope:     &SensorEntry{Bias: []float64{0.1, 0.2, 0.3}},
		Magnetometer:  &SensorEntry{Bias: []float64{1, 1, 1}, Scale: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
	}
	require.NoError(t, Save(path, f))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, geom.Vec3{0.1, 0.2, 0.3}, set.Model(imu.Gyro).Params().Bias)
}

func TestIdentityFileLoadsAsIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, Save(path, IdentityFile()))

	set, err := Load(path)
	require.NoError(t, err)
	for _, k := range imu.Kinds {
		assert.Equal(t, Identity(), set.Model(k).Params(), k.String())
	}
	raw := geom.Vec3{0.3, -12, 41}
	assert.Equal(t, raw, set.Apply(imu.Mag, raw))
}
