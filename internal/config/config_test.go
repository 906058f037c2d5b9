package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/imu"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadKeyValue(t *testing.T) {
	path := writeFile(t, "ekf_config.txt", `
# attitude producer
MQTT_BROKER=tcp://broker:1883
TOPIC_ATTITUDE = plane/attitude
SOURCE=icm20948
CALIBRATION_FILE=/etc/icm/cal.json
IMU_I2C_BUS=1
IMU_I2C_ADDR=0x68
IMU_ACCEL_RANGE=1
IMU_GYRO_RANGE=2
IMU_DLPF_CFG=3
IMU_SMPLRT_DIV=10
AXIS_MAP_ACCEL=+y,+x,-z
UPDATE_RATE_HZ=50
DECLINATION_DEG=-2.5
EKF_FLIP_TOLERANCE_DEG=20
EKF_MAG_NOISE=0.01
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "plane/attitude", cfg.TopicAttitude)
	assert.Equal(t, "inertial/gps", cfg.TopicGPS, "default kept")

	opts := cfg.SensorOptions()
	assert.Equal(t, "1", opts.Bus)
	assert.Equal(t, uint16(0x68), opts.Addr)
	assert.Equal(t, byte(1), opts.AccelRange)
	assert.Equal(t, byte(2), opts.GyroRange)
	assert.Equal(t, byte(3), opts.DLPF)
	assert.Equal(t, byte(10), opts.SampleRateDiv)

	assert.InDelta(t, 0.02, cfg.NominalDt(), 1e-12)
	assert.Equal(t, 20*time.Millisecond, cfg.SampleInterval())
	assert.InDelta(t, geom.Rad(-2.5), cfg.Declination(), 1e-12)

	f := cfg.Filter()
	assert.InDelta(t, geom.Rad(20), f.FlipTolerance, 1e-12)
	assert.Equal(t, 0.01, f.MagNoise)
	assert.Equal(t, ekf.DefaultConfig().AccelNoise, f.AccelNoise)

	tr, err := cfg.Transform()
	require.NoError(t, err)
	assert.Equal(t, "+y,+x,-z", tr.Map(imu.Accel).String())
	assert.Equal(t, frame.DefaultICM20948().Map(imu.Gyro), tr.Map(imu.Gyro))
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ekf.yaml", `
mqtt_broker: tcp://yaml:1883
SOURCE: sim
imu_i2c_addr: 0x69
update_rate_hz: 10
ekf_bias_noise: 1e-7
gps_serial_port: /dev/ttyUSB0
gps_baud_rate: 4800
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://yaml:1883", cfg.MQTTBroker)
	assert.Equal(t, SourceSim, cfg.Source)
	assert.Equal(t, uint16(0x69), cfg.IMUI2CAddr)
	assert.Equal(t, 10.0, cfg.UpdateRateHz)
	assert.InDelta(t, 1e-7, cfg.Filter().BiasNoise, 1e-20)
	assert.Equal(t, "/dev/ttyUSB0", cfg.GPSSerialPort)
	assert.Equal(t, 4800, cfg.GPSBaudRate)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name, file, content string
	}{
		{"MissingEquals", "c.txt", "SOURCE sim\n"},
		{"UnknownKey", "c.txt", "SOURCE=sim\nTOPIC_POSE_LEFT=x\n"},
		{"BadRange", "c.txt", "SOURCE=sim\nIMU_ACCEL_RANGE=4\n"},
		{"BadAddr", "c.txt", "SOURCE=sim\nIMU_I2C_ADDR=zz\n"},
		{"BadFloat", "c.txt", "SOURCE=sim\nEKF_ACCEL_NOISE=abc\n"},
		{"NaN", "c.txt", "SOURCE=sim\nDECLINATION_DEG=NaN\n"},
		{"BadSource", "c.txt", "SOURCE=mpu9250\n"},
		{"NoCalibration", "c.txt", "SOURCE=icm20948\n"},
		{"BadAxisMap", "c.txt", "SOURCE=sim\nAXIS_MAP_MAG=+x,+x,+z\n"},
		{"ZeroRate", "c.txt", "SOURCE=sim\nUPDATE_RATE_HZ=0\n"},
		{"RateBelowMaxDt", "c.txt", "SOURCE=sim\nUPDATE_RATE_HZ=0.5\n"},
		{"NegativeNoise", "c.txt", "SOURCE=sim\nEKF_ATTITUDE_NOISE=-1\n"},
		{"EmptyBroker", "c.txt", "SOURCE=sim\nMQTT_BROKER=\n"},
		{"BadYAML", "c.yaml", "source: [sim\n"},
		{"YAMLUnknownKey", "c.yml", "source: sim\ncolor: red\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.file, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestDefaultsMatchFilterDefaults(t *testing.T) {
	cfg := Default()
	cfg.Source = SourceSim
	require.NoError(t, cfg.validate())

	want := ekf.DefaultConfig()
	got := cfg.Filter()
	assert.InDelta(t, want.FlipTolerance, got.FlipTolerance, 1e-12)
	got.FlipTolerance = want.FlipTolerance
	assert.Equal(t, want, got)

	tr, err := cfg.Transform()
	require.NoError(t, err)
	assert.Equal(t, frame.DefaultICM20948(), tr)
}
