package config

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asesyuk/icm20948-ekf/internal/ekf"
	"github.com/asesyuk/icm20948-ekf/internal/frame"
	"github.com/asesyuk/icm20948-ekf/internal/geom"
	"github.com/asesyuk/icm20948-ekf/internal/sensors"
)

// Sensor sources selectable with SOURCE.
const (
	SourceICM20948 = "icm20948"
	SourceSim      = "sim"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDGPS      string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicAttitude string
	TopicGPS      string

	// Sensor source
	Source          string
	CalibrationFile string

	// IMU Hardware
	IMUI2CBus  string
	IMUI2CAddr uint16

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// IMU Sample Rate Configuration
	IMUDLPFConfig    byte // Digital Low Pass Filter configuration (0-7)
	IMUSampleRateDiv byte // Sample rate divider (output rate = 1125 Hz / (1 + div))

	// Axis maps from sensor axes to the NED body frame, e.g. "-x,+y,+z".
	AxisMapAccel string
	AxisMapGyro  string
	AxisMapMag   string

	// Filter
	UpdateRateHz      float64
	DeclinationDeg    float64 // east positive, used until GPS reports one
	InitialAttVar     float64 // rad²
	InitialBiasVar    float64 // (rad/s)²
	AttitudeNoise     float64 // rad²/s
	BiasNoise         float64 // (rad/s)²/s
	AccelNoise        float64
	MagNoise          float64 // rad²
	FlipToleranceDeg  float64
	AccelMinG         float64
	AccelMaxG         float64
	MagMinMicroTesla  float64
	MagMaxMicroTesla  float64
	CovarianceCeiling float64
	MaxDt             float64 // seconds

	// GPS producer serial port
	GPSSerialPort string
	GPSBaudRate   int

	// Timing
	ConsoleLogInterval int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through Get.
//   - configOnce: ensures InitGlobal() only runs once.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is absent.
func Default() *Config {
	f := ekf.DefaultConfig()
	return &Config{
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDProducer:  "icm20948-ekf-producer",
		MQTTClientIDGPS:       "icm20948-ekf-gps",
		MQTTClientIDConsole:   "icm20948-ekf-console",
		MQTTClientIDWeb:       "icm20948-ekf-web",
		MQTTClientIDDisplay:   "icm20948-ekf-display",
		TopicAttitude:         "inertial/attitude",
		TopicGPS:              "inertial/gps",
		Source:                SourceICM20948,
		IMUI2CAddr:            0x69,
		AxisMapAccel:          "-x,+y,+z",
		AxisMapGyro:           "+x,-y,-z",
		AxisMapMag:            "+x,+y,+z",
		UpdateRateHz:          20,
		InitialAttVar:         f.InitialAttitudeVar,
		InitialBiasVar:        f.InitialBiasVar,
		AttitudeNoise:         f.AttitudeNoise,
		BiasNoise:             f.BiasNoise,
		AccelNoise:            f.AccelNoise,
		MagNoise:              f.MagNoise,
		FlipToleranceDeg:      geom.Deg(f.FlipTolerance),
		AccelMinG:             f.AccelMinG,
		AccelMaxG:             f.AccelMaxG,
		MagMinMicroTesla:      f.MagMinMicroTesla,
		MagMaxMicroTesla:      f.MagMaxMicroTesla,
		CovarianceCeiling:     f.CovarianceCeiling,
		MaxDt:                 f.MaxDt,
		GPSBaudRate:           9600,
		ConsoleLogInterval:    1000,
		WebServerPort:         8080,
		DisplayUpdateInterval: 250,
	}
}

// Load reads a configuration file on top of Default. Files ending in .yaml
// or .yml hold the same keys as a YAML mapping; anything else is read as
// KEY=VALUE lines.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = cfg.parseYAML(data)
	default:
		err = cfg.parseKeyValue(data)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseKeyValue(data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func (c *Config) parseYAML(data []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse yaml config: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		value := ""
		if v != nil {
			value = fmt.Sprint(v)
		}
		if err := c.setValue(strings.ToUpper(k), value); err != nil {
			return fmt.Errorf("config key %s: %w", k, err)
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_ATTITUDE":
		c.TopicAttitude = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// Sensor source
	case "SOURCE":
		c.Source = strings.ToLower(value)
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// IMU Hardware
	case "IMU_I2C_BUS":
		c.IMUI2CBus = value
	case "IMU_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid IMU_I2C_ADDR %q: %w", value, err)
		}
		c.IMUI2CAddr = uint16(addr)

	// IMU Sensor Ranges
	case "IMU_ACCEL_RANGE":
		return setByte(&c.IMUAccelRange, key, value, 3)
	case "IMU_GYRO_RANGE":
		return setByte(&c.IMUGyroRange, key, value, 3)

	// IMU Sample Rate Configuration
	case "IMU_DLPF_CFG":
		return setByte(&c.IMUDLPFConfig, key, value, 7)
	case "IMU_SMPLRT_DIV":
		return setByte(&c.IMUSampleRateDiv, key, value, 255)

	// Axis maps
	case "AXIS_MAP_ACCEL":
		c.AxisMapAccel = value
	case "AXIS_MAP_GYRO":
		c.AxisMapGyro = value
	case "AXIS_MAP_MAG":
		c.AxisMapMag = value

	// Filter
	case "UPDATE_RATE_HZ":
		return setFloat(&c.UpdateRateHz, key, value)
	case "DECLINATION_DEG":
		return setFloat(&c.DeclinationDeg, key, value)
	case "EKF_INITIAL_ATTITUDE_VAR":
		return setFloat(&c.InitialAttVar, key, value)
	case "EKF_INITIAL_BIAS_VAR":
		return setFloat(&c.InitialBiasVar, key, value)
	case "EKF_ATTITUDE_NOISE":
		return setFloat(&c.AttitudeNoise, key, value)
	case "EKF_BIAS_NOISE":
		return setFloat(&c.BiasNoise, key, value)
	case "EKF_ACCEL_NOISE":
		return setFloat(&c.AccelNoise, key, value)
	case "EKF_MAG_NOISE":
		return setFloat(&c.MagNoise, key, value)
	case "EKF_FLIP_TOLERANCE_DEG":
		return setFloat(&c.FlipToleranceDeg, key, value)
	case "EKF_ACCEL_MIN_G":
		return setFloat(&c.AccelMinG, key, value)
	case "EKF_ACCEL_MAX_G":
		return setFloat(&c.AccelMaxG, key, value)
	case "EKF_MAG_MIN_UT":
		return setFloat(&c.MagMinMicroTesla, key, value)
	case "EKF_MAG_MAX_UT":
		return setFloat(&c.MagMaxMicroTesla, key, value)
	case "EKF_COVARIANCE_CEILING":
		return setFloat(&c.CovarianceCeiling, key, value)
	case "EKF_MAX_DT":
		return setFloat(&c.MaxDt, key, value)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// Timing
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setByte(dst *byte, key, value string, max int) error {
	val, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if val < 0 || val > max {
		return fmt.Errorf("%s must be 0-%d, got %d", key, max, val)
	}
	*dst = byte(val)
	return nil
}

func setFloat(dst *float64, key, value string) error {
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be finite, got %q", key, value)
	}
	*dst = val
	return nil
}

// validate checks that required fields are set and that the derived
// filter and frame settings are usable.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicAttitude == "" {
		return fmt.Errorf("TOPIC_ATTITUDE is required")
	}
	switch c.Source {
	case SourceICM20948:
		if c.CalibrationFile == "" {
			return fmt.Errorf("CALIBRATION_FILE is required for SOURCE=%s", SourceICM20948)
		}
	case SourceSim:
	default:
		return fmt.Errorf("SOURCE must be %q or %q, got %q", SourceICM20948, SourceSim, c.Source)
	}
	if !(c.UpdateRateHz > 0) {
		return fmt.Errorf("UPDATE_RATE_HZ must be positive, got %v", c.UpdateRateHz)
	}
	if c.GPSBaudRate <= 0 {
		return fmt.Errorf("GPS_BAUD_RATE must be positive, got %d", c.GPSBaudRate)
	}
	if c.ConsoleLogInterval <= 0 {
		return fmt.Errorf("CONSOLE_LOG_INTERVAL must be positive, got %d", c.ConsoleLogInterval)
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if _, err := c.Transform(); err != nil {
		return err
	}
	f := c.Filter()
	if err := f.Validate(); err != nil {
		return err
	}
	if c.NominalDt() > f.MaxDt {
		return fmt.Errorf("UPDATE_RATE_HZ %v is slower than EKF_MAX_DT %v allows", c.UpdateRateHz, f.MaxDt)
	}
	return nil
}

// Filter returns the EKF tuning.
func (c *Config) Filter() ekf.Config {
	f := ekf.DefaultConfig()
	f.InitialAttitudeVar = c.InitialAttVar
	f.InitialBiasVar = c.InitialBiasVar
	f.AttitudeNoise = c.AttitudeNoise
	f.BiasNoise = c.BiasNoise
	f.AccelNoise = c.AccelNoise
	f.MagNoise = c.MagNoise
	f.FlipTolerance = geom.Rad(c.FlipToleranceDeg)
	f.AccelMinG = c.AccelMinG
	f.AccelMaxG = c.AccelMaxG
	f.MagMinMicroTesla = c.MagMinMicroTesla
	f.MagMaxMicroTesla = c.MagMaxMicroTesla
	f.CovarianceCeiling = c.CovarianceCeiling
	f.MaxDt = c.MaxDt
	return f
}

// Transform parses the three axis maps.
func (c *Config) Transform() (frame.Transform, error) {
	maps := make([]frame.AxisMap, 3)
	for i, m := range []struct{ key, axes string }{
		{"AXIS_MAP_ACCEL", c.AxisMapAccel},
		{"AXIS_MAP_GYRO", c.AxisMapGyro},
		{"AXIS_MAP_MAG", c.AxisMapMag},
	} {
		a, err := frame.ParseAxisMap(m.axes)
		if err != nil {
			return frame.Transform{}, fmt.Errorf("%s: %w", m.key, err)
		}
		maps[i] = a
	}
	return frame.NewTransform(maps[0], maps[1], maps[2]), nil
}

// SensorOptions returns the ICM-20948 driver options.
func (c *Config) SensorOptions() sensors.ICM20948Options {
	return sensors.ICM20948Options{
		Bus:           c.IMUI2CBus,
		Addr:          c.IMUI2CAddr,
		AccelRange:    c.IMUAccelRange,
		GyroRange:     c.IMUGyroRange,
		DLPF:          c.IMUDLPFConfig,
		SampleRateDiv: c.IMUSampleRateDiv,
	}
}

// NominalDt is the update period in seconds.
func (c *Config) NominalDt() float64 {
	return 1 / c.UpdateRateHz
}

// Declination is DECLINATION_DEG in radians.
func (c *Config) Declination() float64 {
	return geom.Rad(c.DeclinationDeg)
}

// SampleInterval is the producer ticker period.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.UpdateRateHz)
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
