package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure shared by the publisher and the monitor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Publisher PublisherConfig `yaml:"publisher"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the simulated device behind published readings.
type DeviceConfig struct {
	ID string `yaml:"id"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StatusTopic receives retained online/offline messages and the LWT.
	// Empty disables status publishing.
	StatusTopic string `yaml:"status_topic"`

	// FailFast makes a refused (non-zero) connect result terminate the
	// event loop instead of only being logged.
	FailFast bool `yaml:"fail_fast"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Reconnection is off by default: a lost session is reported, not retried.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// PublisherConfig contains sampling loop settings.
type PublisherConfig struct {
	// Interval is the sampling period in seconds.
	Interval int            `yaml:"interval"`
	Sensors  []SensorConfig `yaml:"sensors"`
}

// SensorConfig maps one sensor type to the topic its readings go to.
type SensorConfig struct {
	Type  string `yaml:"type"`
	Topic string `yaml:"topic"`
}

// MonitorConfig contains subscriber settings.
type MonitorConfig struct {
	Topics  []string `yaml:"topics"`
	LogFile string   `yaml:"log_file"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional forwarder.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ArchiveConfig contains SQLite archive settings for the optional forwarder.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Defaults for the single-sensor field deployment.
const (
	DefaultTopic    = "iot/sensor/data"
	DefaultLogFile  = "iot_data_log.txt"
	DefaultDeviceID = "rpi_sensor_001"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TELEMETRY_SECTION_KEY
// For example: TELEMETRY_MQTT_HOST, TELEMETRY_MONITOR_LOG_FILE
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment without overwriting variables that are already set.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: DefaultDeviceID,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-telemetry",
			},
			QoS:       0,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				Enabled:      false,
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Publisher: PublisherConfig{
			Interval: 5,
			Sensors: []SensorConfig{
				{Type: "climate", Topic: DefaultTopic},
			},
		},
		Monitor: MonitorConfig{
			Topics:  []string{DefaultTopic},
			LogFile: DefaultLogFile,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Archive: ArchiveConfig{
			Path:        "./data/telemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TELEMETRY_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("TELEMETRY_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}

	// MQTT
	if v := os.Getenv("TELEMETRY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TELEMETRY_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("TELEMETRY_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TELEMETRY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Monitor
	if v := os.Getenv("TELEMETRY_MONITOR_LOG_FILE"); v != "" {
		cfg.Monitor.LogFile = v
	}
	if v := os.Getenv("TELEMETRY_MONITOR_TOPICS"); v != "" {
		cfg.Monitor.Topics = splitList(v)
	}

	// InfluxDB
	if v := os.Getenv("TELEMETRY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Archive
	if v := os.Getenv("TELEMETRY_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}

	return nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}
	if c.MQTT.Auth.Password != "" && c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.password requires mqtt.auth.username")
	}

	// Publisher validation
	if c.Publisher.Interval < 1 {
		errs = append(errs, "publisher.interval must be at least 1 second")
	}
	for i, s := range c.Publisher.Sensors {
		if s.Topic == "" {
			errs = append(errs, fmt.Sprintf("publisher.sensors[%d].topic is required", i))
		}
	}

	// Monitor validation
	if c.Monitor.LogFile == "" {
		errs = append(errs, "monitor.log_file is required")
	}

	// Optional forwarders
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		errs = append(errs, "archive.path is required when archive is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BrokerAddress returns host:port of the configured broker.
func (c MQTTConfig) BrokerAddress() string {
	return fmt.Sprintf("%s:%d", c.Broker.Host, c.Broker.Port)
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (c MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// GetInterval returns the sampling period as a Duration.
func (c PublisherConfig) GetInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
