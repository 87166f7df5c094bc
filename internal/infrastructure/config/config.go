package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in mqtt.broker.transport.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Config is the root configuration structure for the scale telemetry service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Devices DevicesConfig `yaml:"devices"`
	Logging LoggingConfig `yaml:"logging"`
	API     APIConfig     `yaml:"api"`
	Journal JournalConfig `yaml:"journal"`
	Health  HealthConfig  `yaml:"health"`
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	Name string `yaml:"name"`

	// ShutdownGrace is how long in-flight reads may run after a shutdown
	// signal (seconds).
	ShutdownGrace int `yaml:"shutdown_grace"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Transport string `yaml:"transport"` // tcp or websocket
	Path      string `yaml:"path"`      // websocket path, e.g. /mqtt
	TLS       bool   `yaml:"tls"`
	ClientID  string `yaml:"client_id"`
	KeepAlive int    `yaml:"keepalive"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
}

// DevicesConfig locates the device list and tunes link supervision.
type DevicesConfig struct {
	ConfigPath string `yaml:"config_path"`

	// ReconnectInterval is the pause between background reconnect
	// attempts for a device that is down (seconds).
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// Dir, when set, adds a log file inside this directory next to Output.
	Dir  string `yaml:"dir"`
	File string `yaml:"file"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// JournalConfig contains settings for the SQLite link-event journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HealthConfig controls the periodic health message.
type HealthConfig struct {
	Interval int `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); skipped when path is empty
//  3. Variables from a .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables keep the names operators already use for this
// service (MQTT_BROKER, MQTT_PORT, MQTT_USERNAME, MQTT_PASSWORD,
// MQTT_USE_SSL, DEVICES_CONFIG_PATH, LOG_DIR) plus SCALETELEMETRY_SECTION_KEY
// for the rest.
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

	LoadDotEnv()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv copies variables from a .env file in the working directory
// into the environment. Variables already set win. A missing .env is
// normal outside development. Load calls it; call it earlier when
// environment variables decide which config file to load.
func LoadDotEnv() {
	_ = godotenv.Load() //nolint:errcheck // optional file
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:          "scale-telemetry",
			ShutdownGrace: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				Transport: TransportWebSocket,
				Path:      "/mqtt",
				ClientID:  "scale-telemetry-service",
				KeepAlive: 60,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				MaxDelay: 60,
			},
		},
		Devices: DevicesConfig{
			ConfigPath:        "devices.json",
			ReconnectInterval: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Dir:    "logs",
			File:   "scale_telemetry.log",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Journal: JournalConfig{
			Path:        "./data/scale-telemetry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Health: HealthConfig{
			Interval: 30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MQTT_PORT %q: %w", v, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("MQTT_USE_SSL"); v != "" {
		cfg.MQTT.Broker.TLS = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SCALETELEMETRY_MQTT_TRANSPORT"); v != "" {
		cfg.MQTT.Broker.Transport = strings.ToLower(v)
	}

	// Devices
	if v := os.Getenv("DEVICES_CONFIG_PATH"); v != "" {
		cfg.Devices.ConfigPath = v
	}

	// Logging
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("SCALETELEMETRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// API
	if v := os.Getenv("SCALETELEMETRY_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing SCALETELEMETRY_API_PORT %q: %w", v, err)
		}
		cfg.API.Port = port
	}

	// Journal
	if v := os.Getenv("SCALETELEMETRY_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	switch c.MQTT.Broker.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		errs = append(errs, fmt.Sprintf("mqtt.broker.transport must be %q or %q", TransportTCP, TransportWebSocket))
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Devices validation
	if c.Devices.ConfigPath == "" {
		errs = append(errs, "devices.config_path is required (set DEVICES_CONFIG_PATH)")
	}
	if c.Devices.ReconnectInterval <= 0 {
		errs = append(errs, "devices.reconnect_interval must be positive")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if c.Service.ShutdownGrace < 0 {
		errs = append(errs, "service.shutdown_grace cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReconnectInterval returns the device reconnect interval as a Duration.
func (c *Config) GetReconnectInterval() time.Duration {
	return time.Duration(c.Devices.ReconnectInterval) * time.Second
}

// GetShutdownGrace returns the drain period as a Duration.
func (c *Config) GetShutdownGrace() time.Duration {
	return time.Duration(c.Service.ShutdownGrace) * time.Second
}

// GetHealthInterval returns the health publish interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Health.Interval) * time.Second
}
