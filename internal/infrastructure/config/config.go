package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Z-Wave bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig      `yaml:"bridge"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Radio       RadioConfig       `yaml:"radio"`
	Supervision SupervisionConfig `yaml:"supervision"`
	Devices     []DeviceConfig    `yaml:"devices"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	HealthInterval int    `yaml:"health_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RadioConfig contains the connection settings for the Z-Wave serial
// gateway daemon.
type RadioConfig struct {
	// Connection is the gateway connection URL.
	// Supported formats: "unix:///run/zwgw" or "tcp://localhost:4712".
	Connection string `yaml:"connection"`

	// ConnectTimeout is the maximum time to wait for connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// ReadTimeout is the timeout for socket reads (seconds).
	ReadTimeout int `yaml:"read_timeout"`

	// ReconnectInterval is the initial delay between reconnects (seconds).
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// SupervisionConfig tunes the supervision retry loop.
type SupervisionConfig struct {
	// Retries is the number of resends before a pending packet is dropped.
	Retries int `yaml:"retries"`

	// BaseDelay is the minimum grace period before the first retry (milliseconds).
	BaseDelay int `yaml:"base_delay"`

	// RetryDelay is the fixed delay between subsequent retries (milliseconds).
	RetryDelay int `yaml:"retry_delay"`

	// Margin is a fixed margin added to the first retry delay (milliseconds).
	Margin int `yaml:"margin"`
}

// DeviceConfig seeds one Z-Wave device into the device store on startup.
// Existing records are never overwritten, so runtime modifications survive
// restarts.
type DeviceConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	NodeID        int    `yaml:"node_id"`
	Profile       string `yaml:"profile"` // gate, shutter, multisensor
	Endpoint      int    `yaml:"endpoint"`
	Supervised    bool   `yaml:"supervised"`
	ReportStopped bool   `yaml:"report_stopped"`
}

// Load reads and parses the configuration file at the given path.
//
// After parsing, environment variable overrides are applied and the
// resulting configuration is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator CLI/env
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config populated with sensible defaults.
// YAML unmarshalling overwrites only the fields present in the file.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "zwbridge",
			Name:           "Z-Wave Bridge",
			HealthInterval: 30,
		},
		Database: DatabaseConfig{
			Path:        "data/zwbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "zwbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8480,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Radio: RadioConfig{
			Connection:        "tcp://localhost:4712",
			ConnectTimeout:    10,
			ReadTimeout:       30,
			ReconnectInterval: 5,
		},
		Supervision: SupervisionConfig{
			Retries:    2,
			BaseDelay:  1500,
			RetryDelay: 1000,
			Margin:     500,
		},
	}
}

// applyEnvOverrides applies environment variable overrides for values that
// commonly differ between deployments (secrets and endpoints).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZWBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ZWBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ZWBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("ZWBRIDGE_RADIO_CONNECTION"); v != "" {
		cfg.Radio.Connection = v
	}
	if v := os.Getenv("ZWBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("ZWBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration for values that would prevent startup.
func (c *Config) Validate() error {
	if c.Bridge.ID == "" {
		return fmt.Errorf("bridge.id is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.MQTT.Broker.Host == "" {
		return fmt.Errorf("mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port <= 0 || c.MQTT.Broker.Port > 65535 {
		return fmt.Errorf("mqtt.broker.port must be 1-65535, got %d", c.MQTT.Broker.Port)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", c.API.Port)
	}
	if c.Radio.Connection == "" {
		return fmt.Errorf("radio.connection is required")
	}
	if !strings.HasPrefix(c.Radio.Connection, "unix://") && !strings.HasPrefix(c.Radio.Connection, "tcp://") {
		return fmt.Errorf("radio.connection must use unix:// or tcp:// scheme, got %q", c.Radio.Connection)
	}
	if c.Supervision.Retries < 0 {
		return fmt.Errorf("supervision.retries must not be negative, got %d", c.Supervision.Retries)
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			return fmt.Errorf("influxdb.bucket is required when influxdb is enabled")
		}
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, dev := range c.Devices {
		if dev.ID == "" {
			return fmt.Errorf("devices[%d].id is required", i)
		}
		if seen[dev.ID] {
			return fmt.Errorf("devices[%d]: duplicate device id %q", i, dev.ID)
		}
		seen[dev.ID] = true
		if dev.NodeID < 1 || dev.NodeID > 232 {
			return fmt.Errorf("devices[%d]: node_id must be 1-232, got %d", i, dev.NodeID)
		}
		switch dev.Profile {
		case "gate", "shutter", "multisensor":
		default:
			return fmt.Errorf("devices[%d]: unknown profile %q", i, dev.Profile)
		}
	}

	return nil
}

// GetHealthInterval returns the health reporting interval as a duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetConnectTimeout returns the radio connect timeout as a duration.
func (r RadioConfig) GetConnectTimeout() time.Duration {
	return time.Duration(r.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the radio read timeout as a duration.
func (r RadioConfig) GetReadTimeout() time.Duration {
	return time.Duration(r.ReadTimeout) * time.Second
}

// GetReconnectInterval returns the radio reconnect interval as a duration.
func (r RadioConfig) GetReconnectInterval() time.Duration {
	return time.Duration(r.ReconnectInterval) * time.Second
}

// GetBaseDelay returns the supervision base delay as a duration.
func (s SupervisionConfig) GetBaseDelay() time.Duration {
	return time.Duration(s.BaseDelay) * time.Millisecond
}

// GetRetryDelay returns the supervision retry delay as a duration.
func (s SupervisionConfig) GetRetryDelay() time.Duration {
	return time.Duration(s.RetryDelay) * time.Millisecond
}

// GetMargin returns the supervision margin as a duration.
func (s SupervisionConfig) GetMargin() time.Duration {
	return time.Duration(s.Margin) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
