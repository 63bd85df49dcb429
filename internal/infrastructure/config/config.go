package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HomeLink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Broker    BrokerConfig    `yaml:"broker"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BrokerConfig contains embedded MQTT broker settings.
//
// The broker accepts device connections on two transports: raw TCP and
// WebSocket. Both listeners share the same topic space and retained
// message store.
type BrokerConfig struct {
	// TCPAddress is the listen address for the raw TCP transport.
	// Default: ":1883"
	TCPAddress string `yaml:"tcp_address"`

	// WSAddress is the listen address for the WebSocket transport.
	// Default: ":8883"
	WSAddress string `yaml:"ws_address"`

	// Auth holds the single statically configured credential pair.
	// If both username and password are empty the broker runs in open
	// mode and accepts any client. This is an explicit relaxed-security
	// mode for isolated networks, not an oversight.
	Auth BrokerAuthConfig `yaml:"auth"`

	// QoS is the quality-of-service level for status and control traffic.
	QoS int `yaml:"qos"`
}

// BrokerAuthConfig contains broker client authentication credentials.
type BrokerAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeartbeatConfig contains device liveness supervision settings.
//
// The original deployments disagreed on these values, so they are
// configuration rather than contract. Defaults: 30s sweep, 60s threshold.
type HeartbeatConfig struct {
	// SweepInterval is how often the presence registry scans tracked
	// devices for missed heartbeats (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	// OfflineThreshold is how long a tracked device may stay silent
	// before it is declared offline (seconds).
	OfflineThreshold int `yaml:"offline_threshold"`

	// SweepConcurrency caps how many devices a single sweep pass
	// processes at once.
	SweepConcurrency int `yaml:"sweep_concurrency"`
}

// SweepIntervalDuration returns the sweep interval as a Duration.
func (h HeartbeatConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(h.SweepInterval) * time.Second
}

// OfflineThresholdDuration returns the offline threshold as a Duration.
func (h HeartbeatConfig) OfflineThresholdDuration() time.Duration {
	return time.Duration(h.OfflineThreshold) * time.Second
}

// InfluxDBConfig contains InfluxDB connection settings for status telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMELINK_SECTION_KEY
// For example: HOMELINK_DATABASE_PATH, HOMELINK_BROKER_USERNAME
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "HomeLink",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/homelink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Broker: BrokerConfig{
			TCPAddress: ":1883",
			WSAddress:  ":8883",
			QoS:        1,
		},
		Heartbeat: HeartbeatConfig{
			SweepInterval:    30,
			OfflineThreshold: 60,
			SweepConcurrency: 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HOMELINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HOMELINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Broker
	if v := os.Getenv("HOMELINK_BROKER_TCP_ADDRESS"); v != "" {
		cfg.Broker.TCPAddress = v
	}
	if v := os.Getenv("HOMELINK_BROKER_WS_ADDRESS"); v != "" {
		cfg.Broker.WSAddress = v
	}
	if v := os.Getenv("HOMELINK_BROKER_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("HOMELINK_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HOMELINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Broker validation
	if c.Broker.TCPAddress == "" {
		errs = append(errs, "broker.tcp_address is required")
	}
	if c.Broker.WSAddress == "" {
		errs = append(errs, "broker.ws_address is required")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}

	// A credential pair must be complete: a username without a password
	// (or the reverse) is almost certainly a deployment mistake, and
	// silently falling back to open mode would mask it.
	if (c.Broker.Auth.Username == "") != (c.Broker.Auth.Password == "") {
		errs = append(errs, "broker.auth requires both username and password, or neither")
	}

	// Heartbeat validation
	if c.Heartbeat.SweepInterval <= 0 {
		errs = append(errs, "heartbeat.sweep_interval must be positive")
	}
	if c.Heartbeat.OfflineThreshold <= 0 {
		errs = append(errs, "heartbeat.offline_threshold must be positive")
	}
	if c.Heartbeat.SweepConcurrency <= 0 {
		errs = append(errs, "heartbeat.sweep_concurrency must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
