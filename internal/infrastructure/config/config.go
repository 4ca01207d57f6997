package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for CozyLink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Session   SessionConfig   `yaml:"session"`
	Poller    PollerConfig    `yaml:"poller"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DiscoveryConfig contains device discovery settings.
type DiscoveryConfig struct {
	// Broadcast configures the UDP broadcast probe.
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// Subnets lists CIDR ranges to probe with TCP connects, for devices
	// on subnets the broadcast cannot reach (e.g. "192.168.2.0/24").
	Subnets []string `yaml:"subnets"`

	// SubnetTimeout is the per-host TCP connect timeout in milliseconds.
	SubnetTimeout int `yaml:"subnet_timeout_ms"`

	// StaticAddresses lists device IPs that are always treated as
	// discovered, regardless of probe results.
	StaticAddresses []string `yaml:"static_addresses"`

	// ScanInterval is the reconciliation interval in seconds.
	// Values below the enforced minimum (60) are raised to the default (300).
	ScanInterval int `yaml:"scan_interval"`
}

// BroadcastConfig contains UDP broadcast probe settings.
//
// The vendor firmware answers an INFO datagram on the discovery port. The
// probe thresholds (send count, first-reply attempts, reply cap) mirror the
// device family's firmware behaviour and are configurable rather than
// load-bearing semantics.
type BroadcastConfig struct {
	Enabled bool `yaml:"enabled"`

	// Address is the broadcast destination. Default "255.255.255.255".
	Address string `yaml:"address"`

	// Port is the UDP discovery port devices listen on. Default 6095.
	Port int `yaml:"port"`

	// SendCount is how many INFO datagrams are sent per probe. Default 3.
	SendCount int `yaml:"send_count"`

	// SendInterval is the gap between datagrams in milliseconds. Default 30.
	SendInterval int `yaml:"send_interval_ms"`

	// FirstReplyAttempts is how many short receive windows are tried while
	// waiting for the first reply. Default 5.
	FirstReplyAttempts int `yaml:"first_reply_attempts"`

	// ReplyTimeout is the receive window per attempt in milliseconds.
	// Default 100.
	ReplyTimeout int `yaml:"reply_timeout_ms"`

	// MaxReplies bounds how many replies are collected per probe. Default 255.
	MaxReplies int `yaml:"max_replies"`
}

// SessionConfig contains per-device TCP session settings.
type SessionConfig struct {
	// Port is the device service port. Default 5555.
	Port int `yaml:"port"`

	// ConnectTimeout is the TCP connect bound in seconds. Default 10.
	ConnectTimeout int `yaml:"connect_timeout"`

	// RequestTimeout is the per-attempt response wait in seconds. Default 5.
	RequestTimeout int `yaml:"request_timeout"`

	// RequestRetries is the number of response read attempts. Default 3.
	RequestRetries int `yaml:"request_retries"`
}

// PollerConfig contains device state polling settings.
type PollerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the state refresh interval in seconds. Default 30.
	Interval int `yaml:"interval"`
}

// CatalogConfig contains product catalog settings.
type CatalogConfig struct {
	// Path is the product list JSON file mapping product ids to model
	// metadata. Empty means no catalog; devices stay uncategorised.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Scan interval bounds, in seconds. Intervals below the minimum hammer the
// network with broadcast probes and full subnet scans.
const (
	MinScanInterval     = 60
	DefaultScanInterval = 300
)

// Load reads, parses, and validates the configuration file at path.
//
// Missing keys fall back to defaults; environment variables override file
// values last.
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "CozyLink",
		},
		Discovery: DiscoveryConfig{
			Broadcast: BroadcastConfig{
				Enabled:            true,
				Address:            "255.255.255.255",
				Port:               6095,
				SendCount:          3,
				SendInterval:       30,
				FirstReplyAttempts: 5,
				ReplyTimeout:       100,
				MaxReplies:         255,
			},
			SubnetTimeout: 1000,
			ScanInterval:  DefaultScanInterval,
		},
		Session: SessionConfig{
			Port:           5555,
			ConnectTimeout: 10,
			RequestTimeout: 5,
			RequestRetries: 3,
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: 30,
		},
		Database: DatabaseConfig{
			Path:        "./data/cozylink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "cozylink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: COZYLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("COZYLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Catalog
	if v := os.Getenv("COZYLINK_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	// Discovery
	if v := os.Getenv("COZYLINK_SCAN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Discovery.ScanInterval = n
		}
	}

	// MQTT
	if v := os.Getenv("COZYLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("COZYLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("COZYLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("COZYLINK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("COZYLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// The scan interval is clamped rather than rejected: an interval below the
// minimum indicates a misunderstanding of the probe cost, not a fatal
// misconfiguration, so it is raised to the default.
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Discovery validation
	if c.Discovery.ScanInterval < MinScanInterval {
		c.Discovery.ScanInterval = DefaultScanInterval
	}
	if c.Discovery.Broadcast.Port < 1 || c.Discovery.Broadcast.Port > 65535 {
		errs = append(errs, "discovery.broadcast.port must be between 1 and 65535")
	}
	if c.Discovery.Broadcast.MaxReplies < 1 {
		errs = append(errs, "discovery.broadcast.max_replies must be at least 1")
	}
	if c.Discovery.SubnetTimeout < 1 {
		errs = append(errs, "discovery.subnet_timeout_ms must be at least 1")
	}

	// Session validation
	if c.Session.Port < 1 || c.Session.Port > 65535 {
		errs = append(errs, "session.port must be between 1 and 65535")
	}
	if c.Session.RequestRetries < 1 {
		errs = append(errs, "session.request_retries must be at least 1")
	}

	// Poller validation
	if c.Poller.Enabled && c.Poller.Interval < 1 {
		errs = append(errs, "poller.interval must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetScanInterval returns the reconciliation interval as a Duration.
func (c *Config) GetScanInterval() time.Duration {
	return time.Duration(c.Discovery.ScanInterval) * time.Second
}

// GetSubnetTimeout returns the per-host subnet probe timeout as a Duration.
func (c *Config) GetSubnetTimeout() time.Duration {
	return time.Duration(c.Discovery.SubnetTimeout) * time.Millisecond
}

// GetSendInterval returns the broadcast datagram spacing as a Duration.
func (c *BroadcastConfig) GetSendInterval() time.Duration {
	return time.Duration(c.SendInterval) * time.Millisecond
}

// GetReplyTimeout returns the broadcast receive window as a Duration.
func (c *BroadcastConfig) GetReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeout) * time.Millisecond
}

// GetConnectTimeout returns the session connect timeout as a Duration.
func (c *SessionConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetRequestTimeout returns the per-attempt response timeout as a Duration.
func (c *SessionConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetPollInterval returns the state poll interval as a Duration.
func (c *PollerConfig) GetPollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
