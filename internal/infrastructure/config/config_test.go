package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
discovery:
  subnets:
    - "192.168.2.0/24"
  static_addresses:
    - "192.168.1.40"
  scan_interval: 120
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  enabled: true
  host: "0.0.0.0"
  port: 8095
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if len(cfg.Discovery.Subnets) != 1 || cfg.Discovery.Subnets[0] != "192.168.2.0/24" {
		t.Errorf("Discovery.Subnets = %v", cfg.Discovery.Subnets)
	}
	if cfg.Discovery.ScanInterval != 120 {
		t.Errorf("Discovery.ScanInterval = %d, want 120", cfg.Discovery.ScanInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "site: [unclosed"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
site:
  id: "defaults-site"
database:
  path: "/tmp/test.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.Port != 5555 {
		t.Errorf("Session.Port = %d, want 5555", cfg.Session.Port)
	}
	if cfg.Discovery.Broadcast.Port != 6095 {
		t.Errorf("Broadcast.Port = %d, want 6095", cfg.Discovery.Broadcast.Port)
	}
	if cfg.Discovery.Broadcast.SendCount != 3 {
		t.Errorf("Broadcast.SendCount = %d, want 3", cfg.Discovery.Broadcast.SendCount)
	}
	if cfg.Discovery.ScanInterval != DefaultScanInterval {
		t.Errorf("ScanInterval = %d, want %d", cfg.Discovery.ScanInterval, DefaultScanInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_ScanIntervalClampedToDefault(t *testing.T) {
	content := `
site:
  id: "clamp-site"
discovery:
  scan_interval: 5
database:
  path: "/tmp/test.db"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Discovery.ScanInterval != DefaultScanInterval {
		t.Errorf("ScanInterval = %d, want clamped to %d",
			cfg.Discovery.ScanInterval, DefaultScanInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COZYLINK_DATABASE_PATH", "/tmp/env-override.db")
	t.Setenv("COZYLINK_MQTT_HOST", "env-broker")
	t.Setenv("COZYLINK_SCAN_INTERVAL", "900")

	content := `
site:
  id: "env-site"
database:
  path: "/tmp/file.db"
mqtt:
  broker:
    host: "file-broker"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env-override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Discovery.ScanInterval != 900 {
		t.Errorf("ScanInterval = %d, want 900", cfg.Discovery.ScanInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "broadcast port out of range",
			mutate:  func(c *Config) { c.Discovery.Broadcast.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "max replies below one",
			mutate:  func(c *Config) { c.Discovery.Broadcast.MaxReplies = 0 },
			wantErr: true,
		},
		{
			name:    "session port zero",
			mutate:  func(c *Config) { c.Session.Port = 0 },
			wantErr: true,
		},
		{
			name:    "request retries zero",
			mutate:  func(c *Config) { c.Session.RequestRetries = 0 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "api port invalid when enabled",
			mutate:  func(c *Config) { c.API.Enabled = true; c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "api port ignored when disabled",
			mutate:  func(c *Config) { c.API.Enabled = false; c.API.Port = 0 },
			wantErr: false,
		},
		{
			name:    "poller interval zero when enabled",
			mutate:  func(c *Config) { c.Poller.Enabled = true; c.Poller.Interval = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetScanInterval(); got != 300*time.Second {
		t.Errorf("GetScanInterval() = %v", got)
	}
	if got := cfg.GetSubnetTimeout(); got != time.Second {
		t.Errorf("GetSubnetTimeout() = %v", got)
	}
	if got := cfg.Discovery.Broadcast.GetSendInterval(); got != 30*time.Millisecond {
		t.Errorf("GetSendInterval() = %v", got)
	}
	if got := cfg.Discovery.Broadcast.GetReplyTimeout(); got != 100*time.Millisecond {
		t.Errorf("GetReplyTimeout() = %v", got)
	}
	if got := cfg.Session.GetConnectTimeout(); got != 10*time.Second {
		t.Errorf("GetConnectTimeout() = %v", got)
	}
	if got := cfg.Session.GetRequestTimeout(); got != 5*time.Second {
		t.Errorf("GetRequestTimeout() = %v", got)
	}
	if got := cfg.Poller.GetPollInterval(); got != 30*time.Second {
		t.Errorf("GetPollInterval() = %v", got)
	}
}
