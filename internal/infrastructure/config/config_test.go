package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
instance:
  id: "test-operator"
relay:
  port: 9090
  data_dir: "/tmp/test-relay"
  name: "Test Relay"
launcher:
  strategies: ["local", "sidecar"]
  settle_delay: 500ms
  probe:
    kind: http
    timeout: 2s
database:
  path: "/tmp/test.db"
api:
  host: "127.0.0.1"
  port: 7781
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.ID != "test-operator" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-operator")
	}
	if cfg.Relay.Port != 9090 {
		t.Errorf("Relay.Port = %d, want 9090", cfg.Relay.Port)
	}
	if cfg.Relay.DataDir != "/tmp/test-relay" {
		t.Errorf("Relay.DataDir = %q, want %q", cfg.Relay.DataDir, "/tmp/test-relay")
	}
	// Unset relay fields keep their defaults
	if cfg.Relay.MaxEventBytes != 65536 {
		t.Errorf("Relay.MaxEventBytes = %d, want 65536", cfg.Relay.MaxEventBytes)
	}
	if len(cfg.Launcher.Strategies) != 2 || cfg.Launcher.Strategies[0] != StrategyLocal {
		t.Errorf("Launcher.Strategies = %v, want [local sidecar]", cfg.Launcher.Strategies)
	}
	if cfg.Launcher.SettleDelay != 500*time.Millisecond {
		t.Errorf("Launcher.SettleDelay = %v, want 500ms", cfg.Launcher.SettleDelay)
	}
	if cfg.Launcher.Probe.Kind != ProbeHTTP {
		t.Errorf("Launcher.Probe.Kind = %q, want %q", cfg.Launcher.Probe.Kind, ProbeHTTP)
	}
	if cfg.Launcher.Probe.Timeout != 2*time.Second {
		t.Errorf("Launcher.Probe.Timeout = %v, want 2s", cfg.Launcher.Probe.Timeout)
	}
	if cfg.Launcher.Docker.Container != "privacy-lion-relay" {
		t.Errorf("Launcher.Docker.Container = %q, want default", cfg.Launcher.Docker.Container)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
relay:
  port: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for relay.port 0, got nil")
	}
	if !strings.Contains(err.Error(), "relay.port") {
		t.Errorf("Load() error = %v, want mention of relay.port", err)
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.Relay.Port != 8080 {
		t.Errorf("Relay.Port = %d, want 8080", cfg.Relay.Port)
	}
	if cfg.Relay.DataDir != "/tmp/privacy-lion-relay" {
		t.Errorf("Relay.DataDir = %q, want %q", cfg.Relay.DataDir, "/tmp/privacy-lion-relay")
	}
	want := []string{StrategyDocker, StrategyLocal, StrategySidecar}
	if strings.Join(cfg.Launcher.Strategies, ",") != strings.Join(want, ",") {
		t.Errorf("Launcher.Strategies = %v, want %v", cfg.Launcher.Strategies, want)
	}
	if cfg.WebSocket.StatusInterval != 3 {
		t.Errorf("WebSocket.StatusInterval = %d, want 3", cfg.WebSocket.StatusInterval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RELAYOP_RELAY_PORT", "9191")
	t.Setenv("RELAYOP_RELAY_DATA_DIR", "/var/lib/relay")
	t.Setenv("RELAYOP_LAUNCHER_STRATEGIES", "sidecar, local")
	t.Setenv("RELAYOP_API_PORT", "7799")
	t.Setenv("RELAYOP_JWT_SECRET", "test-secret-key-at-least-32-chars!")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.Relay.Port != 9191 {
		t.Errorf("Relay.Port = %d, want 9191", cfg.Relay.Port)
	}
	if cfg.Relay.DataDir != "/var/lib/relay" {
		t.Errorf("Relay.DataDir = %q, want %q", cfg.Relay.DataDir, "/var/lib/relay")
	}
	if strings.Join(cfg.Launcher.Strategies, ",") != "sidecar,local" {
		t.Errorf("Launcher.Strategies = %v, want [sidecar local]", cfg.Launcher.Strategies)
	}
	if cfg.API.Port != 7799 {
		t.Errorf("API.Port = %d, want 7799", cfg.API.Port)
	}
	if cfg.Security.JWT.Secret == "" {
		t.Error("Security.JWT.Secret not overridden")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "missing instance ID", mutate: func(c *Config) { c.Instance.ID = "" }, wantErr: true},
		{name: "relay port high", mutate: func(c *Config) { c.Relay.Port = 70000 }, wantErr: true},
		{name: "missing data dir", mutate: func(c *Config) { c.Relay.DataDir = "" }, wantErr: true},
		{name: "missing relay name", mutate: func(c *Config) { c.Relay.Name = "" }, wantErr: true},
		{name: "negative max connections", mutate: func(c *Config) { c.Relay.MaxConnections = -1 }, wantErr: true},
		{name: "no strategies", mutate: func(c *Config) { c.Launcher.Strategies = nil }, wantErr: true},
		{name: "unknown strategy", mutate: func(c *Config) { c.Launcher.Strategies = []string{"podman"} }, wantErr: true},
		{name: "unknown probe", mutate: func(c *Config) { c.Launcher.Probe.Kind = "icmp" }, wantErr: true},
		{name: "zero probe timeout", mutate: func(c *Config) { c.Launcher.Probe.Timeout = 0 }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "api port zero", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "api port clashes with relay", mutate: func(c *Config) { c.API.Port = c.Relay.Port }, wantErr: true},
		{name: "short JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{
			name:    "strong JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "test-secret-key-at-least-32-chars!" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := &APIConfig{
		Timeouts: APITimeoutConfig{Read: 30, Write: 60, Idle: 120},
	}

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want %v", got, 30*time.Second)
	}
	if got := cfg.GetWriteTimeout(); got != 60*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want %v", got, 60*time.Second)
	}
	if got := cfg.GetIdleTimeout(); got != 120*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want %v", got, 120*time.Second)
	}
}

func TestConfig_APIBaseURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{host: "127.0.0.1", want: "http://127.0.0.1:7780"},
		{host: "0.0.0.0", want: "http://127.0.0.1:7780"},
		{host: "", want: "http://127.0.0.1:7780"},
		{host: "10.0.0.5", want: "http://10.0.0.5:7780"},
	}

	for _, tt := range tests {
		cfg := &Config{API: APIConfig{Host: tt.host, Port: 7780}}
		if got := cfg.APIBaseURL(); got != tt.want {
			t.Errorf("APIBaseURL() with host %q = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}

	def := defaultConfig()
	if cfg.Relay != def.Relay {
		t.Errorf("shipped relay section = %+v, want defaults %+v", cfg.Relay, def.Relay)
	}
	if cfg.Launcher.SettleDelay != 3*time.Second || cfg.Launcher.Probe.Timeout != 5*time.Second {
		t.Errorf("launcher durations = %v / %v", cfg.Launcher.SettleDelay, cfg.Launcher.Probe.Timeout)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("optional integrations should ship disabled")
	}
}
