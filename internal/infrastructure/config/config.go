package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the relay operator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Relay     RelayConfig     `yaml:"relay"`
	Launcher  LauncherConfig  `yaml:"launcher"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// InstanceConfig identifies this operator on shared infrastructure (MQTT topics, metrics tags).
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// RelayConfig holds the initial settings of the supervised relay.
// They seed the launcher at startup and can be replaced at runtime through the API.
type RelayConfig struct {
	Port              int    `yaml:"port"`
	Address           string `yaml:"address"`
	DataDir           string `yaml:"data_dir"`
	MaxConnections    int    `yaml:"max_connections"`
	Name              string `yaml:"name"`
	Description       string `yaml:"description"`
	MaxEventBytes     int    `yaml:"max_event_bytes"`
	MaxWSMessageBytes int    `yaml:"max_ws_message_bytes"`
	RetentionDays     int    `yaml:"retention_days"`
}

// LauncherConfig controls how the relay process is started and verified.
type LauncherConfig struct {
	// Strategies is the ordered list of start strategies to try.
	// Known values: "docker", "local", "sidecar".
	Strategies []string `yaml:"strategies"`

	Docker DockerConfig `yaml:"docker"`

	// LocalPaths is the ordered search list for a locally built relay binary.
	// A bare name is looked up on PATH.
	LocalPaths []string `yaml:"local_paths"`

	// SidecarPath is the bundled relay executable. Empty means
	// "nostr-rs-relay next to our own executable".
	SidecarPath string `yaml:"sidecar_path"`

	// SettleDelay is how long to wait after spawning before the first probe.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// StopTimeout is how long a relay gets between SIGTERM and SIGKILL.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	Probe ProbeConfig `yaml:"probe"`
}

// DockerConfig contains Docker start strategy settings.
type DockerConfig struct {
	Binary    string `yaml:"binary"`
	Image     string `yaml:"image"`
	Container string `yaml:"container"`
}

// ProbeConfig contains liveness probe settings.
type ProbeConfig struct {
	// Kind is "tcp", "http" or "websocket".
	Kind    string        `yaml:"kind"`
	Timeout time.Duration `yaml:"timeout"`
	// Identity is the substring that marks an HTTP response as coming from a relay.
	Identity string `yaml:"identity"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// RetentionDays prunes history rows older than this at startup. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
// Write must exceed the launcher's settle delay plus probe timeout.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
	// StatusInterval is how often (seconds) relay status is pushed to
	// connected clients. 0 disables periodic pushes.
	StatusInterval int `yaml:"status_interval"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains API token settings. An empty secret leaves the API
// unauthenticated, which is only acceptable on a loopback listener.
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"`
}

// Strategy names accepted in launcher.strategies.
const (
	StrategyDocker  = "docker"
	StrategyLocal   = "local"
	StrategySidecar = "sidecar"
)

// Probe kinds accepted in launcher.probe.kind.
const (
	ProbeTCP       = "tcp"
	ProbeHTTP      = "http"
	ProbeWebSocket = "websocket"
)

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RELAYOP_SECTION_KEY
// For example: RELAYOP_DATABASE_PATH, RELAYOP_RELAY_PORT
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

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file is installed.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Instance: InstanceConfig{
			ID:   "relay-operator",
			Name: "Privacy Lion Relay Operator",
		},
		Relay: RelayConfig{
			Port:              8080,
			Address:           "0.0.0.0",
			DataDir:           "/tmp/privacy-lion-relay",
			MaxConnections:    100,
			Name:              "Privacy Lion Relay",
			Description:       "Privacy Lion NOSTR Relay - Empowering Data Freedom",
			MaxEventBytes:     65536,
			MaxWSMessageBytes: 131072,
		},
		Launcher: LauncherConfig{
			Strategies: []string{StrategyDocker, StrategyLocal, StrategySidecar},
			Docker: DockerConfig{
				Binary:    "docker",
				Image:     "scsibug/nostr-rs-relay:latest",
				Container: "privacy-lion-relay",
			},
			LocalPaths: []string{
				"./target/release/nostr-rs-relay",
				"./nostr-rs-relay/target/release/nostr-rs-relay",
				"/usr/local/bin/nostr-rs-relay",
				"nostr-rs-relay",
			},
			SettleDelay: 3 * time.Second,
			StopTimeout: 10 * time.Second,
			Probe: ProbeConfig{
				Kind:     ProbeTCP,
				Timeout:  5 * time.Second,
				Identity: "nostr",
			},
		},
		Database: DatabaseConfig{
			Path:          "./data/relayoperator.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "relay-operator",
			},
			QoS:         1,
			TopicPrefix: "relayoperator",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7780,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			StatusInterval: 3,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "privacy-lion",
			Bucket:        "relay",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				TokenTTL: 15,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RELAYOP_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Relay
	if v := os.Getenv("RELAYOP_RELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Relay.Port = port
		}
	}
	if v := os.Getenv("RELAYOP_RELAY_DATA_DIR"); v != "" {
		cfg.Relay.DataDir = v
	}

	// Launcher
	if v := os.Getenv("RELAYOP_LAUNCHER_STRATEGIES"); v != "" {
		cfg.Launcher.Strategies = splitList(v)
	}
	if v := os.Getenv("RELAYOP_LAUNCHER_SIDECAR_PATH"); v != "" {
		cfg.Launcher.SidecarPath = v
	}

	// Database
	if v := os.Getenv("RELAYOP_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RELAYOP_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RELAYOP_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RELAYOP_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RELAYOP_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RELAYOP_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("RELAYOP_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("RELAYOP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("RELAYOP_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// splitList splits a comma-separated environment value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Instance.ID == "" {
		errs = append(errs, "instance.id is required")
	}

	// Relay validation
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		errs = append(errs, "relay.port must be between 1 and 65535")
	}
	if c.Relay.DataDir == "" {
		errs = append(errs, "relay.data_dir is required")
	}
	if c.Relay.Name == "" {
		errs = append(errs, "relay.name is required")
	}
	if c.Relay.MaxConnections < 0 {
		errs = append(errs, "relay.max_connections must not be negative")
	}

	// Launcher validation
	if len(c.Launcher.Strategies) == 0 {
		errs = append(errs, "launcher.strategies must list at least one strategy")
	}
	known := []string{StrategyDocker, StrategyLocal, StrategySidecar}
	for _, s := range c.Launcher.Strategies {
		if !slices.Contains(known, s) {
			errs = append(errs, fmt.Sprintf("launcher.strategies: unknown strategy %q", s))
		}
	}
	switch c.Launcher.Probe.Kind {
	case ProbeTCP, ProbeHTTP, ProbeWebSocket:
	default:
		errs = append(errs, "launcher.probe.kind must be tcp, http, or websocket")
	}
	if c.Launcher.Probe.Timeout <= 0 {
		errs = append(errs, "launcher.probe.timeout must be positive")
	}
	if c.Launcher.SettleDelay < 0 {
		errs = append(errs, "launcher.settle_delay must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Port == c.Relay.Port && c.API.Port != 0 {
		errs = append(errs, "api.port must differ from relay.port")
	}

	// Security validation: the secret is optional, but a configured one must be strong
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// APIBaseURL returns the base URL a local client uses to reach the API.
func (c *Config) APIBaseURL() string {
	host := c.API.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, c.API.Port)
}
