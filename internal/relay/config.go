package relay

import (
	"fmt"
	"path/filepath"
	"strings"
)

// configFileName is the name of the generated relay config inside the data directory.
const configFileName = "config.toml"

// Config holds the settings of the supervised relay.
// It is replaced wholesale by UpdateConfig, never patched field by field.
type Config struct {
	Port              int    `json:"port"`
	Address           string `json:"address"`
	DataDir           string `json:"data_dir"`
	MaxConnections    int    `json:"max_connections"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	MaxEventBytes     int    `json:"max_event_bytes"`
	MaxWSMessageBytes int    `json:"max_ws_message_bytes"`
	// RetentionDays is how long the relay keeps events. 0 keeps them forever.
	RetentionDays int `json:"retention_days"`
}

// DefaultConfig returns the settings a fresh install starts with.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		Address:           "0.0.0.0",
		DataDir:           filepath.Join("/tmp", "privacy-lion-relay"),
		MaxConnections:    100,
		Name:              "Privacy Lion Relay",
		Description:       "Privacy Lion NOSTR Relay - Empowering Data Freedom",
		MaxEventBytes:     65536,
		MaxWSMessageBytes: 131072,
	}
}

// Validate checks the configuration for errors. Every problem is reported
// in one error wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if c.Name == "" {
		errs = append(errs, "name is required")
	}
	if c.MaxConnections < 0 {
		errs = append(errs, "max_connections must not be negative")
	}
	if c.MaxEventBytes < 0 || c.MaxWSMessageBytes < 0 {
		errs = append(errs, "message size limits must not be negative")
	}
	if c.RetentionDays < 0 {
		errs = append(errs, "retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// ConfigPath returns where the generated relay config file lives.
func (c Config) ConfigPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

// RelayURL returns the WebSocket URL clients use to reach the relay.
func (c Config) RelayURL() string {
	return fmt.Sprintf("ws://localhost:%d/", c.Port)
}
