package relay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/naoina/toml"
)

// File permissions for generated relay files.
const (
	dataDirPermissions    = 0750
	configFilePermissions = 0600
)

// relayFile mirrors the sections of nostr-rs-relay's config.toml that the
// operator controls. Field order fixes section and key order in the output.
type relayFile struct {
	Info      infoSection      `toml:"info"`
	Database  databaseSection  `toml:"database"`
	Network   networkSection   `toml:"network"`
	Limits    limitsSection    `toml:"limits"`
	Retention retentionSection `toml:"retention"`
}

type infoSection struct {
	RelayURL    string `toml:"relay_url"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

type databaseSection struct {
	DataDirectory string `toml:"data_directory"`
}

type networkSection struct {
	Port    int    `toml:"port"`
	Address string `toml:"address"`
}

type limitsSection struct {
	MaxConnections    int `toml:"max_connections"`
	MaxEventBytes     int `toml:"max_event_bytes"`
	MaxWSMessageBytes int `toml:"max_ws_message_bytes"`
}

type retentionSection struct {
	PersistDays int `toml:"persist_days"`
}

// RenderConfigFile renders the relay config file for cfg. The output is a
// pure function of cfg: the same input always yields the same bytes.
func RenderConfigFile(cfg Config) ([]byte, error) {
	file := relayFile{
		Info: infoSection{
			RelayURL:    cfg.RelayURL(),
			Name:        cfg.Name,
			Description: cfg.Description,
		},
		Database: databaseSection{
			DataDirectory: cfg.DataDir,
		},
		Network: networkSection{
			Port:    cfg.Port,
			Address: cfg.Address,
		},
		Limits: limitsSection{
			MaxConnections:    cfg.MaxConnections,
			MaxEventBytes:     cfg.MaxEventBytes,
			MaxWSMessageBytes: cfg.MaxWSMessageBytes,
		},
		Retention: retentionSection{
			PersistDays: cfg.RetentionDays,
		},
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encoding relay config: %w", err)
	}
	return data, nil
}

// prepareFiles creates the data directory and writes the config file when
// it is missing or when force is set. It reports whether the file was written.
func prepareFiles(cfg Config, force bool) (bool, error) {
	if err := os.MkdirAll(cfg.DataDir, dataDirPermissions); err != nil {
		return false, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}

	path := cfg.ConfigPath()
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("checking relay config %s: %w", path, err)
		}
	}

	data, err := RenderConfigFile(cfg)
	if err != nil {
		return false, err
	}

	// Write to a temp file and rename so the relay never reads a partial file
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return false, fmt.Errorf("creating temp relay config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // No-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return false, fmt.Errorf("writing relay config: %w", err)
	}
	if err := tmp.Chmod(configFilePermissions); err != nil {
		tmp.Close() //nolint:errcheck // Already failing
		return false, fmt.Errorf("setting relay config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("closing relay config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("installing relay config %s: %w", path, err)
	}

	return true, nil
}
