package relay

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderConfigFile_Deterministic(t *testing.T) {
	cfg := DefaultConfig()

	first, err := RenderConfigFile(cfg)
	if err != nil {
		t.Fatalf("RenderConfigFile() error = %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := RenderConfigFile(cfg)
		if err != nil {
			t.Fatalf("RenderConfigFile() error = %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("render %d differs:\n%s\nvs\n%s", i, first, again)
		}
	}
}

func TestRenderConfigFile_Content(t *testing.T) {
	cfg := Config{
		Port:              18080,
		Address:           "0.0.0.0",
		DataDir:           "/var/lib/relay",
		MaxConnections:    42,
		Name:              "Test Relay",
		Description:       "unit test",
		MaxEventBytes:     1000,
		MaxWSMessageBytes: 2000,
		RetentionDays:     7,
	}

	data, err := RenderConfigFile(cfg)
	if err != nil {
		t.Fatalf("RenderConfigFile() error = %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`relay_url = "ws://localhost:18080/"`,
		`name = "Test Relay"`,
		`description = "unit test"`,
		`data_directory = "/var/lib/relay"`,
		`port = 18080`,
		`address = "0.0.0.0"`,
		`max_connections = 42`,
		`max_event_bytes = 1000`,
		`max_ws_message_bytes = 2000`,
		`persist_days = 7`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Sections appear in a fixed order
	last := -1
	for _, section := range []string{"[info]", "[database]", "[network]", "[limits]", "[retention]"} {
		idx := strings.Index(out, section)
		if idx < 0 {
			t.Fatalf("output missing section %s:\n%s", section, out)
		}
		if idx < last {
			t.Errorf("section %s out of order:\n%s", section, out)
		}
		last = idx
	}
}

func TestRenderConfigFile_DiffersByConfig(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.Port = 9999

	outA, _ := RenderConfigFile(a)
	outB, _ := RenderConfigFile(b)
	if bytes.Equal(outA, outB) {
		t.Error("different configs rendered identical files")
	}
}

func TestPrepareFiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "relay")

	written, err := prepareFiles(cfg, false)
	if err != nil {
		t.Fatalf("prepareFiles() error = %v", err)
	}
	if !written {
		t.Error("written = false for missing file")
	}

	info, err := os.Stat(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != configFilePermissions {
		t.Errorf("config permissions = %o, want %o", perm, configFilePermissions)
	}

	want, _ := RenderConfigFile(cfg)
	got, _ := os.ReadFile(cfg.ConfigPath())
	if !bytes.Equal(got, want) {
		t.Errorf("file content differs from render:\n%s", got)
	}
}

func TestPrepareFiles_KeepsExistingUnlessForced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	custom := []byte("# hand edited\n")
	if err := os.WriteFile(cfg.ConfigPath(), custom, 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	written, err := prepareFiles(cfg, false)
	if err != nil {
		t.Fatalf("prepareFiles() error = %v", err)
	}
	if written {
		t.Error("written = true, existing file should be kept")
	}
	if got, _ := os.ReadFile(cfg.ConfigPath()); !bytes.Equal(got, custom) {
		t.Errorf("existing file modified: %s", got)
	}

	written, err = prepareFiles(cfg, true)
	if err != nil {
		t.Fatalf("prepareFiles(force) error = %v", err)
	}
	if !written {
		t.Error("written = false with force")
	}
	if got, _ := os.ReadFile(cfg.ConfigPath()); bytes.Equal(got, custom) {
		t.Error("forced write left the old content")
	}

	// No temp files left behind
	entries, _ := os.ReadDir(cfg.DataDir)
	if len(entries) != 1 {
		t.Errorf("data dir has %d entries, want 1", len(entries))
	}
}

func TestPrepareFiles_UnwritableDir(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	parent := t.TempDir()
	if err := os.Chmod(parent, 0500); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(parent, 0700) }) //nolint:errcheck

	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(parent, "relay")

	if _, err := prepareFiles(cfg, false); err == nil {
		t.Error("prepareFiles() expected error for unwritable parent")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"empty name", func(c *Config) { c.Name = "" }, true},
		{"negative connections", func(c *Config) { c.MaxConnections = -1 }, true},
		{"negative event size", func(c *Config) { c.MaxEventBytes = -1 }, true},
		{"negative retention", func(c *Config) { c.RetentionDays = -1 }, true},
		{"zero limits allowed", func(c *Config) { c.MaxConnections = 0; c.RetentionDays = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_URLs(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RelayURL(); got != "ws://localhost:8080/" {
		t.Errorf("RelayURL() = %q", got)
	}
	if got := cfg.ConfigPath(); got != filepath.Join("/tmp/privacy-lion-relay", "config.toml") {
		t.Errorf("ConfigPath() = %q", got)
	}
}
