// Relay Operator supervises a local NOSTR relay.
//
// "serve" owns the relay: it starts it through Docker, a local build or a
// bundled sidecar binary, exposes start/stop/status/config over HTTP and
// MQTT, and records every lifecycle event. The other commands are thin
// clients of a running "serve".
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/privacylion/relay-operator/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=0.1.0 -X main.commit=abc123"
var (
	version = "0.1.0"   // Semantic version
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	productName = "relay-operator"

	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. Without a subcommand it serves.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    productName,
		Usage:   "supervise a local NOSTR relay",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   defaultConfigPath,
				Sources: cli.EnvVars("RELAYOP_CONFIG"),
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the API server and supervise the relay (default)",
				Action: serveAction,
			},
			{
				Name:   "start",
				Usage:  "start the relay",
				Flags:  []cli.Flag{jsonFlag()},
				Action: startAction,
			},
			{
				Name:   "stop",
				Usage:  "stop the relay",
				Flags:  []cli.Flag{jsonFlag()},
				Action: stopAction,
			},
			{
				Name:   "status",
				Usage:  "show the relay status",
				Flags:  []cli.Flag{jsonFlag()},
				Action: statusAction,
			},
			{
				Name:   "health",
				Usage:  "check that the relay port is open and the relay answers",
				Flags:  []cli.Flag{jsonFlag()},
				Action: healthAction,
			},
			{
				Name:   "open",
				Usage:  "open the relay URL with the default handler",
				Action: openAction,
			},
			{
				Name:   "render-config",
				Usage:  "print the relay config file generated from the current settings",
				Action: renderConfigAction,
			},
			{
				Name:  "token",
				Usage: "mint an API token from security.jwt.secret",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime (default security.jwt.token_ttl)"},
				},
				Action: tokenAction,
			},
			{
				Name:   "version",
				Usage:  "print version information",
				Action: versionAction,
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "print the raw JSON response"}
}

// loadConfig reads the config file named by --config. A missing file at
// the default path falls back to built-in defaults, since desktop installs
// ship without one.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.IsSet("config") {
		return config.Default()
	}
	return nil, fmt.Errorf("loading config: %w", err)
}
