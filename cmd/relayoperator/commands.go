package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/privacylion/relay-operator/internal/auth"
	"github.com/privacylion/relay-operator/internal/relay"
)

// errRelayOffline makes "health" exit non-zero when the relay is down.
var errRelayOffline = errors.New("relay is not online")

func startAction(ctx context.Context, cmd *cli.Command) error {
	return statusCall(ctx, cmd, http.MethodPost, "/api/v1/relay/start")
}

func stopAction(ctx context.Context, cmd *cli.Command) error {
	return statusCall(ctx, cmd, http.MethodPost, "/api/v1/relay/stop")
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	return statusCall(ctx, cmd, http.MethodGet, "/api/v1/relay/status")
}

// statusCall runs a relay operation that returns a relay.Status.
func statusCall(ctx context.Context, cmd *cli.Command, method, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	client := newAPIClient(cfg)
	var st relay.Status
	if method == http.MethodPost {
		err = client.post(ctx, path, &st)
	} else {
		err = client.get(ctx, path, &st)
	}
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return printJSON(w, st)
	}
	fmt.Fprintln(w, st.Message)
	if st.Running {
		fmt.Fprintf(w, "  url:      ws://localhost:%d/\n", st.Port)
		fmt.Fprintf(w, "  strategy: %s\n", st.Strategy)
		fmt.Fprintf(w, "  pid:      %d\n", st.PID)
	}
	return nil
}

func healthAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var report relay.HealthReport
	if err := newAPIClient(cfg).get(ctx, "/api/v1/relay/health", &report); err != nil {
		return err
	}

	w := cmd.Root().Writer
	if cmd.Bool("json") {
		return printJSON(w, report)
	}
	fmt.Fprintln(w, report.Message)
	fmt.Fprintf(w, "  port accessible: %t\n", report.PortAccessible)
	fmt.Fprintf(w, "  relay online:    %t\n", report.RelayOnline)
	fmt.Fprintf(w, "  latency:         %.1fms\n", report.LatencyMS)
	if !report.RelayOnline {
		return errRelayOffline
	}
	return nil
}

func openAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := newAPIClient(cfg).post(ctx, "/api/v1/relay/open", &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "Opened %s\n", resp.URL)
	return nil
}

// renderConfigAction prints the relay config file without starting anything.
func renderConfigAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := relay.RenderConfigFile(relayConfig(cfg.Relay))
	if err != nil {
		return err
	}
	_, err = cmd.Root().Writer.Write(data)
	return err
}

// tokenAction mints a token for scripts and WebSocket clients.
func tokenAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ttl := cmd.Duration("ttl")
	if ttl <= 0 {
		ttl = newAPIClient(cfg).ttl
	}
	token, err := auth.GenerateToken(cliTokenSubject, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	fmt.Fprintln(cmd.Root().Writer, token)
	return nil
}

func versionAction(_ context.Context, cmd *cli.Command) error {
	fmt.Fprintf(cmd.Root().Writer, "%s %s (commit %s, built %s)\n", productName, version, commit, date)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
