package main

import (
	"fmt"

	"github.com/privacylion/relay-operator/internal/infrastructure/config"
	"github.com/privacylion/relay-operator/internal/infrastructure/logging"
	"github.com/privacylion/relay-operator/internal/relay"
)

// relayConfig converts the relay section of the application config.
func relayConfig(c config.RelayConfig) relay.Config {
	return relay.Config{
		Port:              c.Port,
		Address:           c.Address,
		DataDir:           c.DataDir,
		MaxConnections:    c.MaxConnections,
		Name:              c.Name,
		Description:       c.Description,
		MaxEventBytes:     c.MaxEventBytes,
		MaxWSMessageBytes: c.MaxWSMessageBytes,
		RetentionDays:     c.RetentionDays,
	}
}

// buildStrategies creates the start strategies in configured order.
func buildStrategies(c config.LauncherConfig) ([]relay.Strategy, error) {
	strategies := make([]relay.Strategy, 0, len(c.Strategies))
	for _, name := range c.Strategies {
		switch name {
		case config.StrategyDocker:
			strategies = append(strategies, relay.NewDockerStrategy(c.Docker.Binary, c.Docker.Image, c.Docker.Container))
		case config.StrategyLocal:
			strategies = append(strategies, relay.NewLocalStrategy(c.LocalPaths))
		case config.StrategySidecar:
			strategies = append(strategies, relay.NewSidecarStrategy(c.SidecarPath))
		default:
			return nil, fmt.Errorf("unknown start strategy %q", name)
		}
	}
	return strategies, nil
}

// buildLauncher creates the relay launcher from the application config.
func buildLauncher(cfg *config.Config, observer relay.Observer, log *logging.Logger) (*relay.Launcher, error) {
	strategies, err := buildStrategies(cfg.Launcher)
	if err != nil {
		return nil, err
	}

	prober, err := relay.NewProber(cfg.Launcher.Probe.Kind, cfg.Launcher.Probe.Timeout, cfg.Launcher.Probe.Identity)
	if err != nil {
		return nil, err
	}

	launcher, err := relay.New(relayConfig(cfg.Relay), relay.Options{
		Strategies:  strategies,
		Prober:      prober,
		SettleDelay: cfg.Launcher.SettleDelay,
		StopTimeout: cfg.Launcher.StopTimeout,
		Observer:    observer,
		Logger:      log.With("component", "relay"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating launcher: %w", err)
	}
	return launcher, nil
}
