package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/privacylion/relay-operator/internal/api"
	"github.com/privacylion/relay-operator/internal/history"
	"github.com/privacylion/relay-operator/internal/infrastructure/config"
	"github.com/privacylion/relay-operator/internal/infrastructure/database"
	"github.com/privacylion/relay-operator/internal/infrastructure/influxdb"
	"github.com/privacylion/relay-operator/internal/infrastructure/logging"
	"github.com/privacylion/relay-operator/internal/infrastructure/mqtt"
	"github.com/privacylion/relay-operator/internal/relay"
	_ "github.com/privacylion/relay-operator/migrations"
)

// shutdownStopTimeout bounds stopping the relay when the operator exits.
const shutdownStopTimeout = 30 * time.Second

func serveAction(ctx context.Context, cmd *cli.Command) error {
	log := logging.Default()
	log.Info("starting relay operator",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", "path", cmd.String("config"))

	return run(ctx, cfg, logging.New(cfg.Logging, version))
}

// run wires every component and blocks until ctx is cancelled. The relay,
// if running, is stopped before run returns.
func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := history.NewSQLiteRepository(db.DB)
	go pruneHistory(ctx, historyRepo, cfg.Database.RetentionDays, log)

	observers := relay.Observers{
		logObserver(log),
		history.NewRecorder(historyRepo, log),
	}
	checks := map[string]api.HealthChecker{"database": db}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"status_topic", mqttClient.Topics().Status(),
		)

		observers = append(observers, &mqttObserver{client: mqttClient, topics: mqttClient.Topics(), log: log})
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Instance.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		observers = append(observers, &influxObserver{client: influxClient})
		checks["influxdb"] = influxClient
	}

	// The hub must exist before the launcher so it can observe relay events
	hub := api.NewHub(cfg.WebSocket, log)
	observers = append(observers, hub)

	launcher, err := buildLauncher(cfg, observers, log)
	if err != nil {
		return err
	}
	defer stopRelay(launcher, log)

	if mqttClient != nil {
		topics := mqttClient.Topics()
		if err := mqttClient.Subscribe(topics.Command(), byte(cfg.MQTT.QoS), commandHandler(ctx, launcher, mqttClient, topics, log)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topics.Command(), err)
		}
		defer func() {
			if err := mqttClient.Unsubscribe(topics.Command()); err != nil {
				log.Warn("unsubscribing from relay commands", "error", err)
			}
		}()
		log.Info("listening for relay commands", "topic", topics.Command())
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Relay:    launcher,
		History:  historyRepo,
		Checks:   checks,
		DB:       db.DB,
		Hub:      hub,
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	if cfg.Security.JWT.Secret == "" {
		log.Warn("API authentication disabled; keep api.host on loopback", "address", server.Addr())
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal", "api", "http://"+server.Addr())

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. MQTT command subscription (if enabled)
	// 3. Relay
	// 4. InfluxDB (if enabled)
	// 5. MQTT (if enabled)
	// 6. Database
	return nil
}

// stopRelay stops a relay left running when the operator exits.
func stopRelay(launcher *relay.Launcher, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownStopTimeout)
	defer cancel()

	st, err := launcher.Stop(ctx)
	if err != nil {
		log.Error("error stopping relay", "error", err)
		return
	}
	log.Info("relay shutdown", "message", st.Message)
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
