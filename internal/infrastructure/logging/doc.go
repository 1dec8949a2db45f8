// Package logging provides structured logging for the relay operator.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "0.1.0")
//	logger.Info("relay started", "port", 8080)
//	logger.Error("probe failed", "error", err)
//
// Never log secrets: the JWT secret, MQTT password and InfluxDB token stay
// out of every log entry.
package logging
