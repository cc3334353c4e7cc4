// Package logging provides structured logging for the bridge manager.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same default fields and level handling.
//
// # Features
//
//   - Text output for interactive runs, JSON for log shipping
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Logs go to stderr by default so command reports own stdout
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("service stopped", "unit", cfg.Service.Unit)
//	logger.Error("restore failed", "error", err)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
