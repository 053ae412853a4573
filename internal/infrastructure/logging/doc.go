// Package logging provides structured logging for the telemetry binaries.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across both the publisher and the monitor.
//
// # Features
//
//   - Text output for field use (human-readable, the default)
//   - JSON output for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "telemetry-monitor", "1.0.0")
//	logger.Info("subscribed", "topic", "iot/sensor/data")
//	logger.Error("failed to connect", "error", err)
//
// Attributes named "password" or "token" are always written as [REDACTED].
// Do not log credentials under other keys.
package logging
