package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// redacted replaces the value of any attribute named in secretKeys.
const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the output.
var secretKeys = map[string]bool{
	"password": true,
	"token":    true,
}

// Logger is the structured logger shared by the publisher and the monitor.
//
// It satisfies the Logger interfaces of the mqtt, sampler and monitor
// packages, so one value can be handed to every component.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
//
// Every record carries the binary name and version, and attributes named
// "password" or "token" are written as [REDACTED].
//
// Parameters:
//   - cfg: Level (debug/info/warn/error), format (text/json), output (stdout/stderr)
//   - service: Binary name, e.g. "telemetry-monitor"
//   - version: Build version set through ldflags
//
// Returns:
//   - *Logger: Ready-to-use logger; unknown settings fall back to info/text/stdout
func New(cfg config.LoggingConfig, service, version string) *Logger {
	return newWithWriter(cfg, service, version, outputFor(cfg.Output))
}

// outputFor maps the configured output name onto a stream.
func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func newWithWriter(cfg config.LoggingConfig, service, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}

	base := slog.New(h).With(
		slog.String("service", service),
		slog.String("version", version),
	)
	return &Logger{Logger: base}
}

// redactSecrets is the slog ReplaceAttr hook hiding credential values.
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// parseLevel accepts debug, info, warn (or warning) and error in any case.
// Anything else means info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying extra attributes.
//
// Example:
//
//	mqttLog := log.With("component", "mqtt")
//	mqttLog.Warn("connection lost") // component=mqtt
//
// Parameters:
//   - args: Alternating keys and values, as accepted by slog
//
// Returns:
//   - *Logger: New logger; the receiver is unchanged
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns the logger used until configuration has been loaded:
// text at info level on stdout, version "dev".
//
// Parameters:
//   - service: Binary name recorded on every entry
//
// Returns:
//   - *Logger: Bootstrap logger
func Default(service string) *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, service, "dev")
}

// Discard returns a logger that writes nothing. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
