// telemetry-monitor subscribes to telemetry topics and appends one
// formatted line per received message to a log file. Messages can also be
// archived to SQLite and forwarded to InfluxDB when those are enabled.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-telemetry/internal/archive"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/logsink"
	"github.com/nerrad567/gray-logic-telemetry/internal/monitor"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "telemetry-monitor"
	defaultConfigPath = "configs/telemetry.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the monitor logic, separated from main for testability.
// It blocks in the MQTT event loop until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting telemetry monitor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version)

	sink, err := logsink.New(cfg.Monitor.LogFile)
	if err != nil {
		return fmt.Errorf("opening log sink: %w", err)
	}

	var forwarders []monitor.NamedForwarder

	store, err := archive.Open(ctx, cfg.Archive)
	switch {
	case errors.Is(err, archive.ErrDisabled):
		log.Info("archive disabled")
	case err != nil:
		return fmt.Errorf("opening archive: %w", err)
	default:
		defer func() {
			log.Info("closing archive")
			if closeErr := store.Close(); closeErr != nil {
				log.Error("error closing archive", "error", closeErr)
			}
		}()
		forwarders = append(forwarders, monitor.NamedForwarder{Name: "archive", Forwarder: store})
		log.Info("archive opened", "path", store.Path())
	}

	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB connection", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write failed", "error", err)
		})
		forwarders = append(forwarders, monitor.NamedForwarder{Name: "influxdb", Forwarder: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	mqttCfg := cfg.MQTT
	mqttCfg.Broker.ClientID = clientID(mqttCfg.Broker.ClientID, "monitor")

	client, err := mqtt.Connect(mqttCfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("closing MQTT connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT connection", "error", closeErr)
		}
	}()
	client.SetLogger(log.With("component", "mqtt"))

	mon, err := monitor.New(monitor.Config{
		Topics:     cfg.Monitor.Topics,
		QoS:        byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		Client:     client,
		Sink:       sink,
		Forwarders: forwarders,
	})
	if err != nil {
		return err
	}
	mon.SetLogger(log.With("component", "monitor"))

	log.Info("monitoring telemetry",
		"broker", client.Address(),
		"topics", cfg.Monitor.Topics,
		"log_file", sink.Path(),
		"forwarders", len(forwarders),
	)

	if err := client.RunLoop(ctx, mqtt.RunForeground, mon); err != nil {
		return err
	}

	stats := mon.Stats()
	log.Info("telemetry monitor stopped",
		"received", stats.Received,
		"logged", stats.Logged,
		"raw", stats.Raw,
		"failed", stats.Failed,
	)
	return nil
}

// clientID derives a per-binary client ID so the publisher and monitor can
// share one config file without the broker evicting either session.
func clientID(base, role string) string {
	if base == "" {
		return "telemetry-" + role
	}
	return base + "-" + role
}

// getConfigPath returns TELEMETRY_CONFIG, else the default path when that
// file exists, else "" so that built-in defaults apply.
func getConfigPath() string {
	if path := os.Getenv("TELEMETRY_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		return ""
	}
	return defaultConfigPath
}
