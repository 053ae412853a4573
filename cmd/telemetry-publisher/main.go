// telemetry-publisher samples simulated sensors and publishes one JSON
// reading per configured sensor to its MQTT topic on a fixed interval.
//
// Configuration comes from the YAML file named by TELEMETRY_CONFIG (default
// configs/telemetry.yaml, or built-in defaults when that file is absent), a
// .env file in the working directory, and TELEMETRY_* environment overrides.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/sampler"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "telemetry-publisher"
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

// run is the publisher logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default(serviceName)
	log.Info("starting telemetry publisher",
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
	log.Info("configuration loaded",
		"device_id", cfg.Device.ID,
		"sensors", len(cfg.Publisher.Sensors),
		"interval", cfg.Publisher.GetInterval(),
	)

	mqttCfg := cfg.MQTT
	mqttCfg.Broker.ClientID = clientID(mqttCfg.Broker.ClientID, "publisher")

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
	log.Info("MQTT connected", "broker", client.Address(), "client_id", mqttCfg.Broker.ClientID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := client.RunLoop(ctx, mqtt.RunBackground, publisherHandler(client, log)); err != nil {
		return fmt.Errorf("starting network loop: %w", err)
	}
	client.MarkPublishing()

	s := sampler.New(sampler.Config{
		DeviceID:  cfg.Device.ID,
		Interval:  cfg.Publisher.GetInterval(),
		Sensors:   cfg.Publisher.Sensors,
		QoS:       byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		Publisher: client,
	})
	s.SetLogger(log.With("component", "sampler"))

	// The network loop ends early only when the broker refuses us with
	// fail_fast set. Stop sampling when that happens.
	go func() {
		select {
		case <-client.LoopDone():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.Run(ctx); err != nil {
		return err
	}

	if loopErr := client.LoopErr(); loopErr != nil {
		return loopErr
	}

	log.Info("telemetry publisher stopped")
	return nil
}

// publisherHandler reports delivery results and session changes. Every
// accepted (re)connect puts the session back into the publishing state.
func publisherHandler(client *mqtt.Client, log *logging.Logger) mqtt.HandlerFuncs {
	return mqtt.HandlerFuncs{
		Connected: func(code byte) {
			log.Info("connected to broker", "code", code)
			if code == mqtt.CodeAccepted {
				client.MarkPublishing()
			}
		},
		Disconnected: func(err error) {
			log.Info("disconnected from broker", "error", err)
		},
		PublishAcked: func(id uint16, err error) {
			if err != nil {
				log.Warn("publish not acknowledged", "message_id", id, "error", err)
				return
			}
			log.Debug("publish acknowledged", "message_id", id)
		},
	}
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
