package sampler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// defaultInterval applies when Config.Interval is zero.
const defaultInterval = 5 * time.Second

// Publisher is the interface for sending encoded readings.
// This is typically implemented by an MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config holds configuration for the sampler.
type Config struct {
	// DeviceID is stamped on every reading.
	DeviceID string

	// Interval is the sampling period. Default: 5 seconds.
	Interval time.Duration

	// Sensors lists the (sensor type, topic) pairs sampled on each tick.
	Sensors []config.SensorConfig

	// QoS for published readings.
	QoS byte

	// Publisher is the MQTT client for publishing readings.
	Publisher Publisher

	// Rand draws sensor values. Default: a randomly seeded PCG source.
	Rand *rand.Rand

	// Now supplies reading timestamps. Default: time.Now.
	Now func() time.Time
}

// Sampler produces one reading per configured sensor on every tick.
type Sampler struct {
	deviceID  string
	interval  time.Duration
	sensors   []config.SensorConfig
	qos       byte
	publisher Publisher
	now       func() time.Time

	// rand.Rand is not safe for concurrent use.
	rng   *rand.Rand
	rngMu sync.Mutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Message is one encoded reading ready to publish.
type Message struct {
	SensorType string
	Topic      string
	Payload    []byte
}

// New creates a sampler from cfg.
func New(cfg Config) *Sampler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // simulated sensor data
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Sampler{
		deviceID:  cfg.DeviceID,
		interval:  interval,
		sensors:   cfg.Sensors,
		qos:       cfg.QoS,
		publisher: cfg.Publisher,
		now:       now,
		rng:       rng,
	}
}

// SetLogger sets the logger for this sampler.
func (s *Sampler) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Run samples and publishes until ctx is cancelled. The first tick fires
// immediately. It blocks the caller and returns nil on cancellation.
func (s *Sampler) Run(ctx context.Context) error {
	if s.publisher == nil {
		return fmt.Errorf("sampler: publisher is required")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick samples every configured sensor once and publishes the results.
// A failed publish is logged and does not stop the remaining sensors.
// Returns the number of readings handed to the publisher.
func (s *Sampler) Tick() int {
	sent := 0
	for _, msg := range s.Sample() {
		if err := s.publisher.Publish(msg.Topic, msg.Payload, s.qos, false); err != nil {
			s.log().Warn("publish failed",
				"topic", msg.Topic,
				"sensor_type", msg.SensorType,
				"error", err,
			)
			continue
		}
		sent++
		s.log().Info("sent", "topic", msg.Topic, "payload", string(msg.Payload))
	}
	return sent
}

// Sample draws one reading per configured sensor without publishing.
// Unknown sensor types produce no message.
func (s *Sampler) Sample() []Message {
	timestamp := telemetry.FormatTimestamp(s.now())

	msgs := make([]Message, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		payload, err := s.encode(sensor.Type, timestamp)
		if err != nil {
			s.log().Warn("encode failed", "sensor_type", sensor.Type, "error", err)
			continue
		}
		if payload == nil {
			s.log().Debug("skipping unknown sensor type", "sensor_type", sensor.Type, "topic", sensor.Topic)
			continue
		}
		msgs = append(msgs, Message{
			SensorType: sensor.Type,
			Topic:      sensor.Topic,
			Payload:    payload,
		})
	}
	return msgs
}

// encode returns nil, nil for an unknown sensor type.
func (s *Sampler) encode(sensorType, timestamp string) ([]byte, error) {
	if sensorType == telemetry.SensorClimate {
		return telemetry.EncodeClimate(telemetry.ClimateReading{
			Timestamp:   timestamp,
			Temperature: s.draw(telemetry.TemperatureSpec),
			Humidity:    s.draw(telemetry.HumiditySpec),
			DeviceID:    s.deviceID,
		})
	}

	spec, ok := telemetry.LookupSensor(sensorType)
	if !ok {
		return nil, nil
	}

	return telemetry.Encode(telemetry.Reading{
		ID:         uuid.NewString(),
		SensorType: sensorType,
		Value:      s.draw(spec),
		Unit:       spec.Unit,
		Timestamp:  timestamp,
		DeviceID:   s.deviceID,
	})
}

// draw returns a uniform value in [spec.Min, spec.Max] at spec precision.
func (s *Sampler) draw(spec telemetry.SensorSpec) float64 {
	s.rngMu.Lock()
	f := s.rng.Float64()
	s.rngMu.Unlock()

	return spec.Round(spec.Min + f*(spec.Max-spec.Min))
}

func (s *Sampler) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	if s.logger == nil {
		return nopLogger{}
	}
	return s.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
