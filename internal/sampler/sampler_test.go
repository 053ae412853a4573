package sampler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// mockPublisher records published messages.
type mockPublisher struct {
	mu       sync.Mutex
	messages []Message
	failOn   string
	sent     chan struct{}
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if topic == m.failOn {
		return errors.New("broker unavailable")
	}

	m.mu.Lock()
	m.messages = append(m.messages, Message{Topic: topic, Payload: payload})
	m.mu.Unlock()

	if m.sent != nil {
		select {
		case m.sent <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var fixedTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSampler(pub Publisher, sensors ...config.SensorConfig) *Sampler {
	return New(Config{
		DeviceID:  "rpi_sensor_001",
		Interval:  time.Hour,
		Sensors:   sensors,
		Publisher: pub,
		Rand:      rand.New(rand.NewPCG(1, 2)),
		Now:       func() time.Time { return fixedTime },
	})
}

func TestSample_Ranges(t *testing.T) {
	s := newTestSampler(nil,
		config.SensorConfig{Type: telemetry.SensorCurrentOutput, Topic: "site/current_output"},
		config.SensorConfig{Type: telemetry.SensorWaterLevel, Topic: "site/water_level"},
	)

	for i := 0; i < 1000; i++ {
		for _, msg := range s.Sample() {
			r, err := telemetry.Decode(msg.Payload).Reading()
			if err != nil {
				t.Fatalf("Reading() error = %v", err)
			}

			spec, _ := telemetry.LookupSensor(r.SensorType)
			if !spec.Contains(r.Value) {
				t.Fatalf("%s value %v outside [%v, %v]", r.SensorType, r.Value, spec.Min, spec.Max)
			}
			if r.Unit != spec.Unit {
				t.Errorf("unit = %q, want %q", r.Unit, spec.Unit)
			}
			if r.Value != spec.Round(r.Value) {
				t.Errorf("value %v not rounded to %d dp", r.Value, spec.Precision)
			}
		}
	}
}

func TestSample_ExtendedFields(t *testing.T) {
	s := newTestSampler(nil,
		config.SensorConfig{Type: telemetry.SensorWaterLevel, Topic: "a/water_level"},
		config.SensorConfig{Type: telemetry.SensorWaterLevel, Topic: "b/water_level"},
	)

	msgs := s.Sample()
	if len(msgs) != 2 {
		t.Fatalf("Sample() returned %d messages, want 2", len(msgs))
	}

	first, _ := telemetry.Decode(msgs[0].Payload).Reading()
	second, _ := telemetry.Decode(msgs[1].Payload).Reading()

	if first.DeviceID != "rpi_sensor_001" {
		t.Errorf("device_id = %q", first.DeviceID)
	}
	if first.Timestamp != "2024-01-01 00:00:00" {
		t.Errorf("timestamp = %q", first.Timestamp)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Errorf("ids must be unique and non-empty: %q, %q", first.ID, second.ID)
	}
	if msgs[1].Topic != "b/water_level" {
		t.Errorf("topic = %q, want b/water_level", msgs[1].Topic)
	}
}

func TestSample_Climate(t *testing.T) {
	s := newTestSampler(nil, config.SensorConfig{Type: telemetry.SensorClimate, Topic: "iot/sensor/data"})

	msgs := s.Sample()
	if len(msgs) != 1 {
		t.Fatalf("Sample() returned %d messages, want 1", len(msgs))
	}

	d := telemetry.Decode(msgs[0].Payload)
	if d.Shape() != telemetry.ShapeLegacy {
		t.Fatalf("Shape() = %v, want legacy", d.Shape())
	}

	c, err := d.Climate()
	if err != nil {
		t.Fatalf("Climate() error = %v", err)
	}
	if !telemetry.TemperatureSpec.Contains(c.Temperature) {
		t.Errorf("temperature %v out of range", c.Temperature)
	}
	if !telemetry.HumiditySpec.Contains(c.Humidity) {
		t.Errorf("humidity %v out of range", c.Humidity)
	}
	if c.DeviceID != "rpi_sensor_001" {
		t.Errorf("device_id = %q", c.DeviceID)
	}
}

func TestSample_UnknownSensorSkipped(t *testing.T) {
	s := newTestSampler(nil, config.SensorConfig{Type: "pressure", Topic: "site/pressure"})

	if msgs := s.Sample(); len(msgs) != 0 {
		t.Errorf("Sample() returned %d messages for unknown type, want 0", len(msgs))
	}
}

func TestTick_PublishErrorDoesNotStopOthers(t *testing.T) {
	pub := &mockPublisher{failOn: "site/current_output"}
	s := newTestSampler(pub,
		config.SensorConfig{Type: telemetry.SensorCurrentOutput, Topic: "site/current_output"},
		config.SensorConfig{Type: telemetry.SensorWaterLevel, Topic: "site/water_level"},
	)

	if sent := s.Tick(); sent != 1 {
		t.Errorf("Tick() = %d, want 1", sent)
	}
	if pub.count() != 1 || pub.messages[0].Topic != "site/water_level" {
		t.Errorf("published = %+v", pub.messages)
	}
}

func TestRun_FirstTickImmediate(t *testing.T) {
	pub := &mockPublisher{sent: make(chan struct{}, 1)}
	s := newTestSampler(pub, config.SensorConfig{Type: telemetry.SensorClimate, Topic: "iot/sensor/data"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-pub.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("no publish before the first interval elapsed")
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_RequiresPublisher(t *testing.T) {
	s := New(Config{})

	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() without publisher expected error")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})

	if s.interval != defaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, defaultInterval)
	}
	if s.rng == nil || s.now == nil {
		t.Error("rand and clock must default")
	}
}
