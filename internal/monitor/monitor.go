package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-telemetry/internal/logsink"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
)

// forwardTimeout bounds each forwarder call.
const forwardTimeout = 5 * time.Second

// Subscriber is the part of the MQTT client the monitor needs.
type Subscriber interface {
	Subscribe(topic string, qos byte) error
}

// Forwarder receives every logged message in addition to the log file.
type Forwarder interface {
	Forward(ctx context.Context, msg telemetry.Received) error
}

// NamedForwarder pairs a forwarder with the name used in errors and logs.
type NamedForwarder struct {
	Name      string
	Forwarder Forwarder
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds configuration for the monitor.
type Config struct {
	// Topics are subscribed after every successful connect.
	Topics []string

	// QoS for subscriptions.
	QoS byte

	// Client subscribes to topics.
	Client Subscriber

	// Sink receives one line per message.
	Sink *logsink.Sink

	// Forwarders receive each message after it is logged, in slice order
	// (optional).
	Forwarders []NamedForwarder

	// Now stamps received messages. Default: time.Now.
	Now func() time.Time
}

// Stats counts handled messages.
type Stats struct {
	Received uint64
	Logged   uint64
	Raw      uint64
	Failed   uint64
}

// Monitor subscribes to telemetry topics and logs every message it receives.
// It implements mqtt.Handler.
type Monitor struct {
	topics     []string
	qos        byte
	client     Subscriber
	sink       *logsink.Sink
	forwarders []NamedForwarder
	now        func() time.Time

	received atomic.Uint64
	logged   atomic.Uint64
	raw      atomic.Uint64
	failed   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

var _ mqtt.Handler = (*Monitor)(nil)

// New validates cfg and returns a monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Client == nil {
		return nil, errors.New("monitor: client is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("monitor: sink is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("monitor: at least one topic is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Monitor{
		topics:     cfg.Topics,
		qos:        cfg.QoS,
		client:     cfg.Client,
		sink:       cfg.Sink,
		forwarders: cfg.Forwarders,
		now:        now,
	}, nil
}

// SetLogger sets the logger for this monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// OnConnected subscribes to every configured topic when the broker
// accepted the session. A refused session is logged and nothing else
// happens.
func (m *Monitor) OnConnected(code byte) {
	if code != mqtt.CodeAccepted {
		m.log().Error("connection failed", "code", code)
		return
	}

	m.log().Info("connected to broker")

	for _, topic := range m.topics {
		if err := m.client.Subscribe(topic, m.qos); err != nil {
			m.log().Error("subscribe failed", "topic", topic, "error", err)
			continue
		}
		m.log().Info("subscribed", "topic", topic)
	}
}

// OnDisconnected implements mqtt.Handler.
func (m *Monitor) OnDisconnected(err error) {
	m.log().Info("disconnected from broker", "error", err)
}

// OnPublishAcked implements mqtt.Handler. The monitor does not publish.
func (m *Monitor) OnPublishAcked(uint16, error) {}

// OnMessage decodes, logs and forwards one message.
//
// It never panics. Failures are returned for the event loop to log; they
// do not affect later messages.
func (m *Monitor) OnMessage(topic string, payload []byte) (err error) {
	m.received.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling message on %s: %v", topic, r)
		}
		if err != nil {
			m.failed.Add(1)
		}
	}()

	// The log file is UTF-8 text. A payload that is not is dropped.
	if !utf8.Valid(payload) {
		return fmt.Errorf("decoding message on %s: %w", topic, telemetry.ErrInvalidUTF8)
	}

	msg := telemetry.Received{
		Topic:      topic,
		ReceivedAt: m.now(),
		Decoded:    telemetry.Decode(payload),
	}
	if msg.Decoded.Raw {
		m.raw.Add(1)
	}

	line, err := m.sink.AppendDecoded(msg.Decoded)
	if err != nil {
		return fmt.Errorf("logging message on %s: %w", topic, err)
	}
	m.logged.Add(1)
	m.log().Info("logged", "topic", topic, "line", line)

	return m.forward(msg)
}

// forward hands msg to every forwarder. One failing forwarder does not
// prevent the others from running.
func (m *Monitor) forward(msg telemetry.Received) error {
	var errs []error
	for _, f := range m.forwarders {
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		err := f.Forwarder.Forward(ctx, msg)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("forwarding to %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of message counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Received: m.received.Load(),
		Logged:   m.logged.Load(),
		Raw:      m.raw.Load(),
		Failed:   m.failed.Load(),
	}
}

func (m *Monitor) log() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	if m.logger == nil {
		return nopLogger{}
	}
	return m.logger
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
