package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// None of the tests in this file need a broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "telemetry-test",
		},
		QoS:       0,
		KeepAlive: 60,
	}
}

// mockLogger records log calls for assertions.
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockLogger) record(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, level+": "+msg)
}

func (m *mockLogger) Info(msg string, _ ...any)  { m.record("INFO", msg) }
func (m *mockLogger) Warn(msg string, _ ...any)  { m.record("WARN", msg) }
func (m *mockLogger) Error(msg string, _ ...any) { m.record("ERROR", msg) }

func (m *mockLogger) contains(s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg == s {
			return true
		}
	}
	return false
}

// recorder is a Handler that records each call as a string.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) OnConnected(code byte)    { r.add(fmt.Sprintf("connected:%d", code)) }
func (r *recorder) OnDisconnected(err error) { r.add(fmt.Sprintf("disconnected:%v", err)) }
func (r *recorder) OnPublishAcked(id uint16, err error) {
	r.add(fmt.Sprintf("acked:%d:%v", id, err))
}
func (r *recorder) OnMessage(topic string, payload []byte) error {
	r.add("message:" + topic + ":" + string(payload))
	return nil
}

// =============================================================================
// Options
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "sensor"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "telemetry-test" {
		t.Errorf("ClientID = %q, want telemetry-test", opts.ClientID)
	}
	if opts.Username != "sensor" {
		t.Errorf("Username = %q, want sensor", opts.Username)
	}
	if opts.KeepAlive != 60 {
		t.Errorf("KeepAlive = %d, want 60", opts.KeepAlive)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false when reconnect is disabled")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry = true, want false")
	}
	if opts.WillEnabled {
		t.Error("WillEnabled = true without configureLWT")
	}
}

func TestBuildClientOptions_TLSAndReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	cfg.KeepAlive = 0
	cfg.Reconnect = config.MQTTReconnectConfig{Enabled: true, InitialDelay: 1, MaxDelay: 30}

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker = %q, want ssl://127.0.0.1:8883", got)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 30*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 30s", opts.MaxReconnectInterval)
	}
	if opts.KeepAlive != int64(defaultKeepAlive/time.Second) {
		t.Errorf("KeepAlive = %d, want default %v", opts.KeepAlive, defaultKeepAlive)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "iot/status/rpi_sensor_001", "telemetry-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "iot/status/rpi_sensor_001" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %s", opts.WillPayload)
	}
}

// =============================================================================
// Topic validation
// =============================================================================

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"iot/sensor/data", false},
		{"a", false},
		{"", true},
		{"iot/+/data", true},
		{"iot/#", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopicName(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTopicName(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("error = %v, want ErrInvalidTopic", err)
			}
		})
	}
}

func TestValidateTopicFilter(t *testing.T) {
	tests := []struct {
		filter  string
		wantErr bool
	}{
		{"iot/sensor/data", false},
		{"iot/+/data", false},
		{"iot/#", false},
		{"#", false},
		{"+/+/+", false},
		{"", true},
		{"iot/#/data", true},
		{"iot/sensor+/data", true},
		{"iot/sensor#", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := ValidateTopicFilter(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTopicFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Publish / Subscribe without a session
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := newClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"wildcard topic", "iot/+", []byte("x"), 0, ErrInvalidTopic},
		{"bad qos", "iot/sensor/data", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "iot/sensor/data", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"not connected", "iot/sensor/data", []byte("x"), 0, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newClient(testConfig())

	if err := c.Subscribe("iot/#/x", 0); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(bad filter) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("iot/#", 3); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("iot/#", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("iot/#") {
		t.Error("failed subscribe must not be tracked")
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := newClient(testConfig())

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("iot/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestZeroClient(t *testing.T) {
	var c Client

	if c.IsConnected() {
		t.Error("IsConnected() = true on zero client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestHealthCheck_CancelledContext(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestMarkPublishing(t *testing.T) {
	c := newClient(testConfig())

	c.MarkPublishing()
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want disconnected", c.State())
	}

	c.setState(StateConnected)
	c.MarkPublishing()
	if c.State() != StatePublishing {
		t.Errorf("State() = %v, want publishing", c.State())
	}
}

// =============================================================================
// Event loop
// =============================================================================

func TestRunLoop_DispatchOrder(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	h := HandlerFuncs{
		Connected: rec.OnConnected,
		Message:   rec.OnMessage,
		PublishAcked: func(id uint16, err error) {
			rec.OnPublishAcked(id, err)
			cancel()
		},
	}

	c.emit(Event{Kind: EventConnected, Code: CodeAccepted})
	c.emit(Event{Kind: EventMessage, Topic: "t", Payload: []byte("a")})
	c.emit(Event{Kind: EventMessage, Topic: "t", Payload: []byte("b")})
	c.emit(Event{Kind: EventPublishAcked, MessageID: 7})

	if err := c.RunLoop(ctx, RunForeground, h); err != nil {
		t.Fatalf("RunLoop() error = %v", err)
	}

	want := []string{"connected:0", "message:t:a", "message:t:b", "acked:7:<nil>"}
	got := rec.snapshot()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestRunLoop_RefusedWithoutFailFast(t *testing.T) {
	c := newClient(testConfig())
	logger := &mockLogger{}
	c.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var codes []byte
	h := HandlerFuncs{
		Connected: func(code byte) { codes = append(codes, code) },
		Message: func(string, []byte) error {
			cancel()
			return nil
		},
	}

	c.emit(Event{Kind: EventConnected, Code: 5})
	c.emit(Event{Kind: EventMessage, Topic: "t"})

	if err := c.RunLoop(ctx, RunForeground, h); err != nil {
		t.Fatalf("RunLoop() error = %v, want nil", err)
	}
	if len(codes) != 1 || codes[0] != 5 {
		t.Errorf("OnConnected codes = %v, want [5]", codes)
	}
	if !logger.contains("ERROR: broker refused connection") {
		t.Error("refused connection was not logged")
	}
}

func TestRunLoop_RefusedWithFailFast(t *testing.T) {
	cfg := testConfig()
	cfg.FailFast = true
	c := newClient(cfg)

	c.emit(Event{Kind: EventConnected, Code: 5})

	err := c.RunLoop(context.Background(), RunForeground, HandlerFuncs{})
	if !errors.Is(err, ErrConnectionRefused) {
		t.Fatalf("RunLoop() error = %v, want ErrConnectionRefused", err)
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
}

func TestRunLoop_HandlerErrorAndPanicContained(t *testing.T) {
	c := newClient(testConfig())
	logger := &mockLogger{}
	c.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []string
	h := HandlerFuncs{
		Message: func(topic string, payload []byte) error {
			switch string(payload) {
			case "panic":
				panic("boom")
			case "error":
				return errors.New("bad payload")
			}
			seen = append(seen, string(payload))
			cancel()
			return nil
		},
	}

	c.emit(Event{Kind: EventMessage, Topic: "t", Payload: []byte("panic")})
	c.emit(Event{Kind: EventMessage, Topic: "t", Payload: []byte("error")})
	c.emit(Event{Kind: EventMessage, Topic: "t", Payload: []byte("ok")})

	if err := c.RunLoop(ctx, RunForeground, h); err != nil {
		t.Fatalf("RunLoop() error = %v", err)
	}
	if len(seen) != 1 || seen[0] != "ok" {
		t.Errorf("seen = %v, want [ok]", seen)
	}
	if !logger.contains("ERROR: panic in event handler") {
		t.Error("panic was not logged")
	}
	if !logger.contains("WARN: message handler error") {
		t.Error("handler error was not logged")
	}
}

func TestRunLoop_Disconnected(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got error
	h := HandlerFuncs{
		Disconnected: func(err error) {
			got = err
			cancel()
		},
	}

	lost := errors.New("EOF")
	c.emit(Event{Kind: EventDisconnected, Err: lost})

	if err := c.RunLoop(ctx, RunForeground, h); err != nil {
		t.Fatalf("RunLoop() error = %v", err)
	}
	if !errors.Is(got, lost) {
		t.Errorf("OnDisconnected err = %v, want %v", got, lost)
	}
}

func TestRunLoop_InvalidArguments(t *testing.T) {
	c := newClient(testConfig())

	if err := c.RunLoop(context.Background(), RunMode(9), HandlerFuncs{}); !errors.Is(err, ErrInvalidRunMode) {
		t.Errorf("RunLoop(bad mode) error = %v, want ErrInvalidRunMode", err)
	}
	if err := c.RunLoop(context.Background(), RunForeground, nil); err == nil {
		t.Error("RunLoop(nil handler) expected error")
	}
}

func TestRunLoop_Background(t *testing.T) {
	c := newClient(testConfig())

	received := make(chan string, 1)
	h := HandlerFuncs{
		Message: func(_ string, payload []byte) error {
			received <- string(payload)
			return nil
		},
	}

	if err := c.RunLoop(context.Background(), RunBackground, h); err != nil {
		t.Fatalf("RunLoop(background) error = %v", err)
	}
	if err := c.RunLoop(context.Background(), RunBackground, h); !errors.Is(err, ErrLoopRunning) {
		t.Errorf("second RunLoop() error = %v, want ErrLoopRunning", err)
	}

	c.emit(Event{Kind: EventMessage, Topic: "t", Payload: []byte("hello")})

	select {
	case got := <-received:
		if got != "hello" {
			t.Errorf("payload = %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background loop did not dispatch")
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	select {
	case <-c.LoopDone():
	default:
		t.Error("LoopDone() not closed after Close")
	}
}

func TestRunLoop_BackgroundFailFast(t *testing.T) {
	cfg := testConfig()
	cfg.FailFast = true
	c := newClient(cfg)

	if err := c.RunLoop(context.Background(), RunBackground, HandlerFuncs{}); err != nil {
		t.Fatalf("RunLoop() error = %v", err)
	}

	c.emit(Event{Kind: EventConnected, Code: 4})

	select {
	case <-c.LoopDone():
	case <-time.After(2 * time.Second):
		t.Fatal("background loop did not stop on refused connect")
	}

	if !errors.Is(c.LoopErr(), ErrConnectionRefused) {
		t.Errorf("LoopErr() = %v, want ErrConnectionRefused", c.LoopErr())
	}
	if err := c.Close(); !errors.Is(err, ErrConnectionRefused) {
		t.Errorf("Close() error = %v, want ErrConnectionRefused", err)
	}
}

func TestConnackCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want byte
	}{
		{"not authorised", packets.ErrorRefusedNotAuthorised, 5},
		{"bad credentials", packets.ErrorRefusedBadUsernameOrPassword, 4},
		{"identifier rejected", fmt.Errorf("connect: %w", packets.ErrorRefusedIDRejected), 2},
		{"network error", fmt.Errorf("%w : %w", packets.ErrorNetworkError, errors.New("dial tcp: refused")), 254},
		{"unknown error", errors.New("something else"), 254},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := connackCode(tt.err); got != tt.want {
				t.Errorf("connackCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleConnectionNotification(t *testing.T) {
	c := newClient(testConfig())

	c.handleConnectionNotification(pahomqtt.ConnectionNotificationConnected{})
	c.handleConnectionNotification(pahomqtt.ConnectionNotificationConnecting{})
	c.handleConnectionNotification(pahomqtt.ConnectionNotificationBrokerFailed{Reason: errors.New("dial")})
	if len(c.events) != 0 {
		t.Fatalf("queued %d events for non-final notifications, want 0", len(c.events))
	}

	c.handleConnectionNotification(pahomqtt.ConnectionNotificationFailed{Reason: packets.ErrorRefusedNotAuthorised})

	select {
	case ev := <-c.events:
		if ev.Kind != EventConnected || ev.Code != 5 {
			t.Errorf("event = %v code %d, want connected code 5", ev.Kind, ev.Code)
		}
		if !errors.Is(ev.Err, packets.ErrorRefusedNotAuthorised) {
			t.Errorf("event Err = %v", ev.Err)
		}
	default:
		t.Fatal("no event queued for a failed connect")
	}
}

func TestRunLoop_FailedConnectNotificationWithFailFast(t *testing.T) {
	cfg := testConfig()
	cfg.FailFast = true
	c := newClient(cfg)
	logger := &mockLogger{}
	c.SetLogger(logger)

	var codes []byte
	h := HandlerFuncs{
		Connected: func(code byte) { codes = append(codes, code) },
	}

	c.handleConnectionNotification(pahomqtt.ConnectionNotificationFailed{Reason: packets.ErrorRefusedBadUsernameOrPassword})

	err := c.RunLoop(context.Background(), RunForeground, h)
	if !errors.Is(err, ErrConnectionRefused) {
		t.Fatalf("RunLoop() error = %v, want ErrConnectionRefused", err)
	}
	if len(codes) != 1 || codes[0] != 4 {
		t.Errorf("OnConnected codes = %v, want [4]", codes)
	}
	if !logger.contains("ERROR: broker refused connection") {
		t.Error("refused connection was not logged")
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v, want failed", c.State())
	}
}

func TestRegisterHandlers_ConnectionNotification(t *testing.T) {
	c := newClient(testConfig())
	opts := buildClientOptions(c.cfg)
	c.registerHandlers(opts)

	if opts.OnConnectionNotification == nil {
		t.Fatal("connection notification handler not registered")
	}
	opts.OnConnectionNotification(nil, pahomqtt.ConnectionNotificationFailed{
		Reason: fmt.Errorf("%w : %w", packets.ErrorNetworkError, errors.New("dial tcp: connection refused")),
	})

	select {
	case ev := <-c.events:
		if ev.Kind != EventConnected || ev.Code != packets.ErrNetworkError {
			t.Errorf("event = %v code %d, want connected code 254", ev.Kind, ev.Code)
		}
	default:
		t.Fatal("no event queued")
	}
}

func TestStrings(t *testing.T) {
	if EventPublishAcked.String() != "publish_acked" {
		t.Errorf("EventPublishAcked = %q", EventPublishAcked.String())
	}
	if StateSubscribed.String() != "subscribed" {
		t.Errorf("StateSubscribed = %q", StateSubscribed.String())
	}
	if RunBackground.String() != "background" {
		t.Errorf("RunBackground = %q", RunBackground.String())
	}
	if !strings.HasPrefix(State(42).String(), "unknown") {
		t.Errorf("State(42) = %q", State(42).String())
	}
}
