package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

// eventBufferSize bounds the event channel. paho's router goroutine blocks
// once it is full, which pauses delivery instead of dropping messages.
const eventBufferSize = 256

// Client wraps paho.mqtt.golang with an explicit event channel.
//
// paho callbacks never run application code directly. They are turned into
// Events and queued; RunLoop drains the queue and dispatches each event to
// a Handler, either on the caller's goroutine or on a background one.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions tracks active subscriptions by topic filter.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	state   State
	stateMu sync.RWMutex

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once

	// Background loop bookkeeping (RunBackground only).
	loopMu     sync.Mutex
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	loopErr    error

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Connect establishes a session with the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, keepalive, TLS)
//  2. Configures Last Will and Testament when a status topic is set
//  3. Attempts the connection once, without retry
//
// The connect result is also queued as an EventConnected so handlers see
// it before any subscription or message event.
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker is unreachable or refuses the session
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	if cfg.StatusTopic != "" {
		configureLWT(opts, cfg.StatusTopic, cfg.Broker.ClientID)
	}

	c := newClient(cfg)
	c.options = opts

	c.registerHandlers(opts)

	c.setState(StateConnecting)
	c.client = pahomqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout(cfg)) {
		c.setState(StateFailed)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout(cfg))
	}
	if err := token.Error(); err != nil {
		c.setState(StateFailed)
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != CodeAccepted {
			return nil, fmt.Errorf("%w: broker returned code %d: %w", ErrConnectionFailed, ct.ReturnCode(), err)
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously and may not have executed
	// yet, so the state is set here to make IsConnected() true on return.
	c.setStateIf(StateConnecting, StateConnected)

	return c, nil
}

// registerHandlers routes paho's session callbacks into the event channel.
func (c *Client) registerHandlers(opts *pahomqtt.ClientOptions) {
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetConnectionNotificationHandler(func(_ pahomqtt.Client, n pahomqtt.ConnectionNotification) {
		c.handleConnectionNotification(n)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.setState(StateConnecting)
		c.emit(Event{Kind: EventReconnecting})
	})
}

// newClient allocates the bookkeeping shared by Connect and tests.
func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		subscriptions: make(map[string]byte),
		events:        make(chan Event, eventBufferSize),
		closed:        make(chan struct{}),
	}
}

// handleConnect is called by paho when a session is established.
// Connect may already have recorded the session, and a role may have moved
// it on to Subscribed or Publishing, so an active state is left alone.
func (c *Client) handleConnect() {
	c.stateMu.Lock()
	if !c.state.active() {
		c.state = StateConnected
	}
	c.stateMu.Unlock()

	if c.cfg.StatusTopic != "" {
		c.client.Publish(c.cfg.StatusTopic, byte(c.cfg.QoS), true, buildOnlinePayload(c.cfg.Broker.ClientID))
	}

	c.emit(Event{Kind: EventConnected, Code: CodeAccepted})
}

// handleConnectionNotification turns a failed connect attempt into an
// EventConnected carrying the CONNACK return code. paho reports accepted
// sessions through the OnConnect handler, so only failures are handled here.
//
// Per-broker failures are followed by a single ConnectionNotificationFailed
// for the attempt, which is the one queued.
func (c *Client) handleConnectionNotification(n pahomqtt.ConnectionNotification) {
	failed, ok := n.(pahomqtt.ConnectionNotificationFailed)
	if !ok {
		return
	}
	c.emit(Event{Kind: EventConnected, Code: connackCode(failed.Reason), Err: failed.Reason})
}

// connackCode maps a paho connect error back to its CONNACK return code.
// Errors that carry no code are reported as a network error.
func connackCode(err error) byte {
	for code, connErr := range packets.ConnErrors {
		if connErr != nil && errors.Is(err, connErr) {
			return code
		}
	}
	return packets.ErrNetworkError
}

// handleDisconnect is called by paho when an established session is lost.
func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)
	c.emit(Event{Kind: EventDisconnected, Err: err})
}

// emit queues an event, blocking while the buffer is full.
// Events produced after Close are dropped.
func (c *Client) emit(ev Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

// Close stops the background loop (if any) and disconnects from the broker.
//
// It performs:
//  1. Cancels and waits for a RunBackground loop
//  2. Publishes a graceful offline status when a status topic is set
//  3. Disconnects with a quiesce period for in-flight messages
//
// Close is safe to call more than once and on a zero Client.
func (c *Client) Close() error {
	loopErr := c.stopLoop()

	if c.client == nil {
		return nil
	}

	wasConnected := c.IsConnected()
	c.setState(StateDisconnecting)

	if wasConnected && c.cfg.StatusTopic != "" {
		token := c.client.Publish(c.cfg.StatusTopic, byte(c.cfg.QoS), true, buildOfflinePayload(c.cfg.Broker.ClientID))
		token.WaitTimeout(defaultPublishTimeout)
	}

	// Release paho callbacks blocked on a full event buffer before
	// Disconnect waits for them.
	c.closeOnce.Do(func() {
		if c.closed != nil {
			close(c.closed)
		}
	})

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)

	return loopErr
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected reports whether the session is live.
func (c *Client) IsConnected() bool {
	return c.State().active() && c.client != nil && c.client.IsConnected()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// MarkPublishing records that the publisher role is ready to send.
// It has no effect unless the session is connected.
func (c *Client) MarkPublishing() {
	c.setStateIf(StateConnected, StatePublishing)
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// setStateIf moves to next only when the current state is from.
func (c *Client) setStateIf(from, next State) {
	c.stateMu.Lock()
	if c.state == from {
		c.state = next
	}
	c.stateMu.Unlock()
}

// Address returns the broker URL the client was configured with.
func (c *Client) Address() string {
	return brokerURL(c.cfg)
}

// SetLogger sets a logger for loop, handler error and panic logging.
// If not set, handler errors are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
