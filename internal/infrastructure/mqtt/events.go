package mqtt

import "fmt"

// CodeAccepted is the CONNACK return code for an accepted session.
const CodeAccepted byte = 0

// EventKind enumerates the session events delivered to a Handler.
type EventKind int

const (
	// EventConnected is emitted for every connect result, including each
	// failed reconnect attempt. Code is CodeAccepted on success, the
	// CONNACK return code on refusal and 254 for network errors.
	EventConnected EventKind = iota + 1

	// EventDisconnected is emitted when an established session is lost.
	EventDisconnected

	// EventReconnecting is emitted when auto-reconnect starts a new attempt.
	EventReconnecting

	// EventPublishAcked is emitted when a publish token completes.
	EventPublishAcked

	// EventMessage is emitted for every message received on a subscription.
	EventMessage
)

// String returns the event name used in log records.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnecting:
		return "reconnecting"
	case EventPublishAcked:
		return "publish_acked"
	case EventMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one entry on the client's event channel.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Code is the connect result (EventConnected).
	Code byte

	// Err is the disconnect reason (EventDisconnected), the publish
	// failure (EventPublishAcked) or the refusal reason (EventConnected
	// with a non-zero Code).
	Err error

	// MessageID identifies the acknowledged publish (EventPublishAcked).
	// Zero for QoS 0 publishes.
	MessageID uint16

	// Topic and Payload carry a received message (EventMessage).
	Topic   string
	Payload []byte
}

// Handler receives dispatched session events.
//
// All methods are invoked from the event loop goroutine, one at a time,
// in the order the events were produced.
type Handler interface {
	OnConnected(code byte)
	OnDisconnected(err error)
	OnPublishAcked(messageID uint16, err error)

	// OnMessage handles one received message. A returned error is logged
	// by the client and does not stop the loop.
	OnMessage(topic string, payload []byte) error
}

// HandlerFuncs adapts optional functions to the Handler interface.
// Unset hooks do nothing.
type HandlerFuncs struct {
	Connected    func(code byte)
	Disconnected func(err error)
	PublishAcked func(messageID uint16, err error)
	Message      func(topic string, payload []byte) error
}

// OnConnected implements Handler.
func (f HandlerFuncs) OnConnected(code byte) {
	if f.Connected != nil {
		f.Connected(code)
	}
}

// OnDisconnected implements Handler.
func (f HandlerFuncs) OnDisconnected(err error) {
	if f.Disconnected != nil {
		f.Disconnected(err)
	}
}

// OnPublishAcked implements Handler.
func (f HandlerFuncs) OnPublishAcked(messageID uint16, err error) {
	if f.PublishAcked != nil {
		f.PublishAcked(messageID, err)
	}
}

// OnMessage implements Handler.
func (f HandlerFuncs) OnMessage(topic string, payload []byte) error {
	if f.Message != nil {
		return f.Message(topic, payload)
	}
	return nil
}

// State is the session lifecycle state.
//
//	Disconnected → Connecting → Connected → (Subscribed | Publishing) → Disconnecting → Disconnected
//
// Failed is terminal and entered when the initial connect fails.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StatePublishing
	StateDisconnecting
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StatePublishing:
		return "publishing"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// active reports whether the state has a live session.
func (s State) active() bool {
	return s == StateConnected || s == StateSubscribed || s == StatePublishing
}
