package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails,
	// either because the broker is unreachable or because it rejected the session.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionRefused is returned by the event loop when a connect event
	// carries a non-zero result code and fail-fast is enabled.
	ErrConnectionRefused = errors.New("mqtt: connection refused by broker")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or malformed topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidRunMode is returned by RunLoop for an unknown mode.
	ErrInvalidRunMode = errors.New("mqtt: invalid run mode")

	// ErrLoopRunning is returned when a background loop is already active.
	ErrLoopRunning = errors.New("mqtt: event loop already running")
)
