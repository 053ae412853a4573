package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish queues a message for the given topic and returns immediately.
//
// Delivery is not awaited. When paho completes the token, an
// EventPublishAcked carrying the message id (zero for QoS 0) and any
// delivery error is queued for the event loop.
//
// Parameters:
//   - topic: Topic name, no wildcards (e.g., "iot/sensor/data")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message
//
// Returns:
//   - error: validation failures or ErrNotConnected; never a delivery error
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopicName(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go c.awaitPublish(token)

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// awaitPublish turns a completed publish token into an EventPublishAcked.
func (c *Client) awaitPublish(token pahomqtt.Token) {
	select {
	case <-token.Done():
	case <-c.closed:
		return
	}

	ev := Event{Kind: EventPublishAcked}
	if pt, ok := token.(*pahomqtt.PublishToken); ok {
		ev.MessageID = pt.MessageID()
	}
	if err := token.Error(); err != nil {
		ev.Err = fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	c.emit(ev)
}
