package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers interest in a topic filter.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "iot/+/data" matches any device segment
//   - # (multi-level): "iot/#" matches everything under iot/
//
// Messages are not handled here. Each one is queued as an EventMessage and
// reaches Handler.OnMessage through RunLoop, in arrival order.
//
// Subscriptions are not restored by the client after a reconnect with a
// clean session; handlers re-subscribe from OnConnected.
//
// Returns:
//   - error: nil once the broker has acknowledged the SUBSCRIBE
func (c *Client) Subscribe(topic string, qos byte) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.routeMessage)
	timeout := keepAlive(c.cfg)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	c.subscriptions[topic] = qos
	c.subMu.Unlock()

	c.setStateIf(StateConnected, StateSubscribed)

	return nil
}

// Unsubscribe removes a subscription and stops tracking it.
func (c *Client) Unsubscribe(topic string) error {
	if err := ValidateTopicFilter(topic); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Unsubscribe(topic)
	timeout := keepAlive(c.cfg)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: unsubscribe timeout after %v", ErrSubscribeFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: unsubscribe: %w", ErrSubscribeFailed, err)
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	remaining := len(c.subscriptions)
	c.subMu.Unlock()

	if remaining == 0 {
		c.setStateIf(StateSubscribed, StateConnected)
	}

	return nil
}

// routeMessage is the paho callback for every subscription.
func (c *Client) routeMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	c.emit(Event{
		Kind:    EventMessage,
		Topic:   msg.Topic(),
		Payload: msg.Payload(),
	})
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given filter.
//
// Note: This checks only the exact filter string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
