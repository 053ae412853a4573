// Package mqtt provides the MQTT session used by the telemetry publisher
// and monitor.
//
// This package manages:
//   - A single connect attempt to the broker, with optional auto-reconnect
//   - Fire-and-forget publishing with asynchronous acknowledgement events
//   - Topic subscriptions with wildcard validation
//   - Last Will and Testament (LWT) on an optional status topic
//   - An event loop that runs in the foreground or in the background
//
// # Event Model
//
// paho callbacks are converted into Events (connected, disconnected,
// reconnecting, publish acknowledged, message) on a buffered channel.
// RunLoop drains the channel and calls the matching Handler method.
// Handlers therefore never run on paho's internal goroutines, and a
// handler error or panic only affects the event that caused it.
//
//	paho callbacks → events chan → RunLoop → Handler
//
// # Lifecycle
//
//	Disconnected → Connecting → Connected → Subscribed | Publishing → Disconnecting → Disconnected
//
// Failed is terminal. It is entered when the initial connect fails, or
// when a refused connect event arrives while fail-fast is enabled.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	handler := mqtt.HandlerFuncs{
//	    Connected: func(code byte) {
//	        if code == mqtt.CodeAccepted {
//	            _ = client.Subscribe("iot/sensor/data", 0)
//	        }
//	    },
//	    Message: func(topic string, payload []byte) error {
//	        fmt.Printf("%s: %s\n", topic, payload)
//	        return nil
//	    },
//	}
//	return client.RunLoop(ctx, mqtt.RunForeground, handler)
package mqtt
