package mqtt

import (
	"context"
	"errors"
	"fmt"
)

// RunMode selects how RunLoop drives the event loop.
type RunMode int

const (
	// RunForeground blocks the caller until the context is cancelled,
	// the client is closed, or fail-fast terminates the loop.
	RunForeground RunMode = iota

	// RunBackground starts the loop on its own goroutine and returns.
	// Close stops it before disconnecting.
	RunBackground
)

// String returns the mode name.
func (m RunMode) String() string {
	switch m {
	case RunForeground:
		return "foreground"
	case RunBackground:
		return "background"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// RunLoop dispatches queued events to h, one at a time, in arrival order.
//
// A panic or error raised by a handler is logged and the loop continues.
// The only error that ends a running loop is a refused connect result
// while mqtt.fail_fast is enabled, reported as ErrConnectionRefused.
//
// Returns:
//   - RunForeground: nil after ctx is cancelled or Close, or the fail-fast error
//   - RunBackground: nil once started, ErrLoopRunning if a loop is active
func (c *Client) RunLoop(ctx context.Context, mode RunMode, h Handler) error {
	if h == nil {
		return errors.New("mqtt: handler cannot be nil")
	}

	switch mode {
	case RunForeground:
		return c.runLoop(ctx, h)
	case RunBackground:
		return c.startBackground(ctx, h)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRunMode, int(mode))
	}
}

func (c *Client) startBackground(ctx context.Context, h Handler) error {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loopDone != nil {
		select {
		case <-c.loopDone:
		default:
			return ErrLoopRunning
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.loopCancel = cancel
	c.loopDone = done
	c.loopErr = nil

	go func() {
		defer close(done)
		defer cancel()

		err := c.runLoop(loopCtx, h)

		c.loopMu.Lock()
		c.loopErr = err
		c.loopMu.Unlock()
	}()

	return nil
}

// LoopDone returns a channel closed when the background loop exits,
// or nil if no background loop was started.
func (c *Client) LoopDone() <-chan struct{} {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.loopDone
}

// LoopErr returns the error that ended the background loop, if any.
func (c *Client) LoopErr() error {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.loopErr
}

// stopLoop cancels a background loop and waits for it to exit.
func (c *Client) stopLoop() error {
	c.loopMu.Lock()
	cancel, done := c.loopCancel, c.loopDone
	c.loopMu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-done

	return c.LoopErr()
}

func (c *Client) runLoop(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closed:
			return nil
		case ev := <-c.events:
			c.dispatch(h, ev)

			if ev.Kind == EventConnected && ev.Code != CodeAccepted {
				if logger := c.getLogger(); logger != nil {
					logger.Error("broker refused connection",
						"broker", brokerURL(c.cfg),
						"code", ev.Code,
						"error", ev.Err,
						"fail_fast", c.cfg.FailFast,
					)
				}
				if c.cfg.FailFast {
					c.setState(StateFailed)
					return fmt.Errorf("%w: code %d", ErrConnectionRefused, ev.Code)
				}
			}
		}
	}
}

// dispatch invokes the handler method for one event.
// Panics are recovered and logged so one bad message cannot stop the loop.
func (c *Client) dispatch(h Handler, ev Event) {
	logger := c.getLogger()

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("panic in event handler",
				"event", ev.Kind.String(),
				"topic", ev.Topic,
				"panic", r,
			)
		}
	}()

	switch ev.Kind {
	case EventConnected:
		h.OnConnected(ev.Code)

	case EventDisconnected:
		if logger != nil {
			logger.Warn("connection lost", "broker", brokerURL(c.cfg), "error", ev.Err)
		}
		h.OnDisconnected(ev.Err)

	case EventReconnecting:
		if logger != nil {
			logger.Info("reconnecting", "broker", brokerURL(c.cfg))
		}

	case EventPublishAcked:
		h.OnPublishAcked(ev.MessageID, ev.Err)

	case EventMessage:
		if err := h.OnMessage(ev.Topic, ev.Payload); err != nil && logger != nil {
			logger.Warn("message handler error",
				"topic", ev.Topic,
				"error", err,
			)
		}
	}
}
