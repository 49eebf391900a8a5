package realtime

import (
	"encoding/json"
	"sync"
	"time"

	v1 "huddle/shared/contracts/realtime/v1"
)

// Client represents one connected websocket and is the presence channel for
// its identity.
//
// Send never blocks and the queue is never closed, so relays from other
// goroutines cannot panic on a closing connection; done signals shutdown.
type Client struct {
	ConnID    string
	UserID    string
	SessionID string

	queue chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(connID, userID, sessionID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ConnID:    connID,
		UserID:    userID,
		SessionID: sessionID,
		queue:     make(chan v1.Envelope, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// ID implements presence.Channel.
func (c *Client) ID() string { return c.ConnID }

// Send implements presence.Channel. A full queue or closed client drops the event.
func (c *Client) Send(event string, payload json.RawMessage) bool {
	env, err := newEnvelope(event, payload, time.Now().UTC())
	if err != nil {
		return false
	}
	return c.enqueue(env)
}

func (c *Client) enqueue(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- env:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client goroutines to stop (idempotent). It implements
// presence.Channel.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
