package session

import (
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"drawsync/metrics"
)

// Connection states. A connection is CONNECTING until it joins a session,
// OPEN while it is a broadcast target, and CLOSED once it left. CLOSED is
// terminal.
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosed
)

// Client is the outbound half of one live connection. The transport owns the
// socket; the session only ever enqueues marshaled frames onto the send
// buffer, so a stalled connection can never block the fan-out.
type Client struct {
	ID    string
	send  chan []byte
	state atomic.Int32
}

// NewClient returns an unregistered client with the given send buffer depth.
func NewClient(buffer int) *Client {
	return &Client{
		ID:   ulid.Make().String(),
		send: make(chan []byte, buffer),
	}
}

// Outbound is the channel the transport's write pump drains. It is closed
// when the client leaves its session.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// State returns the connection state (StateConnecting, StateOpen,
// StateClosed).
func (c *Client) State() int32 {
	return c.state.Load()
}

// enqueue attempts a non-blocking send. A full buffer drops the frame; one
// stalled socket must not delay delivery to the rest of the session.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
		metrics.BroadcastsDelivered.Inc()
	default:
		metrics.BroadcastsDropped.Inc()
	}
}
