package room

import "github.com/google/uuid"

// OutFrame is one message queued for delivery to a client. Binary frames
// carry the sync/awareness wire protocol; text frames carry JSON events.
type OutFrame struct {
	Binary bool
	Data   []byte
}

// Client is the room-side handle of one live connection. The transport owns
// the socket and drains Out; the room owns registration and only ever writes
// through Push. A slow client drops frames instead of stalling the room.
type Client struct {
	ID   string
	send chan OutFrame
}

func NewClient() *Client {
	return &Client{ID: uuid.NewString(), send: make(chan OutFrame, 64)}
}

// Out is the delivery channel for the transport's write pump. It is closed
// when the room unregisters the client.
func (c *Client) Out() <-chan OutFrame { return c.send }

// Push queues a frame, dropping it if the client's buffer is full.
func (c *Client) Push(f OutFrame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() { close(c.send) }
