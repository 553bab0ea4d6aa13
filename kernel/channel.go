package kernel

import (
	"errors"
	"sync"
)

// ---------------------------------------------------------------------------
// Channel: a peered bidirectional message queue
// ---------------------------------------------------------------------------

// ErrPeerClosed is returned by Channel.Write after the peer endpoint's last
// handle has been released.
var ErrPeerClosed = errors.New("peer closed")

// Channel is one endpoint of a bidirectional message pipe. Endpoints are
// created in pairs; each endpoint's RelatedKoid is its peer's koid.
type Channel struct {
	dispatcherBase

	mu       sync.Mutex
	messages [][]byte
	closed   bool

	peer *Channel
}

// NewChannelPair creates two connected channel endpoints.
func NewChannelPair() (*Channel, *Channel) {
	a := &Channel{dispatcherBase: dispatcherBase{koid: AllocKoid()}}
	b := &Channel{dispatcherBase: dispatcherBase{koid: AllocKoid()}}
	a.relatedKoid = b.koid
	b.relatedKoid = a.koid
	a.peer = b
	b.peer = a
	return a, b
}

func (c *Channel) TypeName() string { return "channel" }

// Write enqueues a copy of msg on the peer endpoint.
func (c *Channel) Write(msg []byte) error {
	peer := c.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return ErrPeerClosed
	}
	peer.messages = append(peer.messages, append([]byte(nil), msg...))
	return nil
}

// Read dequeues the oldest pending message. ok is false when the queue is
// empty.
func (c *Channel) Read() (msg []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil, false
	}
	msg = c.messages[0]
	c.messages = c.messages[1:]
	return msg, true
}

// Pending returns the number of queued messages.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// PeerClosed reports whether the peer endpoint has gone away.
func (c *Channel) PeerClosed() bool {
	peer := c.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	return peer.closed
}

// onZeroHandles runs when the last handle to this endpoint is released: the
// endpoint stops accepting messages and drops anything still queued.
func (c *Channel) onZeroHandles() {
	c.mu.Lock()
	c.closed = true
	c.messages = nil
	c.mu.Unlock()
}
