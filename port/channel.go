package port

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wippyai/portflow/errors"
	"github.com/wippyai/portflow/packet"
)

// Channel is a named, unbounded, single-producer stream of packets. It is
// created closed; Open installs the producer and hands out the consumer.
// The channel closes when Close is called or a Done packet is sent.
type Channel struct {
	q      *queue[packet.Wrapper]
	name   string
	mu     sync.Mutex
	sent   atomic.Int64
	opened bool
}

// NewChannel creates a closed channel for the given port.
func NewChannel(name string) *Channel {
	return &Channel{name: name}
}

func (c *Channel) Name() string {
	return c.name
}

// Open makes the channel writable and returns its consumer. A channel can
// be opened once.
func (c *Channel) Open() (*Receiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened {
		return nil, errors.New(errors.PhasePort, errors.KindInvalidInput).
			Port(c.name).
			Detail("channel already opened").
			Build()
	}
	c.opened = true
	c.q = newQueue[packet.Wrapper]()
	return &Receiver{name: c.name, q: c.q}, nil
}

// Send enqueues p tagged with the channel's port. Sending Done closes the
// channel after the packet is queued.
func (c *Channel) Send(p packet.Packet) error {
	c.mu.Lock()
	q := c.q
	c.mu.Unlock()
	if q == nil || !q.push(packet.NewWrapper(c.name, p)) {
		return errors.ChannelClosed(c.name)
	}
	c.sent.Add(1)
	if p.IsDone() {
		q.close()
	}
	return nil
}

// Sent returns how many packets were accepted, Done included.
func (c *Channel) Sent() int {
	return int(c.sent.Load())
}

// Close drops the producer side. Packets already sent stay readable.
func (c *Channel) Close() {
	c.mu.Lock()
	q := c.q
	c.mu.Unlock()
	if q != nil {
		q.close()
	}
}

// IsClosed reports whether sends would fail.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	q := c.q
	c.mu.Unlock()
	return q == nil || q.isClosed()
}

// Receiver is the consumer side of a Channel.
type Receiver struct {
	q    *queue[packet.Wrapper]
	name string
}

func (r *Receiver) Name() string {
	return r.name
}

// Recv returns the next wrapper. ok is false once the producer has closed
// and every packet has been read.
func (r *Receiver) Recv(ctx context.Context) (packet.Wrapper, bool, error) {
	return r.q.pop(ctx)
}

// Close abandons the channel. The producer's next send fails with
// channel_closed.
func (r *Receiver) Close() {
	r.q.drop()
}
