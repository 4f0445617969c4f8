// Package mock provides an in-memory channel for tests and local wiring.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/transports"
)

// Channel implements transports.Channel without any network dependency.
// Connect succeeds immediately; Push injects inbound frames; Sent exposes
// outbound frames for inspection.
type Channel struct {
	mu        sync.Mutex
	state     transports.State
	listeners []transports.StateListener
	recvCh    chan frames.Frame
	sentCh    chan frames.Frame
	dials     int
}

func New() *Channel {
	return &Channel{
		recvCh: make(chan frames.Frame, 256),
		sentCh: make(chan frames.Frame, 256),
	}
}

func (c *Channel) Name() string { return "mock" }

func (c *Channel) Connect(ctx context.Context) error {
	_ = ctx
	c.mu.Lock()
	if c.state != transports.StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.dials++
	c.mu.Unlock()
	c.setState(transports.StateConnecting)
	c.setState(transports.StateConnected)
	return nil
}

func (c *Channel) Disconnect() error {
	c.setState(transports.StateDisconnected)
	return nil
}

func (c *Channel) State() transports.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) AddStateListener(l transports.StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Channel) Send(f frames.Frame) error {
	c.mu.Lock()
	connected := c.state == transports.StateConnected
	c.mu.Unlock()
	if !connected {
		frames.ReleaseAudioFrame(f)
		return nil
	}
	select {
	case c.sentCh <- f:
	default:
		frames.ReleaseAudioFrame(f)
	}
	return nil
}

func (c *Channel) Recv() <-chan frames.Frame { return c.recvCh }

// Push injects an inbound frame into the channel.
func (c *Channel) Push(f frames.Frame) {
	select {
	case c.recvCh <- f:
	default:
	}
}

// Sent exposes outbound frames for inspection.
func (c *Channel) Sent() <-chan frames.Frame { return c.sentCh }

// Dials reports how many underlying connection attempts Connect made.
func (c *Channel) Dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials
}

func (c *Channel) setState(to transports.State) {
	c.mu.Lock()
	if c.state == to {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	listeners := append([]transports.StateListener(nil), c.listeners...)
	c.mu.Unlock()

	ev := transports.StateChange{From: from, To: to, At: time.Now()}
	for _, l := range listeners {
		func() {
			defer func() { _ = recover() }()
			l.OnStateChange(ev)
		}()
	}
	meta := map[string]string{
		frames.MetaStateFrom: from.String(),
		frames.MetaStateTo:   to.String(),
		frames.MetaSource:    "transport",
	}
	c.Push(frames.NewSystemFrame("", time.Now().UnixNano(), "state_change", meta))
}
