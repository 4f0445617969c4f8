// Package backend implements the websocket channel to the speech-to-text /
// compliance backend. Outbound traffic is binary PCM frames; inbound traffic
// is UTF-8 text decoded once at this boundary into typed frames.
package backend

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/logging"
	"github.com/ekkolabs/sentria/pkg/metrics"
	"github.com/ekkolabs/sentria/pkg/transports"
)

type Config struct {
	URL           string `mapstructure:"url"`
	DialTimeoutMS int    `mapstructure:"dial_timeout_ms"`
	WriteQueue    int    `mapstructure:"write_queue"`
	RecvBuffer    int    `mapstructure:"recv_buffer"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = "ws://localhost:8080/ws/agent-audio"
	}
	if c.DialTimeoutMS <= 0 {
		c.DialTimeoutMS = 10000
	}
	if c.WriteQueue <= 0 {
		c.WriteQueue = 256
	}
	if c.RecvBuffer <= 0 {
		c.RecvBuffer = 512
	}
	return c
}

// Channel is a client-side websocket channel. It is the single writer of its
// connection state; consumers observe transitions but never drive them.
type Channel struct {
	cfg      Config
	logger   *slog.Logger
	streamID string
	pts      *frames.PTSGen
	recvCh   chan frames.Frame
	obs      metrics.Observer

	mu        sync.Mutex
	state     transports.State
	sess      *session
	gen       uint64
	listeners []transports.StateListener
}

func New(cfg Config) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(slog.Default(), "backend_channel"),
		streamID: uuid.NewString(),
		pts:      frames.NewPTSGen(),
		recvCh:   make(chan frames.Frame, cfg.RecvBuffer),
	}
}

func (c *Channel) Name() string { return "backend" }

func (c *Channel) StreamID() string { return c.streamID }

func (c *Channel) SetObserver(obs metrics.Observer) { c.obs = obs }

func (c *Channel) Recv() <-chan frames.Frame { return c.recvCh }

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

// Connect starts one dial attempt. While connecting or connected it is a
// no-op, so double-connect never opens a second socket.
func (c *Channel) Connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.state != transports.StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	c.transition(gen, transports.StateConnecting)
	go c.dial(ctx, gen)
	return nil
}

func (c *Channel) dial(ctx context.Context, gen uint64) {
	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(c.cfg.DialTimeoutMS) * time.Millisecond,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn("backend_dial_failed", "url", c.cfg.URL, "error", err.Error())
		c.transition(gen, transports.StateDisconnected)
		return
	}

	sess := &session{
		conn:   conn,
		sendCh: make(chan frames.AudioFrame, c.cfg.WriteQueue),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	if c.gen != gen || c.state != transports.StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.sess = sess
	c.mu.Unlock()

	go sess.writeLoop()
	go c.readLoop(sess, gen)
	c.transition(gen, transports.StateConnected)
	c.logger.Info("backend_connected", "url", c.cfg.URL, "stream_id", c.streamID)
}

// Disconnect tears the connection down and lands on StateDisconnected.
// Events still in flight from the old connection are discarded.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	c.gen++
	sess := c.sess
	c.sess = nil
	prev := c.state
	c.state = transports.StateDisconnected
	listeners := append([]transports.StateListener(nil), c.listeners...)
	c.mu.Unlock()

	if sess != nil {
		_ = sess.close()
	}
	if prev != transports.StateDisconnected {
		c.notify(listeners, transports.StateChange{From: prev, To: transports.StateDisconnected, At: time.Now()})
		c.pushStateFrame(prev, transports.StateDisconnected)
	}
	return nil
}

// Send forwards one audio frame. Anything but audio, and anything sent while
// not connected, is dropped without error.
func (c *Channel) Send(f frames.Frame) error {
	if f.Kind() != frames.KindAudio {
		return nil
	}
	af := f.(frames.AudioFrame)
	c.mu.Lock()
	sess := c.sess
	connected := c.state == transports.StateConnected
	c.mu.Unlock()
	if !connected || sess == nil {
		frames.ReleaseAudioFrame(af)
		return nil
	}
	if !sess.enqueue(af) {
		frames.ReleaseAudioFrame(af)
		c.record("frame_send_drop", 1, nil)
	}
	return nil
}

func (c *Channel) readLoop(sess *session, gen uint64) {
	for {
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			break
		}
		f := decodeInbound(c.streamID, c.pts.Next(c.streamID), msg)
		c.deliver(gen, f)
	}
	// Error and remote close collapse into the same disconnected transition.
	c.mu.Lock()
	if c.gen == gen && c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
	_ = sess.close()
	c.transition(gen, transports.StateDisconnected)
}

func (c *Channel) deliver(gen uint64, f frames.Frame) {
	c.mu.Lock()
	stale := c.gen != gen
	c.mu.Unlock()
	if stale {
		return
	}
	select {
	case c.recvCh <- f:
	default:
	}
}

// transition moves to the target state if gen is still current, then
// notifies listeners and pushes a state_change system frame. Repeated
// transitions to the current state are swallowed.
func (c *Channel) transition(gen uint64, to transports.State) {
	c.mu.Lock()
	if c.gen != gen || c.state == to {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.state = to
	listeners := append([]transports.StateListener(nil), c.listeners...)
	c.mu.Unlock()

	c.record("transport_state", float64(to), map[string]string{"from": from.String(), "to": to.String()})
	c.notify(listeners, transports.StateChange{From: from, To: to, At: time.Now()})
	c.pushStateFrame(from, to)
}

// notify is best-effort: a panicking listener never takes the channel down.
func (c *Channel) notify(listeners []transports.StateListener, ev transports.StateChange) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn("state_listener_panic", "recovered", r)
				}
			}()
			l.OnStateChange(ev)
		}()
	}
}

func (c *Channel) pushStateFrame(from, to transports.State) {
	meta := map[string]string{
		frames.MetaStateFrom: from.String(),
		frames.MetaStateTo:   to.String(),
		frames.MetaSource:    "transport",
	}
	f := frames.NewSystemFrame(c.streamID, c.pts.Next(c.streamID), "state_change", meta)
	select {
	case c.recvCh <- f:
	default:
	}
}

func (c *Channel) record(name string, value float64, tags map[string]string) {
	if c.obs == nil {
		return
	}
	c.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

type session struct {
	conn   *websocket.Conn
	sendCh chan frames.AudioFrame
	done   chan struct{}
	closed atomic.Bool
}

// enqueue drops instead of blocking. sendCh is never closed, so a
// concurrent close() can at worst make this return false.
func (s *session) enqueue(af frames.AudioFrame) bool {
	select {
	case s.sendCh <- af:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case af := <-s.sendCh:
			err := s.conn.WriteMessage(websocket.BinaryMessage, af.RawPayload())
			frames.ReleaseAudioFrame(af)
			if err != nil {
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			for {
				select {
				case af := <-s.sendCh:
					frames.ReleaseAudioFrame(af)
				default:
					return
				}
			}
		}
	}
}

func (s *session) close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.done)
	}
	return s.conn.Close()
}
