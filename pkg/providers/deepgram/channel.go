// Package deepgram implements a direct speech-to-text channel. When no
// compliance backend is configured, microphone frames stream straight to
// Deepgram and transcripts come back through the same Channel contract the
// backend channel honors. No compliance payloads arrive on this path.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/google/uuid"

	"github.com/ekkolabs/sentria/pkg/errorsx"
	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/logging"
	"github.com/ekkolabs/sentria/pkg/pcm"
	"github.com/ekkolabs/sentria/pkg/transports"
)

type Config struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Language   string `mapstructure:"language"`
	SampleRate int    `mapstructure:"sample_rate"`
	Interim    bool   `mapstructure:"interim"`
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	return c
}

type Channel struct {
	cfg      Config
	logger   *slog.Logger
	streamID string
	pts      *frames.PTSGen
	recvCh   chan frames.Frame

	mu         sync.Mutex
	state      transports.State
	gen        uint64
	listeners  []transports.StateListener
	dgClient   *client.WSCallback
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	cancel     context.CancelFunc
	metaLogged bool
}

func New(cfg Config) *Channel {
	return &Channel{
		cfg:      cfg.withDefaults(),
		logger:   logging.NewComponentLogger(slog.Default(), "deepgram_channel"),
		streamID: uuid.NewString(),
		pts:      frames.NewPTSGen(),
		recvCh:   make(chan frames.Frame, 256),
	}
}

func (c *Channel) Name() string { return "deepgram" }

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
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	clientOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          c.cfg.Model,
		Language:       c.cfg.Language,
		Encoding:       "linear16",
		SampleRate:     c.cfg.SampleRate,
		InterimResults: c.cfg.Interim,
		SmartFormat:    true,
	}

	cb := &callback{parent: c, gen: gen}
	dgClient, err := client.NewWSUsingCallback(ctx, c.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		c.logger.Error("deepgram_client_create_error", "error", err.Error(), "stream_id", c.streamID)
		cancel()
		c.transition(gen, transports.StateDisconnected)
		return
	}
	if connected := dgClient.Connect(); !connected {
		c.logger.Error("deepgram_connect_failed",
			"reason_code", string(errorsx.ReasonSTTConnect),
			"stream_id", c.streamID)
		cancel()
		c.transition(gen, transports.StateDisconnected)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != transports.StateConnecting {
		c.mu.Unlock()
		cancel()
		dgClient.Stop()
		return
	}
	c.dgClient = dgClient
	c.pipeReader = pr
	c.pipeWriter = pw
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		if err := dgClient.Stream(pr); err != nil && ctx.Err() == nil {
			c.logger.Error("deepgram_stream_error", "error", err.Error(), "stream_id", c.streamID)
		}
	}()
	c.transition(gen, transports.StateConnected)
	c.logger.Info("deepgram_connected", "model", c.cfg.Model, "stream_id", c.streamID)
}

func (c *Channel) Disconnect() error {
	c.mu.Lock()
	c.gen++
	dgClient := c.dgClient
	pw := c.pipeWriter
	cancel := c.cancel
	c.dgClient = nil
	c.pipeReader = nil
	c.pipeWriter = nil
	c.cancel = nil
	prev := c.state
	c.state = transports.StateDisconnected
	listeners := append([]transports.StateListener(nil), c.listeners...)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pw != nil {
		_ = pw.Close()
	}
	if dgClient != nil {
		dgClient.Stop()
	}
	if prev != transports.StateDisconnected {
		c.notify(listeners, transports.StateChange{From: prev, To: transports.StateDisconnected, At: time.Now()})
		c.pushStateFrame(prev, transports.StateDisconnected)
	}
	return nil
}

// Send strips the wire header and writes raw linear16 PCM into the stream.
// Outside StateConnected frames are dropped without error.
func (c *Channel) Send(f frames.Frame) error {
	if f.Kind() != frames.KindAudio {
		return nil
	}
	af := f.(frames.AudioFrame)
	c.mu.Lock()
	pw := c.pipeWriter
	connected := c.state == transports.StateConnected
	c.mu.Unlock()
	if !connected || pw == nil {
		frames.ReleaseAudioFrame(af)
		return nil
	}
	payload := af.RawPayload()
	if len(payload) > pcm.HeaderSize {
		if _, err := pw.Write(payload[pcm.HeaderSize:]); err != nil {
			c.logger.Warn("deepgram_send_failed",
				"reason_code", string(errorsx.ReasonSTTSend),
				"error", err.Error(),
				"stream_id", c.streamID)
		}
	}
	frames.ReleaseAudioFrame(af)
	return nil
}

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

	c.notify(listeners, transports.StateChange{From: from, To: to, At: time.Now()})
	c.pushStateFrame(from, to)
}

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
		c.logger.Warn("deepgram_recv_channel_full", "stream_id", c.streamID)
	}
}

type callback struct {
	parent *Channel
	gen    uint64
}

func (cb *callback) Open(or *msginterfaces.OpenResponse) error {
	cb.parent.logger.Info("deepgram_connection_opened", "stream_id", cb.parent.streamID)
	return nil
}

func (cb *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal
	meta := map[string]string{
		frames.MetaSource:  "stt",
		frames.MetaIsFinal: fmt.Sprintf("%t", isFinal),
	}
	f := frames.NewTranscriptFrame(cb.parent.streamID, time.Now().UnixNano(), transcript, meta)
	cb.parent.deliver(cb.gen, f)
	return nil
}

func (cb *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	cb.parent.mu.Lock()
	logged := cb.parent.metaLogged
	cb.parent.metaLogged = true
	cb.parent.mu.Unlock()
	if !logged {
		cb.parent.logger.Info("deepgram_metadata_received",
			"stream_id", cb.parent.streamID,
			"request_id", md.RequestID)
	}
	return nil
}

func (cb *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (cb *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	meta := map[string]string{frames.MetaSource: "stt", frames.MetaReason: "utterance_end"}
	f := frames.NewControlFrame(cb.parent.streamID, time.Now().UnixNano(), frames.ControlFlush, meta)
	cb.parent.deliver(cb.gen, f)
	return nil
}

func (cb *callback) Close(cr *msginterfaces.CloseResponse) error {
	cb.parent.logger.Info("deepgram_connection_closed", "stream_id", cb.parent.streamID)
	cb.parent.transition(cb.gen, transports.StateDisconnected)
	return nil
}

func (cb *callback) Error(er *msginterfaces.ErrorResponse) error {
	// Collapsed into the disconnected transition driven by Close.
	cb.parent.logger.Error("deepgram_error",
		"stream_id", cb.parent.streamID,
		"error_code", er.ErrCode,
		"error_message", er.ErrMsg)
	return nil
}

func (cb *callback) UnhandledEvent(byData []byte) error {
	cb.parent.logger.Debug("deepgram_unhandled_event", "stream_id", cb.parent.streamID)
	return nil
}

var _ transports.Channel = (*Channel)(nil)
