// Package session ties one agent call together: a channel for the wire, a
// capture pipeline for the microphone, the compliance aggregator for alert
// state, and the summary store for the end-of-call record. The session owns
// the event pump that drains the channel and fans frames out to listeners.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekkolabs/sentria/pkg/capture"
	"github.com/ekkolabs/sentria/pkg/compliance"
	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/logging"
	"github.com/ekkolabs/sentria/pkg/metrics"
	"github.com/ekkolabs/sentria/pkg/redact"
	"github.com/ekkolabs/sentria/pkg/summaries"
	"github.com/ekkolabs/sentria/pkg/transports"
)

// Transcript is one segment delivered to listeners. Text has already been
// through redaction for anything the session logs, but listeners receive the
// original text.
type Transcript struct {
	Text   string
	Final  bool
	Source string
	At     time.Time
}

// Listener receives session events. Implementations must not block; a
// panicking listener is recovered and logged, never fatal to the pump.
type Listener interface {
	OnStateChange(ev transports.StateChange)
	OnTranscript(seg Transcript)
	OnCompliance(v compliance.View)
}

type Config struct {
	// URL identifies the call context and is recorded in the summary.
	URL string `mapstructure:"url"`
	// SampleRate is handed to the capture pipeline.
	SampleRate int `mapstructure:"sample_rate"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = "local"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	return c
}

type Session struct {
	id      string
	cfg     Config
	channel transports.Channel
	agg     *compliance.Aggregator
	store   *summaries.Store
	obs     metrics.Observer
	logger  *slog.Logger

	mu          sync.Mutex
	listeners   []Listener
	transcripts []string
	pipeline    *capture.Pipeline

	pumpOnce sync.Once
}

type Option func(*Session)

func WithObserver(obs metrics.Observer) Option {
	return func(s *Session) { s.obs = obs }
}

// WithStore attaches a summary store. Without one, StopStreaming still works
// but no record is persisted.
func WithStore(store *summaries.Store) Option {
	return func(s *Session) { s.store = store }
}

func New(cfg Config, channel transports.Channel, agg *compliance.Aggregator, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg.withDefaults(),
		channel: channel,
		agg:     agg,
		obs:     metrics.NoopObserver{},
		logger:  logging.NewComponentLogger(slog.Default(), "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	channel.AddStateListener(stateForwarder{s})
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Connect opens the channel and starts draining its inbound frames. Repeat
// calls are harmless; the channel enforces its own idempotency.
func (s *Session) Connect(ctx context.Context) error {
	s.pumpOnce.Do(func() { go s.pump() })
	return s.channel.Connect(ctx)
}

func (s *Session) Disconnect() error {
	return s.channel.Disconnect()
}

func (s *Session) State() transports.State {
	return s.channel.State()
}

// StartStreaming acquires the source and begins forwarding encoded audio to
// the channel. Acquisition failures surface synchronously.
func (s *Session) StartStreaming(src capture.Source) error {
	s.mu.Lock()
	if s.pipeline != nil {
		s.mu.Unlock()
		return capture.ErrAlreadyCapturing
	}
	p := capture.New(capture.Config{SampleRate: s.cfg.SampleRate, StreamID: s.id}, src, s.channel)
	// Per-block events arrive at the platform cadence; record one in ten.
	p.SetObserver(metrics.NewSamplingObserver(s.obs, 0.1))
	s.pipeline = p
	s.mu.Unlock()

	if err := p.Start(); err != nil {
		s.mu.Lock()
		s.pipeline = nil
		s.mu.Unlock()
		return err
	}
	s.logger.Info("streaming_started", "session_id", s.id)
	s.record("streaming_start", 1)
	return nil
}

// StopStreaming halts capture and persists the session summary. The summary
// covers every transcript segment seen since the last stop, so a session can
// produce one record per streaming leg.
func (s *Session) StopStreaming() error {
	s.mu.Lock()
	p := s.pipeline
	if p == nil {
		// Not capturing. Accumulated segments stay put for the next stop.
		s.mu.Unlock()
		return capture.ErrNotCapturing
	}
	s.pipeline = nil
	lines := s.transcripts
	s.transcripts = nil
	s.mu.Unlock()
	if err := p.Stop(); err != nil {
		return err
	}
	s.logger.Info("streaming_stopped", "session_id", s.id, "segments", len(lines))
	s.record("streaming_stop", 1)

	if s.store != nil {
		sum := summaries.Build(s.cfg.URL, lines)
		if err := s.store.Append(sum); err != nil {
			s.logger.Error("summary_append_failed", "session_id", s.id, "error", err.Error())
			return err
		}
		s.record("summary_saved", float64(sum.Words))
	}
	return nil
}

func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline != nil
}

func (s *Session) SendFrame(f frames.Frame) error {
	return s.channel.Send(f)
}

// ResetAlerts clears all accumulated compliance state and re-renders an empty
// view for listeners.
func (s *Session) ResetAlerts() {
	s.agg.Reset()
	s.record("alerts_reset", 1)
	s.notifyCompliance(s.agg.View())
}

// EndCall marks the call over, which unlocks closing-step alerts, and tells
// the far end via a control frame.
func (s *Session) EndCall() {
	s.agg.EndCall()
	f := frames.NewControlFrame(s.id, time.Now().UnixNano(), frames.ControlEndCall,
		map[string]string{frames.MetaSessionID: s.id})
	_ = s.channel.Send(f)
	s.record("call_ended", 1)
	s.notifyCompliance(s.agg.View())
}

func (s *Session) ComplianceView() compliance.View {
	return s.agg.View()
}

func (s *Session) Transcripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.transcripts...)
}

func (s *Session) pump() {
	for f := range s.channel.Recv() {
		switch f.Kind() {
		case frames.KindTranscript:
			s.handleTranscript(f.(frames.TranscriptFrame))
		case frames.KindCompliance:
			s.handleCompliance(f.(frames.ComplianceFrame))
		case frames.KindSystem:
			sf := f.(frames.SystemFrame)
			s.logger.Debug("system_frame", "session_id", s.id, "name", sf.Name())
		case frames.KindControl:
			cf := f.(frames.ControlFrame)
			s.logger.Debug("control_frame", "session_id", s.id, "code", string(cf.Code()))
		}
	}
}

func (s *Session) handleTranscript(tf frames.TranscriptFrame) {
	meta := tf.Meta()
	final := meta[frames.MetaIsFinal] != "false"
	seg := Transcript{
		Text:   tf.Text(),
		Final:  final,
		Source: meta[frames.MetaSource],
		At:     time.Now(),
	}
	if final {
		s.mu.Lock()
		s.transcripts = append(s.transcripts, tf.Text())
		s.mu.Unlock()
	}
	s.logger.Debug("transcript_received",
		"session_id", s.id,
		"text", redact.Text(tf.Text()),
		"is_final", final)
	s.record("transcript_segment", 1)

	for _, l := range s.snapshotListeners() {
		s.safeNotify(func() { l.OnTranscript(seg) })
	}
}

func (s *Session) handleCompliance(cf frames.ComplianceFrame) {
	v := s.agg.Apply(cf.Payload())
	s.record("compliance_payload", 1)
	s.notifyCompliance(v)
}

func (s *Session) notifyCompliance(v compliance.View) {
	for _, l := range s.snapshotListeners() {
		s.safeNotify(func() { l.OnCompliance(v) })
	}
}

func (s *Session) snapshotListeners() []Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Listener(nil), s.listeners...)
}

func (s *Session) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("listener_panic", "session_id", s.id, "recovered", r)
		}
	}()
	fn()
}

func (s *Session) record(name string, value float64) {
	s.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  map[string]string{"session_id": s.id},
	})
}

type stateForwarder struct{ s *Session }

func (f stateForwarder) OnStateChange(ev transports.StateChange) {
	f.s.logger.Info("channel_state_changed",
		"session_id", f.s.id,
		"from", ev.From.String(),
		"to", ev.To.String())
	f.s.record("state_change", 1)
	for _, l := range f.s.snapshotListeners() {
		f.s.safeNotify(func() { l.OnStateChange(ev) })
	}
}
