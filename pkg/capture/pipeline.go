package capture

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ekkolabs/sentria/pkg/errorsx"
	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/logging"
	"github.com/ekkolabs/sentria/pkg/metrics"
	"github.com/ekkolabs/sentria/pkg/pcm"
)

// FrameSink receives encoded audio frames. Satisfied by transports.Channel.
type FrameSink interface {
	Send(f frames.Frame) error
}

type Config struct {
	SampleRate int    `mapstructure:"sample_rate"`
	StreamID   string `mapstructure:"-"`
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	return c
}

// Pipeline frames each delivered audio block immediately and hands it to the
// sink. There is no buffering and no backpressure: a block the sink cannot
// take is dropped, never queued, so capture never blocks on network I/O.
type Pipeline struct {
	cfg     Config
	src     Source
	sink    FrameSink
	pts     *frames.PTSGen
	logger  *slog.Logger
	obs     metrics.Observer
	running atomic.Bool
	stopped atomic.Bool
}

func New(cfg Config, src Source, sink FrameSink) *Pipeline {
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		src:    src,
		sink:   sink,
		pts:    frames.NewPTSGen(),
		logger: logging.NewComponentLogger(slog.Default(), "capture_pipeline"),
	}
}

func (p *Pipeline) SetObserver(obs metrics.Observer) { p.obs = obs }

// Start acquires the source. Acquisition failure is synchronous and the
// pipeline never begins delivering.
func (p *Pipeline) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyCapturing
	}
	p.stopped.Store(false)
	if err := p.src.Start(p.deliver); err != nil {
		p.running.Store(false)
		return errorsx.Wrap(err, errorsx.ReasonDeviceAcquire)
	}
	p.logger.Info("capture_started", "sample_rate", p.cfg.SampleRate, "stream_id", p.cfg.StreamID)
	return nil
}

// Stop releases the source. From the caller's perspective teardown is
// immediate: trailing blocks the platform still delivers are discarded.
func (p *Pipeline) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	p.stopped.Store(true)
	err := p.src.Stop()
	p.logger.Info("capture_stopped", "stream_id", p.cfg.StreamID)
	return err
}

func (p *Pipeline) Running() bool { return p.running.Load() }

func (p *Pipeline) deliver(block []float32) {
	if p.stopped.Load() || !p.running.Load() {
		return
	}
	payload := pcm.Encode(block, uint32(p.cfg.SampleRate))
	meta := map[string]string{frames.MetaSource: "capture"}
	af := frames.NewAudioFrameFromPool(p.cfg.StreamID, p.pts.Next(p.cfg.StreamID), payload, p.cfg.SampleRate, pcm.Channels, meta)
	_ = p.sink.Send(af)
	p.record("audio_block", float64(len(block)))
}

func (p *Pipeline) record(name string, value float64) {
	if p.obs == nil {
		return
	}
	p.obs.RecordEvent(metrics.MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  map[string]string{"stream_id": p.cfg.StreamID},
	})
}
