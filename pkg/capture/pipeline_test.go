package capture

import (
	"errors"
	"sync"
	"testing"

	"github.com/ekkolabs/sentria/pkg/frames"
	"github.com/ekkolabs/sentria/pkg/pcm"
)

type collectSink struct {
	mu     sync.Mutex
	frames []frames.AudioFrame
}

func (s *collectSink) Send(f frames.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f.(frames.AudioFrame))
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *collectSink) frame(i int) frames.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[i]
}

func TestPipelineEncodesBlocks(t *testing.T) {
	var deliver func([]float32)
	src := FuncSource{
		StartFn: func(d func([]float32)) error { deliver = d; return nil },
	}
	sink := &collectSink{}
	p := New(Config{SampleRate: 16000, StreamID: "s1"}, src, sink)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deliver([]float32{0.5, -0.5, 0})

	if sink.count() != 1 {
		t.Fatalf("got %d frames, want 1", sink.count())
	}
	af := sink.frame(0)
	h, samples, err := pcm.Decode(af.RawPayload())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if h.SampleRateHz != 16000 || h.SampleCount != 3 {
		t.Fatalf("unexpected header %+v", h)
	}
	if samples[0] != 16384 || samples[1] != -16384 || samples[2] != 0 {
		t.Fatalf("unexpected samples %v", samples)
	}
	if af.Meta()[frames.MetaStreamID] != "s1" {
		t.Fatalf("stream id missing from meta: %v", af.Meta())
	}
}

func TestPipelineStartFailureSynchronous(t *testing.T) {
	wantErr := errors.New("device busy")
	p := New(Config{}, FailingSource{Err: wantErr}, &collectSink{})

	err := p.Start()
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("Start error = %v, want wrapped %v", err, wantErr)
	}
	if p.Running() {
		t.Fatalf("pipeline running after failed start")
	}
	// A failed start leaves the pipeline restartable.
	src := FuncSource{}
	p2 := New(Config{}, src, &collectSink{})
	if err := p2.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestPipelineDoubleStart(t *testing.T) {
	p := New(Config{}, FuncSource{}, &collectSink{})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(); !errors.Is(err, ErrAlreadyCapturing) {
		t.Fatalf("second Start = %v, want ErrAlreadyCapturing", err)
	}
}

func TestPipelineDiscardsBlocksAfterStop(t *testing.T) {
	var deliver func([]float32)
	src := FuncSource{
		StartFn: func(d func([]float32)) error { deliver = d; return nil },
	}
	sink := &collectSink{}
	p := New(Config{}, src, sink)

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deliver([]float32{0.1})
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Trailing blocks the platform delivers after Stop must not leak out.
	deliver([]float32{0.2})
	deliver([]float32{0.3})

	if sink.count() != 1 {
		t.Fatalf("got %d frames after stop, want 1", sink.count())
	}
}

func TestToneSourceDelivers(t *testing.T) {
	src := NewToneSource(16000, 16, 440)
	blockCh := make(chan []float32, 8)
	if err := src.Start(func(b []float32) {
		select {
		case blockCh <- b:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	block := <-blockCh
	if len(block) != 16 {
		t.Fatalf("block size %d, want 16", len(block))
	}
	for _, s := range block {
		if s < -1 || s > 1 {
			t.Fatalf("sample out of range: %v", s)
		}
	}
}
