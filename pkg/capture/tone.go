package capture

import (
	"math"
	"sync"
	"time"
)

// ToneSource generates a sine tone in fixed-size blocks, standing in for a
// microphone in tests and the example console.
type ToneSource struct {
	SampleRate int
	BlockSize  int
	FreqHz     float64

	mu      sync.Mutex
	running bool
	done    chan struct{}
	phase   float64
}

func NewToneSource(sampleRate, blockSize int, freqHz float64) *ToneSource {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if blockSize <= 0 {
		blockSize = 128
	}
	if freqHz <= 0 {
		freqHz = 440
	}
	return &ToneSource{SampleRate: sampleRate, BlockSize: blockSize, FreqHz: freqHz}
}

func (t *ToneSource) Start(deliver func(block []float32)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyCapturing
	}
	t.running = true
	t.done = make(chan struct{})
	go t.loop(t.done, deliver)
	return nil
}

func (t *ToneSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNotCapturing
	}
	t.running = false
	close(t.done)
	return nil
}

func (t *ToneSource) loop(done chan struct{}, deliver func(block []float32)) {
	interval := time.Duration(float64(t.BlockSize) / float64(t.SampleRate) * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	step := 2 * math.Pi * t.FreqHz / float64(t.SampleRate)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			block := make([]float32, t.BlockSize)
			for i := range block {
				block[i] = float32(0.5 * math.Sin(t.phase))
				t.phase += step
			}
			deliver(block)
		}
	}
}

// FailingSource always fails to acquire, for exercising the session-start
// error path.
type FailingSource struct {
	Err error
}

func (f FailingSource) Start(func(block []float32)) error { return f.Err }
func (f FailingSource) Stop() error                       { return nil }

// FuncSource adapts a pair of callbacks into a Source, for tests that need
// manual block delivery.
type FuncSource struct {
	StartFn func(deliver func(block []float32)) error
	StopFn  func() error
}

func (f FuncSource) Start(deliver func(block []float32)) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(deliver)
}

func (f FuncSource) Stop() error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn()
}
