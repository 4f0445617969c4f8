package metrics

import (
	"testing"
	"time"
)

func TestSamplingObserverRate(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.1)

	for i := 0; i < 100; i++ {
		s.RecordEvent(MetricsEvent{Name: "audio_block", Time: time.Now()})
	}
	if got := len(mem.Named("audio_block")); got != 10 {
		t.Fatalf("sampled %d events, want 10", got)
	}
}

func TestSamplingObserverZeroRateDropsAll(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0)
	s.RecordEvent(MetricsEvent{Name: "x"})
	if len(mem.Events) != 0 {
		t.Fatalf("zero-rate observer recorded %d events", len(mem.Events))
	}
}

func TestAsyncObserverDeliversAndCloses(t *testing.T) {
	mem := NewMemoryObserver()
	a := NewAsyncObserver(mem, 16)

	a.RecordEvent(MetricsEvent{Name: "ev", Value: 1})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mem.Named("ev")) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if len(mem.Named("ev")) != 1 {
		t.Fatalf("event never delivered")
	}

	a.Close()
	a.Close() // repeat close must be safe
	a.RecordEvent(MetricsEvent{Name: "late"})
	if len(mem.Named("late")) != 0 {
		t.Fatalf("event recorded after close")
	}
}
