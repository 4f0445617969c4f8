package frames

import "testing"

func TestMetaCarriesStreamID(t *testing.T) {
	f := NewTranscriptFrame("s1", 1, "hello", map[string]string{MetaSource: "stt"})
	meta := f.Meta()
	if meta[MetaStreamID] != "s1" {
		t.Fatalf("stream id = %q", meta[MetaStreamID])
	}
	if meta[MetaSource] != "stt" {
		t.Fatalf("source = %q", meta[MetaSource])
	}
	// Meta returns a copy; mutating it must not leak back.
	meta[MetaSource] = "mutated"
	if f.Meta()[MetaSource] != "stt" {
		t.Fatalf("frame meta mutated through accessor")
	}
}

func TestPooledAudioFrameCopiesData(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	af := NewAudioFrameFromPool("s1", 1, src, 16000, 1, nil)
	src[0] = 99
	if af.RawPayload()[0] != 1 {
		t.Fatalf("pooled frame aliases caller buffer")
	}
	if !ReleaseAudioFrame(af) {
		t.Fatalf("pooled frame not released")
	}
	// Non-pooled frames report false.
	plain := NewAudioFrame("s1", 2, []byte{5}, 16000, 1, nil)
	if ReleaseAudioFrame(plain) {
		t.Fatalf("non-pooled frame claimed release")
	}
}

func TestPTSGenMonotonicPerStream(t *testing.T) {
	g := NewPTSGen()
	a1 := g.Next("a")
	a2 := g.Next("a")
	b1 := g.Next("b")
	if a2 <= a1 {
		t.Fatalf("pts not increasing: %d then %d", a1, a2)
	}
	if b1 != a1 {
		t.Fatalf("streams share counters: a1=%d b1=%d", a1, b1)
	}
}
