package backend

import (
	"testing"

	"github.com/ekkolabs/sentria/pkg/frames"
)

func TestDecodeTranscriptEnvelope(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want string
	}{
		{"bare_string_data", `{"type":"transcript","data":"hello there"}`, "hello there"},
		{"object_data", `{"type":"transcript","data":{"text":"verify identity please"}}`, "verify identity please"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := decodeInbound("s1", 1, []byte(tc.msg))
			tf, ok := f.(frames.TranscriptFrame)
			if !ok {
				t.Fatalf("got %T, want TranscriptFrame", f)
			}
			if tf.Text() != tc.want {
				t.Fatalf("text = %q, want %q", tf.Text(), tc.want)
			}
			if tf.Meta()[frames.MetaSource] != "backend" {
				t.Fatalf("source = %q, want backend", tf.Meta()[frames.MetaSource])
			}
		})
	}
}

func TestDecodeComplianceEnvelope(t *testing.T) {
	msg := `{"type":"compliance","data":{"score":91,"status":"IN_PROGRESS","critical_violations":["shared pin"],"missing_steps":["verify identity"],"high_risk_detected":true}}`
	f := decodeInbound("s1", 1, []byte(msg))
	cf, ok := f.(frames.ComplianceFrame)
	if !ok {
		t.Fatalf("got %T, want ComplianceFrame", f)
	}
	p := cf.Payload()
	if p.Score == nil || *p.Score != 91 {
		t.Fatalf("score = %v, want 91", p.Score)
	}
	if len(p.CriticalViolations) != 1 || p.CriticalViolations[0] != "shared pin" {
		t.Fatalf("critical = %v", p.CriticalViolations)
	}
	if !p.HighRiskDetected {
		t.Fatalf("high risk flag lost")
	}
}

func TestDecodeFallbackToPlainText(t *testing.T) {
	cases := []struct {
		name string
		msg  string
	}{
		{"not_json", "agent said hello"},
		{"unknown_type", `{"type":"diagnostics","data":{}}`},
		{"malformed_compliance", `{"type":"compliance","data":"not an object"}`},
		{"transcript_without_text", `{"type":"transcript","data":{"words":3}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := decodeInbound("s1", 1, []byte(tc.msg))
			tf, ok := f.(frames.TranscriptFrame)
			if !ok {
				t.Fatalf("got %T, want TranscriptFrame fallback", f)
			}
			if tf.Text() != tc.msg {
				t.Fatalf("fallback text = %q, want raw message", tf.Text())
			}
			if tf.Meta()[frames.MetaSource] != "fallback" {
				t.Fatalf("source = %q, want fallback", tf.Meta()[frames.MetaSource])
			}
		})
	}
}
