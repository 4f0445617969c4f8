package backend

import (
	"encoding/json"

	"github.com/ekkolabs/sentria/pkg/compliance"
	"github.com/ekkolabs/sentria/pkg/frames"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodeInbound turns one inbound text message into a typed frame. Anything
// that is not a recognized {type, data} envelope falls back to a plain-text
// transcript; legacy backends reply with bare text and must keep working.
func decodeInbound(streamID string, pts int64, msg []byte) frames.Frame {
	var env envelope
	if err := json.Unmarshal(msg, &env); err == nil {
		switch env.Type {
		case "transcript":
			if text, ok := decodeTranscriptData(env.Data); ok {
				return frames.NewTranscriptFrame(streamID, pts, text, map[string]string{frames.MetaSource: "backend"})
			}
		case "compliance":
			var p compliance.Payload
			if err := json.Unmarshal(env.Data, &p); err == nil {
				return frames.NewComplianceFrame(streamID, pts, p, map[string]string{frames.MetaSource: "backend"})
			}
		}
	}
	return frames.NewTranscriptFrame(streamID, pts, string(msg), map[string]string{frames.MetaSource: "fallback"})
}

// decodeTranscriptData accepts either a bare string or an object carrying a
// text field.
func decodeTranscriptData(data json.RawMessage) (string, bool) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text, true
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Text != "" {
		return obj.Text, true
	}
	return "", false
}
