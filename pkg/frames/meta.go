package frames

// Meta keys shared across components. Values are always strings; components
// that need structure carry it in the frame itself, not in meta.
const (
	MetaStreamID      = "stream_id"
	MetaSessionID     = "session_id"
	MetaSource        = "source"
	MetaIsFinal       = "is_final"
	MetaSampleRate    = "sample_rate"
	MetaStateFrom     = "state_from"
	MetaStateTo       = "state_to"
	MetaCallEndReason = "call_end_reason"
	MetaReason        = "reason"
)
