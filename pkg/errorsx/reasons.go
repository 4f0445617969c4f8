package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Device acquisition is the only failure that aborts a session start.
	ReasonDeviceAcquire ReasonCode = "device_acquire"

	ReasonTransportDial ReasonCode = "transport_dial"
	ReasonTransportSend ReasonCode = "transport_send"
	ReasonPayloadDecode ReasonCode = "payload_decode"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"

	ReasonStoreOpen   ReasonCode = "store_open"
	ReasonStoreAppend ReasonCode = "store_append"

	ReasonConfigLoad ReasonCode = "config_load"
)
