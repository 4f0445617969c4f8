package transports

import (
	"context"
	"time"

	"github.com/ekkolabs/sentria/pkg/frames"
)

// State is the connection state of a channel. The channel is the single
// source of truth; everything else treats it as read-only.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// StateChange is one connection-state transition. Error and clean close both
// land on StateDisconnected; the cause is not distinguished.
type StateChange struct {
	From State
	To   State
	At   time.Time
}

// StateListener observes channel state transitions. Listener failures never
// propagate back into the channel.
type StateListener interface {
	OnStateChange(event StateChange)
}

// Channel is a persistent bidirectional connection to a transcription or
// compliance endpoint. Implementations own their network lifecycle.
type Channel interface {
	Name() string
	// Connect is idempotent: while connecting or connected it returns nil
	// without opening a second connection.
	Connect(ctx context.Context) error
	// Disconnect always lands on StateDisconnected and is safe to repeat.
	Disconnect() error
	State() State
	// Send forwards an outbound frame; outside StateConnected it is silently
	// dropped. Fire-and-forget, never blocks on network I/O.
	Send(f frames.Frame) error
	Recv() <-chan frames.Frame
	AddStateListener(l StateListener)
}
