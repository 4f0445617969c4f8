// Package capture bridges a live audio source to a stream of encoded PCM
// frames. The platform microphone binding sits behind the Source seam; the
// pipeline itself is platform-free.
package capture

import "errors"

// ErrAlreadyCapturing is returned when starting a source that is running.
var ErrAlreadyCapturing = errors.New("already capturing audio")

// ErrNotCapturing is returned when stopping a source that never started.
var ErrNotCapturing = errors.New("not capturing audio")

// Source is a push-driven audio input. Start acquires the device and begins
// delivering fixed-size mono blocks of float samples in [-1, 1] at the
// platform's processing cadence; acquisition failure is reported
// synchronously and the source never starts. Implementations must request
// echo cancellation, noise suppression and auto-gain off; the backend wants
// the raw signal.
type Source interface {
	Start(deliver func(block []float32)) error
	Stop() error
}
