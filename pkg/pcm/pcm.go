// Package pcm encodes blocks of floating-point audio samples into the
// length-prefixed little-endian frames the compliance backend consumes.
//
// Frame layout: 12-byte header (sample rate u32, channels u16, reserved u16,
// sample count u32, all little-endian) followed by sampleCount int16 samples.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// HeaderSize is the fixed frame header length in bytes.
	HeaderSize = 12
	// Channels is fixed to mono for this system.
	Channels = 1
)

// Header is the decoded 12-byte frame header.
type Header struct {
	SampleRateHz uint32
	Channels     uint16
	Reserved     uint16
	SampleCount  uint32
}

// Encode converts a block of float samples into one wire frame. It never
// fails: NaN samples become 0 and everything is clamped to [-1, 1] before
// conversion. The negative and positive scale factors differ on purpose; the
// backend expects bit-exact int16 values from this exact mapping.
func Encode(samples []float32, sampleRateHz uint32) []byte {
	out := make([]byte, HeaderSize+2*len(samples))
	binary.LittleEndian.PutUint32(out[0:4], sampleRateHz)
	binary.LittleEndian.PutUint16(out[4:6], Channels)
	binary.LittleEndian.PutUint16(out[6:8], 0)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(samples)))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[HeaderSize+2*i:], uint16(EncodeSample(s)))
	}
	return out
}

// EncodeSample maps one float sample to its int16 wire value.
func EncodeSample(s float32) int16 {
	f := float64(s)
	if math.IsNaN(f) {
		f = 0
	}
	if f < -1 {
		f = -1
	} else if f > 1 {
		f = 1
	}
	var v float64
	if f < 0 {
		v = math.Round(f * 32768)
	} else {
		v = math.Round(f * 32767)
	}
	if v < math.MinInt16 {
		v = math.MinInt16
	} else if v > math.MaxInt16 {
		v = math.MaxInt16
	}
	return int16(v)
}

// DecodeHeader parses the 12-byte frame header.
func DecodeHeader(frame []byte) (Header, error) {
	if len(frame) < HeaderSize {
		return Header{}, fmt.Errorf("frame too short: expected at least %d bytes, got %d", HeaderSize, len(frame))
	}
	return Header{
		SampleRateHz: binary.LittleEndian.Uint32(frame[0:4]),
		Channels:     binary.LittleEndian.Uint16(frame[4:6]),
		Reserved:     binary.LittleEndian.Uint16(frame[6:8]),
		SampleCount:  binary.LittleEndian.Uint32(frame[8:12]),
	}, nil
}

// Decode parses a full frame, validating that the payload matches the header
// sample count. This mirrors the backend's reader and exists mostly for tests
// and diagnostics; the hot path only ever encodes.
func Decode(frame []byte) (Header, []int16, error) {
	h, err := DecodeHeader(frame)
	if err != nil {
		return Header{}, nil, err
	}
	want := int(h.SampleCount) * 2
	payload := frame[HeaderSize:]
	if len(payload) < want {
		return Header{}, nil, fmt.Errorf("incomplete frame: expected %d payload bytes, got %d", want, len(payload))
	}
	samples := make([]int16, h.SampleCount)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return h, samples, nil
}
