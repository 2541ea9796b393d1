// Package audio defines the device-facing interfaces and PCM helpers used by
// the voxshift speech pipeline.
//
// The two primary abstractions are:
//
//   - [Source]: a capture device that delivers fixed-size PCM frames to a
//     callback owned by the pipeline.
//   - [Sink]: a playback device that accepts synthesized PCM and blocks until
//     the device has taken it.
//
// Implementations live in backend packages (audio/portaudio, audio/wavfile,
// audio/mock). All PCM handled here is signed 16-bit little-endian; the
// pipeline always runs mono.
package audio

import (
	"context"
	"errors"
)

// ErrNotStarted is returned by [Sink.Write] when the sink has not been started
// or has already been stopped.
var ErrNotStarted = errors.New("audio: device not started")

// FrameCallback receives one captured frame. It is invoked from the backend's
// capture context and must not block. The callee must copy frame if it keeps
// it beyond the call; backends may reuse the underlying array.
type FrameCallback func(frame []byte)

// Source is a capture device.
//
// Implementations must tolerate Stop being called more than once and before
// Start.
type Source interface {
	// Start begins capture and delivers every frame to cb until Stop is called
	// or ctx is cancelled. Start returns once capture is running; it does not
	// block for the lifetime of the stream.
	Start(ctx context.Context, cb FrameCallback) error

	// Stop halts capture and releases the device. After Stop returns, cb is
	// never invoked again.
	Stop() error
}

// Sink is a playback device.
type Sink interface {
	// Start opens the device for writing.
	Start(ctx context.Context) error

	// Write plays pcm and returns once the device has accepted all of it.
	Write(ctx context.Context, pcm []byte) error

	// Stop flushes and closes the device. Calling Stop more than once is safe.
	Stop() error
}

// Direction reports which way a device can move audio.
type Direction int

const (
	// DirectionInput marks a capture-capable device.
	DirectionInput Direction = 1 << iota

	// DirectionOutput marks a playback-capable device.
	DirectionOutput
)

// String returns a short human-readable label.
func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionInput | DirectionOutput:
		return "input/output"
	default:
		return "none"
	}
}

// Device describes one host audio device as reported by a backend.
type Device struct {
	// Index is the backend-specific selector used in configuration.
	Index int

	// Name is the host's display name for the device.
	Name string

	// Direction is the set of directions the device supports.
	Direction Direction

	// InputChannels and OutputChannels are the maximum channel counts.
	InputChannels  int
	OutputChannels int

	// DefaultSampleRate is the device's preferred rate in Hz.
	DefaultSampleRate float64

	// IsDefaultInput and IsDefaultOutput mark the host defaults.
	IsDefaultInput  bool
	IsDefaultOutput bool
}

// DeviceLister is implemented by backends that can enumerate host devices.
type DeviceLister interface {
	Devices() ([]Device, error)
}
