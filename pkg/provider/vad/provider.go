// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech classifier (WebRTC VAD, an energy
// detector, or a model) and surfaces it as a per-stream session. Each session
// remembers whether the previous frame was speech so that it can report
// speech start and end edges alongside the per-frame decision.
//
// VAD is synchronous: ProcessFrame returns immediately, which makes it safe to
// call from an audio capture callback.
//
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety.
package vad

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnsupportedSampleRate is returned when a session is requested for a
// sample rate outside [SupportedSampleRates].
var ErrUnsupportedSampleRate = errors.New("vad: unsupported sample rate")

// SupportedSampleRates lists the rates every engine in this module accepts.
var SupportedSampleRates = []int{8000, 16000, 32000, 48000}

// CheckSampleRate returns an error wrapping [ErrUnsupportedSampleRate] if rate
// is not one of [SupportedSampleRates].
func CheckSampleRate(rate int) error {
	if !slices.Contains(SupportedSampleRates, rate) {
		return fmt.Errorf("%w: %d Hz (want one of %v)", ErrUnsupportedSampleRate, rate, SupportedSampleRates)
	}
	return nil
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must be one of
	// [SupportedSampleRates].
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// WebRTC VAD accepts 10, 20 and 30 ms.
	FrameSizeMs int

	// Aggressiveness is the filtering mode from 0 (least aggressive about
	// filtering out non-speech) to 3 (most aggressive).
	Aggressiveness int
}

// Validate checks the rate, frame size and aggressiveness.
func (c Config) Validate() error {
	if err := CheckSampleRate(c.SampleRate); err != nil {
		return err
	}
	if c.FrameSizeMs <= 0 {
		return fmt.Errorf("vad: frame size must be positive, got %d ms", c.FrameSizeMs)
	}
	if c.Aggressiveness < 0 || c.Aggressiveness > 3 {
		return fmt.Errorf("vad: aggressiveness must be in [0, 3], got %d", c.Aggressiveness)
	}
	return nil
}

// FrameBytes is the expected length of one mono PCM16 frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// SessionHandle represents an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame classifies one mono PCM16 frame. It returns an error if the
	// frame has the wrong size or the classifier fails. It must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears the edge-tracking state without closing the session.
	Reset()

	// Close releases all resources. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
