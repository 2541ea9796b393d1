// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Inworld, ElevenLabs or
// a local Coqui server) and presents two entry points: SynthesizeOnce returns
// the whole utterance in one buffer, SynthesizeStream yields PCM chunks as the
// backend produces them so playback can begin before synthesis completes.
//
// All audio produced by a Provider is 16-bit signed little-endian mono PCM at
// the sample rate the provider was configured with.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"iter"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeOnce synthesises text with voice and returns the complete PCM
	// buffer. A non-success response from the backend is an error.
	SynthesizeOnce(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// SynthesizeStream synthesises text with voice and yields PCM chunks in
	// playback order. The sequence is lazy: no request is issued until the
	// caller starts ranging over it. It is finite and cannot be restarted.
	//
	// An error is yielded at most once, as the final element. Breaking out of
	// the loop early releases the underlying connection.
	SynthesizeStream(ctx context.Context, text string, voice VoiceProfile) iter.Seq2[[]byte, error]

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
