// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one complete utterance of mono PCM16 audio into text.
// The pipeline segments speech itself, so providers are batch engines: they
// receive the whole utterance and return the whole transcript. Variants cover
// offline engines (Vosk, whisper.cpp), a whisper.cpp HTTP server, and cloud
// services (OpenAI, Deepgram).
//
// Every provider is constructed with the rate of the audio it will receive and
// converts internally to whatever its engine needs, usually [TargetRate].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxshift/pkg/audio"
)

// TargetRate is the sample rate every bundled engine transcribes at.
const TargetRate = 16000

// ErrEmptyAudio is returned by Transcribe when the utterance holds no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in pcm. pcm is mono PCM16 at the
	// input rate the provider was constructed with. An utterance that
	// contains no recognisable speech yields "" and a nil error.
	//
	// Returns an error if the engine fails or ctx is cancelled.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Resample converts pcm from inputRate to [TargetRate]. It returns
// [ErrEmptyAudio] when pcm has no complete sample.
func Resample(pcm []byte, inputRate int) ([]byte, error) {
	if len(pcm) < 2 {
		return nil, ErrEmptyAudio
	}
	out, err := audio.Resample(pcm, inputRate, TargetRate)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}
	return out, nil
}
