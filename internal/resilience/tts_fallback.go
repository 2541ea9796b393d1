package resilience

import (
	"context"
	"io"
	"iter"

	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var (
	_ tts.Provider = (*TTSFallback)(nil)
	_ io.Closer    = (*TTSFallback)(nil)
)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeOnce synthesises text on the first healthy provider.
func (f *TTSFallback) SynthesizeOnce(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		return p.SynthesizeOnce(ctx, text, voice)
	})
}

// SynthesizeStream streams from the first healthy provider. Failover only
// happens before the first chunk has been yielded; an error after that ends
// the sequence so the listener never hears the start of the text twice.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		consumerDone := false
		err := f.group.Execute(func(p tts.Provider) error {
			started := false
			for chunk, err := range p.SynthesizeStream(ctx, text, voice) {
				if err != nil {
					if started {
						return Halt(err)
					}
					return err
				}
				started = true
				if !yield(chunk, nil) {
					consumerDone = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !consumerDone {
			yield(nil, err)
		}
	}
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Close closes every backend that holds resources.
func (f *TTSFallback) Close() error {
	return closeAll(f.group)
}
