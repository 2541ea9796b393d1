package resilience

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var (
	_ stt.Provider = (*STTFallback)(nil)
	_ io.Closer    = (*STTFallback)(nil)
)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the utterance through the first healthy provider. An empty
// utterance is rejected without touching any backend.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) < 2 {
		return "", stt.ErrEmptyAudio
	}
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, pcm)
	})
}

// Close closes every backend that holds native resources.
func (f *STTFallback) Close() error {
	return closeAll(f.group)
}

// closeAll closes each entry of fg that implements [io.Closer].
func closeAll[T any](fg *FallbackGroup[T]) error {
	var errs []error
	fg.Each(func(_ string, v T) {
		if c, ok := any(v).(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
