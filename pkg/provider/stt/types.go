package stt

import "context"

// Func adapts an ordinary function to the [Provider] interface.
type Func func(ctx context.Context, pcm []byte) (string, error)

// Transcribe calls f(ctx, pcm).
func (f Func) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	return f(ctx, pcm)
}

var _ Provider = Func(nil)
