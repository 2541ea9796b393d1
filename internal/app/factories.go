package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/observe"
	"github.com/MrWong99/voxshift/internal/pipeline"
	"github.com/MrWong99/voxshift/internal/resilience"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// fallbackConfig is the breaker setup shared by STT and TTS failover groups.
// Breaker moves are exported as voxshift.breaker.transitions.
var fallbackConfig = resilience.FallbackConfig{
	CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:   3,
		OnStateChange: recordBreaker,
	},
}

func recordBreaker(engine string, _, to resilience.State) {
	observe.DefaultMetrics().RecordBreakerTransition(context.Background(), engine, to.String())
}

// Factories resolves the providers named in cfg through reg. When fallbacks
// are configured, the STT and TTS factories return [resilience] groups with
// the primary first.
func Factories(cfg *config.Config, reg *config.Registry) pipeline.Factories {
	p := cfg.Providers
	return pipeline.Factories{
		VAD: func(context.Context, pipeline.Config) (vad.Engine, error) {
			return reg.CreateVAD(p.VAD)
		},
		STT: func(_ context.Context, pc pipeline.Config) (stt.Provider, error) {
			return BuildSTT(reg, p.STT, p.STTFallbacks, pc)
		},
		TTS: func(_ context.Context, pc pipeline.Config) (tts.Provider, error) {
			return BuildTTS(reg, p.TTS, p.TTSFallbacks, pc)
		},
		Source: func(_ context.Context, pc pipeline.Config) (audio.Source, error) {
			b, err := reg.CreateAudio(p.Audio)
			if err != nil {
				return nil, err
			}
			if b.Source == nil {
				return nil, fmt.Errorf("audio backend %q cannot capture", p.Audio.Name)
			}
			return b.Source(pc)
		},
		Sink: func(_ context.Context, pc pipeline.Config) (audio.Sink, error) {
			b, err := reg.CreateAudio(p.Audio)
			if err != nil {
				return nil, err
			}
			if b.Sink == nil {
				return nil, fmt.Errorf("audio backend %q cannot play", p.Audio.Name)
			}
			return b.Sink(pc)
		},
	}
}

// BuildSTT creates the primary STT provider and wraps it with any fallbacks
// that can be constructed. A fallback that fails to build is logged and
// skipped; a failing primary is an error.
func BuildSTT(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
	p, err := reg.CreateSTT(primary, pc)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", primary.Name, err)
	}
	slog.Info("app: provider created", "kind", "stt", "name", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}
	fb := resilience.NewSTTFallback(p, primary.Name, fallbackConfig)
	for _, e := range fallbacks {
		alt, err := reg.CreateSTT(e, pc)
		if err != nil {
			slog.Warn("app: skipping stt fallback", "name", e.Name, "err", err)
			continue
		}
		fb.AddFallback(e.Name, alt)
		slog.Info("app: provider created", "kind", "stt", "name", e.Name, "role", "fallback")
	}
	return fb, nil
}

// BuildTTS is the TTS counterpart of [BuildSTT].
func BuildTTS(reg *config.Registry, primary config.ProviderEntry, fallbacks []config.ProviderEntry, pc pipeline.Config) (tts.Provider, error) {
	p, err := reg.CreateTTS(primary, pc)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", primary.Name, err)
	}
	slog.Info("app: provider created", "kind", "tts", "name", primary.Name)
	if len(fallbacks) == 0 {
		return p, nil
	}
	fb := resilience.NewTTSFallback(p, primary.Name, fallbackConfig)
	for _, e := range fallbacks {
		alt, err := reg.CreateTTS(e, pc)
		if err != nil {
			slog.Warn("app: skipping tts fallback", "name", e.Name, "err", err)
			continue
		}
		fb.AddFallback(e.Name, alt)
		slog.Info("app: provider created", "kind", "tts", "name", e.Name, "role", "fallback")
	}
	return fb, nil
}

// CloseIfCloser closes v when it holds resources.
func CloseIfCloser(v any) error {
	c, ok := v.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
