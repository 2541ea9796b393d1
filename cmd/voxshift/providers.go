package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/pipeline"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/audio/portaudio"
	"github.com/MrWong99/voxshift/pkg/audio/wavfile"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
	"github.com/MrWong99/voxshift/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/voxshift/pkg/provider/stt/openai"
	"github.com/MrWong99/voxshift/pkg/provider/stt/vosk"
	"github.com/MrWong99/voxshift/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
	"github.com/MrWong99/voxshift/pkg/provider/tts/coqui"
	"github.com/MrWong99/voxshift/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/voxshift/pkg/provider/tts/inworld"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
	"github.com/MrWong99/voxshift/pkg/provider/vad/energy"
	"github.com/MrWong99/voxshift/pkg/provider/vad/webrtc"
)

// newRegistry returns a registry holding every built-in provider.
func newRegistry() *config.Registry {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	return reg
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry plus the run's pipeline config
// and constructs the provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("vosk", func(entry config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = pc.Model
		}
		opts := []vosk.Option{vosk.WithInputRate(pc.SampleRate)}
		lvl, err := entry.Int("log_level", -1)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vosk.WithLogLevel(lvl))
		return vosk.New(modelPath, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithInputRate(pc.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := language(entry, pc); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if prompt := vocabularyPrompt(pc); prompt != "" {
			opts = append(opts, whisper.WithPrompt(prompt))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.String("model_path")
		}
		opts := []whisper.NativeOption{whisper.WithNativeInputRate(pc.SampleRate)}
		if lang := language(entry, pc); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if prompt := vocabularyPrompt(pc); prompt != "" {
			opts = append(opts, whisper.WithNativePrompt(prompt))
		}
		threads, err := entry.Int("threads", 0)
		if err != nil {
			return nil, err
		}
		if threads > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(threads)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
		opts := []sttopenai.Option{sttopenai.WithInputRate(pc.SampleRate)}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := language(entry, pc); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		retries, err := entry.Int("max_retries", -1)
		if err != nil {
			return nil, err
		}
		if retries >= 0 {
			opts = append(opts, sttopenai.WithMaxRetries(retries))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithInputRate(pc.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := language(entry, pc); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("inworld", func(entry config.ProviderEntry, pc pipeline.Config) (tts.Provider, error) {
		opts := []inworld.Option{
			inworld.WithSampleRate(pc.SampleRate),
			inworld.WithTextNormalization(entry.Bool("text_normalization", false)),
		}
		if entry.Model != "" {
			opts = append(opts, inworld.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, inworld.WithBaseURL(entry.BaseURL))
		}
		return inworld.New(entry.APIKey, entry.String("secret"), opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry, pc pipeline.Config) (tts.Provider, error) {
		opts := []elevenlabs.Option{elevenlabs.WithSampleRate(pc.SampleRate)}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry, pc pipeline.Config) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithOutputSampleRate(pc.SampleRate)}
		if lang := language(entry, pc); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.String("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		threshold, err := entry.Int("threshold", 0)
		if err != nil {
			return nil, err
		}
		var opts []energy.Option
		if threshold > 0 {
			opts = append(opts, energy.WithThreshold(float64(threshold)))
		}
		return energy.New(opts...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (config.AudioBackend, error) {
		return config.AudioBackend{
			Source: func(pc pipeline.Config) (audio.Source, error) {
				return portaudio.NewSource(portaudio.Config{
					Device:     pc.InputDevice,
					SampleRate: pc.SampleRate,
					ChunkMs:    pc.ChunkMs,
				}), nil
			},
			Sink: func(pc pipeline.Config) (audio.Sink, error) {
				return portaudio.NewSink(portaudio.Config{
					Device:     pc.OutputDevice,
					SampleRate: pc.SampleRate,
					ChunkMs:    pc.ChunkMs,
				}), nil
			},
			Devices: portaudio.Lister{},
		}, nil
	})

	reg.RegisterAudio("wavfile", func(entry config.ProviderEntry) (config.AudioBackend, error) {
		in, out := entry.String("input"), entry.String("output")
		silence, err := entry.Int("trailing_silence_ms", 1000)
		if err != nil {
			return config.AudioBackend{}, err
		}
		realtime := entry.Bool("realtime", true)
		return config.AudioBackend{
			Source: func(pc pipeline.Config) (audio.Source, error) {
				if in == "" {
					return nil, fmt.Errorf("wavfile: options.input is required")
				}
				return wavfile.NewSource(in, pc.SampleRate, pc.ChunkMs,
					wavfile.WithRealtime(realtime),
					wavfile.WithTrailingSilence(time.Duration(silence)*time.Millisecond),
				), nil
			},
			Sink: func(pc pipeline.Config) (audio.Sink, error) {
				if out == "" {
					return nil, fmt.Errorf("wavfile: options.output is required")
				}
				return wavfile.NewSink(out, pc.SampleRate), nil
			},
		}, nil
	})

	for _, kind := range []string{"stt", "tts", "vad", "audio"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// language prefers a per-provider language option over pipeline.language.
func language(entry config.ProviderEntry, pc pipeline.Config) string {
	if l := entry.String("language"); l != "" {
		return l
	}
	return pc.Language
}

// vocabularyPrompt lists the configured vocabulary for engines that accept
// an initial prompt.
func vocabularyPrompt(pc pipeline.Config) string {
	return strings.Join(pc.Vocabulary, ", ")
}
