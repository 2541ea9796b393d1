// Package config provides the configuration schema, loader, and provider registry
// for the voxshift voice changer.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/MrWong99/voxshift/internal/pipeline"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to the matching [slog.Level]. Unknown and empty levels map to
// [slog.LevelInfo].
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voxshift.
type Config struct {
	// Server configures the diagnostics listener and logging.
	Server ServerConfig `yaml:"server"`

	// Pipeline holds the segmentation, filtering and queueing parameters of
	// one pipeline run.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Providers selects the audio backend and the speech engines.
	Providers ProvidersConfig `yaml:"providers"`

	// Journal selects where processed utterances are recorded.
	Journal JournalConfig `yaml:"journal"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for health probes, metrics and the event
	// feed (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: debug, info, warn, error.
	LogLevel LogLevel `yaml:"log_level"`
}

// PipelineConfig mirrors [pipeline.Config] in YAML form. Zero values are
// replaced by [ApplyDefaults].
type PipelineConfig struct {
	SampleRate int `yaml:"sample_rate"`
	ChunkMs    int `yaml:"chunk_ms"`

	// VADAggressiveness is a pointer so that an explicit 0 survives defaults.
	VADAggressiveness *int `yaml:"vad_aggressiveness"`

	MinSpeechMs  int `yaml:"min_speech_ms"`
	MinSilenceMs int `yaml:"min_silence_ms"`
	PaddingMs    int `yaml:"padding_ms"`

	// Language is the STT language code (fr, en, ...).
	Language string `yaml:"language"`

	// VoiceID is the synthesis voice. Falls back to INWORLD_VOICE_ID.
	VoiceID string `yaml:"voice_id"`

	MinTextLength int      `yaml:"min_text_length"`
	NoiseWords    []string `yaml:"noise_words"`

	// Vocabulary holds names and terms the recogniser tends to mishear.
	Vocabulary []string `yaml:"vocabulary"`

	UtteranceQueueSize int           `yaml:"utterance_queue_size"`
	AudioQueueSize     int           `yaml:"audio_queue_size"`
	PollTimeout        time.Duration `yaml:"poll_timeout"`
	StopTimeout        time.Duration `yaml:"stop_timeout"`

	// StreamSynthesis selects streamed synthesis over one-shot synthesis.
	StreamSynthesis bool `yaml:"stream_synthesis"`
}

// ProvidersConfig selects one implementation per provider slot. STT and TTS
// accept an ordered list of fallbacks tried when the primary fails.
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
	VAD          ProviderEntry   `yaml:"vad"`
	Audio        ProviderEntry   `yaml:"audio"`
}

// ProviderEntry is the common configuration block for any provider.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "vosk", "inworld").
	Name string `yaml:"name"`

	// APIKey is the authentication credential for cloud providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the model path (vosk, whisper-native) or model identifier.
	Model string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// JournalConfig selects the utterance journal backend. With both fields empty
// the journal is kept in memory.
type JournalConfig struct {
	// PostgresDSN enables the PostgreSQL journal.
	PostgresDSN string `yaml:"postgres_dsn"`

	// BadgerDir enables the embedded Badger journal stored in this directory.
	BadgerDir string `yaml:"badger_dir"`

	// Capacity bounds the in-memory journal. Defaults to 256.
	Capacity int `yaml:"capacity"`
}

// String returns the option value for key, or "" when it is absent or not a
// string.
func (e ProviderEntry) String(key string) string {
	v, ok := e.Options[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// Int returns the integer option value for key, or def when it is absent.
// YAML integers and numeric strings are both accepted.
func (e ProviderEntry) Int(key string, def int) (int, error) {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("option %q: %v is not an integer", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("option %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("option %q: unsupported type %T", key, v)
	}
}

// Bool returns the boolean option value for key, or def when it is absent or
// not a boolean.
func (e ProviderEntry) Bool(key string, def bool) bool {
	if b, ok := e.Options[key].(bool); ok {
		return b
	}
	return def
}

// SetOption stores value under key, allocating Options on first use.
func (e *ProviderEntry) SetOption(key string, value any) {
	if e.Options == nil {
		e.Options = make(map[string]any)
	}
	e.Options[key] = value
}

// ToPipeline converts the loaded configuration into the immutable per-run
// [pipeline.Config]. Device indices come from the audio provider options
// input_device and output_device.
func (c *Config) ToPipeline() (pipeline.Config, error) {
	p := c.Pipeline
	pc := pipeline.DefaultConfig()

	in, err := c.Providers.Audio.Int("input_device", pipeline.DefaultDevice)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("config: providers.audio: %w", err)
	}
	out, err := c.Providers.Audio.Int("output_device", pipeline.DefaultDevice)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("config: providers.audio: %w", err)
	}
	pc.InputDevice = in
	pc.OutputDevice = out

	pc.VoiceID = p.VoiceID
	pc.STTEngine = c.Providers.STT.Name
	pc.TTSEngine = c.Providers.TTS.Name
	pc.Model = c.Providers.STT.Model
	pc.Language = p.Language
	pc.SampleRate = p.SampleRate
	pc.ChunkMs = p.ChunkMs
	if p.VADAggressiveness != nil {
		pc.VADAggressiveness = *p.VADAggressiveness
	}
	pc.MinSpeechMs = p.MinSpeechMs
	pc.MinSilenceMs = p.MinSilenceMs
	pc.PaddingMs = p.PaddingMs
	pc.MinTextLength = p.MinTextLength
	pc.NoiseWords = p.NoiseWords
	pc.Vocabulary = p.Vocabulary
	pc.UtteranceQueueSize = p.UtteranceQueueSize
	pc.AudioQueueSize = p.AudioQueueSize
	pc.PollTimeout = p.PollTimeout
	pc.StopTimeout = p.StopTimeout
	pc.StreamSynthesis = p.StreamSynthesis
	return pc, nil
}
