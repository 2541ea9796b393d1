package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxshift/internal/pipeline"
)

// ValidProviderNames lists the built-in provider names per provider kind.
// Unknown STT names are rejected by [Validate]; other kinds only warn so that
// third-party registrations keep working.
var ValidProviderNames = map[string][]string{
	"stt":   {"vosk", "whisper", "whisper-native", "openai", "deepgram"},
	"tts":   {"inworld", "elevenlabs", "coqui"},
	"vad":   {"webrtc", "energy"},
	"audio": {"portaudio", "wavfile"},
}

// Default provider names applied by [ApplyDefaults].
const (
	DefaultSTT      = "vosk"
	DefaultTTS      = "inworld"
	DefaultVAD      = "webrtc"
	DefaultAudio    = "portaudio"
	DefaultVoskPath = "models/vosk-model-small-fr-0.22"
)

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	d := pipeline.DefaultConfig()
	p := &cfg.Pipeline
	if p.SampleRate == 0 {
		p.SampleRate = d.SampleRate
	}
	if p.ChunkMs == 0 {
		p.ChunkMs = d.ChunkMs
	}
	if p.VADAggressiveness == nil {
		v := d.VADAggressiveness
		p.VADAggressiveness = &v
	}
	if p.MinSpeechMs == 0 {
		p.MinSpeechMs = d.MinSpeechMs
	}
	if p.MinSilenceMs == 0 {
		p.MinSilenceMs = d.MinSilenceMs
	}
	if p.PaddingMs == 0 {
		p.PaddingMs = d.PaddingMs
	}
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.MinTextLength == 0 {
		p.MinTextLength = d.MinTextLength
	}
	if p.UtteranceQueueSize == 0 {
		p.UtteranceQueueSize = d.UtteranceQueueSize
	}
	if p.AudioQueueSize == 0 {
		p.AudioQueueSize = d.AudioQueueSize
	}
	if p.PollTimeout == 0 {
		p.PollTimeout = d.PollTimeout
	}
	if p.StopTimeout == 0 {
		p.StopTimeout = d.StopTimeout
	}

	pr := &cfg.Providers
	if pr.STT.Name == "" {
		pr.STT.Name = DefaultSTT
	}
	if pr.STT.Name == "vosk" && pr.STT.Model == "" {
		pr.STT.Model = DefaultVoskPath
	}
	if pr.TTS.Name == "" {
		pr.TTS.Name = DefaultTTS
	}
	if pr.VAD.Name == "" {
		pr.VAD.Name = DefaultVAD
	}
	if pr.Audio.Name == "" {
		pr.Audio.Name = DefaultAudio
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Unknown STT engines are a configuration error, never a silent fallback.
	for i, e := range append([]ProviderEntry{cfg.Providers.STT}, cfg.Providers.STTFallbacks...) {
		field := "providers.stt"
		if i > 0 {
			field = fmt.Sprintf("providers.stt_fallbacks[%d]", i-1)
		}
		if !slices.Contains(ValidProviderNames["stt"], e.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q is invalid; valid values: %v", field, e.Name, ValidProviderNames["stt"]))
		}
	}

	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, e := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", e.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	for _, key := range []string{"input_device", "output_device"} {
		if _, err := cfg.Providers.Audio.Int(key, pipeline.DefaultDevice); err != nil {
			errs = append(errs, fmt.Errorf("providers.audio: %w", err))
		}
	}

	pc, err := cfg.ToPipeline()
	if err == nil {
		if err := pc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("pipeline: %w", err))
		}
	}

	if cfg.Journal.PostgresDSN != "" && cfg.Journal.BadgerDir != "" {
		errs = append(errs, errors.New("journal.postgres_dsn and journal.badger_dir are mutually exclusive"))
	}
	if cfg.Journal.Capacity < 0 {
		errs = append(errs, fmt.Errorf("journal.capacity must not be negative, got %d", cfg.Journal.Capacity))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
