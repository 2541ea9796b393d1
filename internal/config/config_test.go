package config_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/pipeline"
	"github.com/MrWong99/voxshift/pkg/audio"
	audiomock "github.com/MrWong99/voxshift/pkg/audio/mock"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxshift/pkg/provider/stt/mock"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxshift/pkg/provider/tts/mock"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxshift/pkg/provider/vad/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

pipeline:
  sample_rate: 16000
  chunk_ms: 30
  vad_aggressiveness: 0
  min_silence_ms: 450
  language: en
  voice_id: Ashley
  noise_words: [uh, um]
  poll_timeout: 250ms
  stream_synthesis: true

providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    model: base
  stt_fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
  tts:
    name: inworld
    api_key: key
    model: inworld-tts-1.5-mini
    options:
      secret: shh
  vad:
    name: energy
  audio:
    name: portaudio
    options:
      input_device: 3
      output_device: "5"

journal:
  badger_dir: /var/lib/voxshift
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Pipeline.PollTimeout != 250*time.Millisecond {
		t.Errorf("poll_timeout: got %v, want 250ms", cfg.Pipeline.PollTimeout)
	}
	if got := len(cfg.Providers.STTFallbacks); got != 1 {
		t.Fatalf("stt_fallbacks: got %d entries, want 1", got)
	}
	if got := cfg.Providers.TTS.String("secret"); got != "shh" {
		t.Errorf("tts secret: got %q, want %q", got, "shh")
	}
	if cfg.Journal.BadgerDir != "/var/lib/voxshift" {
		t.Errorf("badger_dir: got %q", cfg.Journal.BadgerDir)
	}
}

func TestToPipeline(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	pc, err := cfg.ToPipeline()
	if err != nil {
		t.Fatalf("ToPipeline: %v", err)
	}

	d := pipeline.DefaultConfig()
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"input device", pc.InputDevice, 3},
		{"output device from string", pc.OutputDevice, 5},
		{"sample rate", pc.SampleRate, 16000},
		{"chunk", pc.ChunkMs, 30},
		{"explicit zero aggressiveness", pc.VADAggressiveness, 0},
		{"silence", pc.MinSilenceMs, 450},
		{"default speech", pc.MinSpeechMs, d.MinSpeechMs},
		{"default padding", pc.PaddingMs, d.PaddingMs},
		{"language", pc.Language, "en"},
		{"voice", pc.VoiceID, "Ashley"},
		{"stt engine", pc.STTEngine, "whisper"},
		{"tts engine", pc.TTSEngine, "inworld"},
		{"model", pc.Model, "base"},
		{"utterance queue", pc.UtteranceQueueSize, 5},
		{"audio queue", pc.AudioQueueSize, 50},
		{"stream", pc.StreamSynthesis, true},
		{"noise words", len(pc.NoiseWords), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()): %v", err)
	}
	pc, err := cfg.ToPipeline()
	if err != nil {
		t.Fatalf("ToPipeline: %v", err)
	}
	if pc.InputDevice != pipeline.DefaultDevice || pc.OutputDevice != pipeline.DefaultDevice {
		t.Errorf("devices: got %d/%d, want default", pc.InputDevice, pc.OutputDevice)
	}
	if pc.Model != config.DefaultVoskPath {
		t.Errorf("model: got %q, want %q", pc.Model, config.DefaultVoskPath)
	}
	if pc.VADAggressiveness != 3 {
		t.Errorf("vad_aggressiveness: got %d, want 3", pc.VADAggressiveness)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		valid bool
		slog  slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"verbose", false, slog.LevelInfo},
		{"", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := tt.level.IsValid(); got != tt.valid {
				t.Errorf("IsValid: got %v, want %v", got, tt.valid)
			}
			if got := tt.level.Slog(); got != tt.slog {
				t.Errorf("Slog: got %v, want %v", got, tt.slog)
			}
		})
	}
}

func TestProviderEntry_Int(t *testing.T) {
	t.Parallel()

	e := config.ProviderEntry{Options: map[string]any{
		"int":    7,
		"float":  float64(4),
		"string": "12",
		"frac":   1.5,
		"bad":    "x",
		"list":   []any{1},
	}}

	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"int", 7, false},
		{"float", 4, false},
		{"string", 12, false},
		{"missing", -1, false},
		{"frac", 0, true},
		{"bad", 0, true},
		{"list", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := e.Int(tt.key, -1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProviderEntry_StringAndBool(t *testing.T) {
	t.Parallel()

	var e config.ProviderEntry
	if got := e.String("k"); got != "" {
		t.Errorf("String on nil options: got %q", got)
	}
	e.SetOption("k", "v")
	e.SetOption("flag", true)
	e.SetOption("num", 3)
	if got := e.String("k"); got != "v" {
		t.Errorf("String: got %q, want %q", got, "v")
	}
	if got := e.String("num"); got != "" {
		t.Errorf("String on int option: got %q, want empty", got)
	}
	if !e.Bool("flag", false) {
		t.Error("Bool: got false, want true")
	}
	if !e.Bool("missing", true) {
		t.Error("Bool default: got false, want true")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterSTT("fake", func(e config.ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
		if pc.SampleRate != 16000 {
			t.Errorf("factory got sample rate %d, want 16000", pc.SampleRate)
		}
		return &sttmock.Provider{Texts: []string{e.Model}}, nil
	})
	reg.RegisterTTS("fake", func(config.ProviderEntry, pipeline.Config) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterVAD("fake", func(config.ProviderEntry) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})
	reg.RegisterAudio("fake", func(config.ProviderEntry) (config.AudioBackend, error) {
		return config.AudioBackend{
			Source: func(pipeline.Config) (audio.Source, error) { return &audiomock.Source{}, nil },
			Sink:   func(pipeline.Config) (audio.Sink, error) { return &audiomock.Sink{}, nil },
		}, nil
	})

	pc := pipeline.DefaultConfig()
	pc.SampleRate = 16000
	entry := config.ProviderEntry{Name: "fake", Model: "hello"}

	p, err := reg.CreateSTT(entry, pc)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	text, err := p.Transcribe(context.Background(), []byte{0, 0})
	if err != nil || text != "hello" {
		t.Errorf("Transcribe: got (%q, %v), want (%q, nil)", text, err, "hello")
	}
	if _, err := reg.CreateTTS(entry, pc); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if _, err := reg.CreateVAD(entry); err != nil {
		t.Errorf("CreateVAD: %v", err)
	}
	b, err := reg.CreateAudio(entry)
	if err != nil {
		t.Fatalf("CreateAudio: %v", err)
	}
	if _, err := b.Source(pc); err != nil {
		t.Errorf("Source: %v", err)
	}
	if b.Devices != nil {
		t.Error("Devices: want nil for a backend without a lister")
	}
	if got := reg.Names("stt"); len(got) != 1 || got[0] != "fake" {
		t.Errorf("Names(stt): got %v, want [fake]", got)
	}
	if got := reg.Names("llm"); got != nil {
		t.Errorf("Names(llm): got %v, want nil", got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}
	pc := pipeline.DefaultConfig()

	_, errSTT := reg.CreateSTT(entry, pc)
	_, errTTS := reg.CreateTTS(entry, pc)
	_, errVAD := reg.CreateVAD(entry)
	_, errAudio := reg.CreateAudio(entry)
	for name, err := range map[string]error{"stt": errSTT, "tts": errTTS, "vad": errVAD, "audio": errAudio} {
		if !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("%s: got %v, want ErrProviderNotRegistered", name, err)
		}
		if err != nil && !strings.Contains(err.Error(), name+`/"nope"`) {
			t.Errorf("%s: error %q should name the provider", name, err)
		}
	}
}

func TestRegistry_Overwrite(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterVAD("x", func(config.ProviderEntry) (vad.Engine, error) {
		return nil, errors.New("first")
	})
	reg.RegisterVAD("x", func(config.ProviderEntry) (vad.Engine, error) {
		return nil, errors.New("second")
	})
	_, err := reg.CreateVAD(config.ProviderEntry{Name: "x"})
	if err == nil || err.Error() != "second" {
		t.Errorf("got %v, want the second factory's error", err)
	}
}
