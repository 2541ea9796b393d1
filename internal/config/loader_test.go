package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxshift/internal/config"
)

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader(empty): %v", err)
	}
	if cfg.Providers.STT.Name != config.DefaultSTT {
		t.Errorf("stt: got %q, want %q", cfg.Providers.STT.Name, config.DefaultSTT)
	}
	if cfg.Providers.TTS.Name != config.DefaultTTS {
		t.Errorf("tts: got %q, want %q", cfg.Providers.TTS.Name, config.DefaultTTS)
	}
	if cfg.Providers.VAD.Name != config.DefaultVAD {
		t.Errorf("vad: got %q, want %q", cfg.Providers.VAD.Name, config.DefaultVAD)
	}
	if cfg.Providers.Audio.Name != config.DefaultAudio {
		t.Errorf("audio: got %q, want %q", cfg.Providers.Audio.Name, config.DefaultAudio)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	yaml := `
pipeline:
  sample_rat: 16000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "sample_rat") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "unknown stt engine",
			yaml: "providers:\n  stt:\n    name: sphinx\n",
			want: []string{`providers.stt.name "sphinx" is invalid`},
		},
		{
			name: "unknown stt fallback",
			yaml: "providers:\n  stt_fallbacks:\n    - name: vosk\n    - name: kaldi\n",
			want: []string{`providers.stt_fallbacks[1].name "kaldi"`},
		},
		{
			name: "bad log level",
			yaml: "server:\n  log_level: bananas\n",
			want: []string{"server.log_level"},
		},
		{
			name: "vad aggressiveness out of range",
			yaml: "pipeline:\n  vad_aggressiveness: 4\n",
			want: []string{"vad_aggressiveness must be in [0, 3]"},
		},
		{
			name: "negative queue",
			yaml: "pipeline:\n  audio_queue_size: -1\n",
			want: []string{"queue sizes must be positive"},
		},
		{
			name: "bad device option",
			yaml: "providers:\n  audio:\n    options:\n      input_device: mic\n",
			want: []string{"providers.audio", "input_device"},
		},
		{
			name: "two journals",
			yaml: "journal:\n  postgres_dsn: postgres://x\n  badger_dir: /tmp/j\n",
			want: []string{"mutually exclusive"},
		},
		{
			name: "joined",
			yaml: "server:\n  log_level: loud\nproviders:\n  stt:\n    name: nope\n",
			want: []string{"server.log_level", `providers.stt.name "nope"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q should contain %q", err, w)
				}
			}
		})
	}
}

func TestValidate_UnknownTTSOnlyWarns(t *testing.T) {
	t.Parallel()

	yaml := "providers:\n  tts:\n    name: my-custom-tts\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Errorf("unknown tts provider should not fail validation, got: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()

	zero := 0
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{SampleRate: 16000, VADAggressiveness: &zero},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "vosk", Model: "models/en"},
		},
	}
	config.ApplyDefaults(cfg)

	if cfg.Pipeline.SampleRate != 16000 {
		t.Errorf("sample_rate: got %d, want 16000", cfg.Pipeline.SampleRate)
	}
	if *cfg.Pipeline.VADAggressiveness != 0 {
		t.Errorf("vad_aggressiveness: got %d, want 0", *cfg.Pipeline.VADAggressiveness)
	}
	if cfg.Providers.STT.Model != "models/en" {
		t.Errorf("stt model: got %q, want %q", cfg.Providers.STT.Model, "models/en")
	}
	if cfg.Pipeline.ChunkMs != 20 {
		t.Errorf("chunk_ms: got %d, want 20", cfg.Pipeline.ChunkMs)
	}
}

func TestApplyDefaults_NoVoskPathForOtherEngines(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Providers: config.ProvidersConfig{STT: config.ProviderEntry{Name: "deepgram"}}}
	config.ApplyDefaults(cfg)
	if cfg.Providers.STT.Model != "" {
		t.Errorf("stt model: got %q, want empty", cfg.Providers.STT.Model)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxshift.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogWarn)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, want os.ErrNotExist", err)
	}
}
