package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voxshift/internal/config"
)

func mapLookup(m map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv_FillsUnsetValues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Providers.TTSFallbacks = []config.ProviderEntry{{Name: "elevenlabs"}, {Name: "inworld"}}

	env := mapLookup(map[string]string{
		config.EnvInworldKey:    "key",
		config.EnvInworldSecret: "secret",
		config.EnvInworldModel:  "inworld-tts-1.5-max",
		config.EnvVoiceID:       "Hades",
		config.EnvInputDevice:   "2",
		config.EnvOutputDevice:  "7",
	})
	if err := config.ApplyEnv(cfg, env); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if cfg.Pipeline.VoiceID != "Hades" {
		t.Errorf("voice: got %q, want %q", cfg.Pipeline.VoiceID, "Hades")
	}
	for _, e := range []config.ProviderEntry{cfg.Providers.TTS, cfg.Providers.TTSFallbacks[1]} {
		if e.APIKey != "key" || e.String("secret") != "secret" || e.Model != "inworld-tts-1.5-max" {
			t.Errorf("inworld entry not filled: %+v", e)
		}
	}
	if cfg.Providers.TTSFallbacks[0].APIKey != "" {
		t.Error("non-inworld fallback should not receive inworld credentials")
	}

	pc, err := cfg.ToPipeline()
	if err != nil {
		t.Fatalf("ToPipeline: %v", err)
	}
	if pc.InputDevice != 2 || pc.OutputDevice != 7 {
		t.Errorf("devices: got %d/%d, want 2/7", pc.InputDevice, pc.OutputDevice)
	}
}

func TestApplyEnv_ConfigWins(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Pipeline.VoiceID = "Ashley"
	cfg.Providers.TTS.APIKey = "from-yaml"
	cfg.Providers.Audio.SetOption("input_device", 1)

	env := mapLookup(map[string]string{
		config.EnvInworldKey:  "from-env",
		config.EnvVoiceID:     "Hades",
		config.EnvInputDevice: "9",
	})
	if err := config.ApplyEnv(cfg, env); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Pipeline.VoiceID != "Ashley" {
		t.Errorf("voice: got %q, want %q", cfg.Pipeline.VoiceID, "Ashley")
	}
	if cfg.Providers.TTS.APIKey != "from-yaml" {
		t.Errorf("api key: got %q, want %q", cfg.Providers.TTS.APIKey, "from-yaml")
	}
	if got, _ := cfg.Providers.Audio.Int("input_device", -1); got != 1 {
		t.Errorf("input_device: got %d, want 1", got)
	}
}

func TestApplyEnv_BadDevice(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := config.ApplyEnv(cfg, mapLookup(map[string]string{config.EnvOutputDevice: "speakers"}))
	if err == nil {
		t.Fatal("expected error for non-numeric device index, got nil")
	}
}

func TestDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "INWORLD_VOICE_ID=Dennis\nVOXSHIFT_TEST_DOTENV_SHADOW=file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VOXSHIFT_TEST_DOTENV_SHADOW", "process")

	lookup, err := config.DotEnv(path)
	if err != nil {
		t.Fatalf("DotEnv: %v", err)
	}
	if v, ok := lookup("VOXSHIFT_TEST_DOTENV_SHADOW"); !ok || v != "process" {
		t.Errorf("process env should win, got (%q, %v)", v, ok)
	}
	if _, set := os.LookupEnv(config.EnvVoiceID); !set {
		if v, ok := lookup(config.EnvVoiceID); !ok || v != "Dennis" {
			t.Errorf("file value: got (%q, %v), want (Dennis, true)", v, ok)
		}
	}
}

func TestDotEnv_MissingFile(t *testing.T) {
	t.Parallel()

	lookup, err := config.DotEnv(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("DotEnv on missing file: %v", err)
	}
	if lookup == nil {
		t.Fatal("lookup is nil")
	}
}
