package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvInworldKey    = "INWORLD_KEY"
	EnvInworldSecret = "INWORLD_SECRET"
	EnvInworldModel  = "INWORLD_MODEL_ID"
	EnvVoiceID       = "INWORLD_VOICE_ID"
	EnvInputDevice   = "INPUT_DEVICE_INDEX"
	EnvOutputDevice  = "OUTPUT_DEVICE_INDEX"
)

// LookupFunc resolves an environment variable. It has the signature of
// [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// DotEnv reads the dotenv file at path and returns a [LookupFunc] that prefers
// the process environment and falls back to the file. A missing file is not an
// error; the returned lookup then consults the process environment only.
func DotEnv(path string) (LookupFunc, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	}, nil
}

// ApplyEnv fills credentials, voice and device selection from the
// environment when the YAML left them unset. Values already present in cfg
// always win.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	if cfg.Pipeline.VoiceID == "" {
		cfg.Pipeline.VoiceID = get(EnvVoiceID)
	}

	for _, e := range inworldEntries(cfg) {
		if e.APIKey == "" {
			e.APIKey = get(EnvInworldKey)
		}
		if e.String("secret") == "" {
			if s := get(EnvInworldSecret); s != "" {
				e.SetOption("secret", s)
			}
		}
		if e.Model == "" {
			e.Model = get(EnvInworldModel)
		}
	}

	for opt, key := range map[string]string{"input_device": EnvInputDevice, "output_device": EnvOutputDevice} {
		if _, set := cfg.Providers.Audio.Options[opt]; set {
			continue
		}
		v := get(key)
		if v == "" {
			continue
		}
		idx, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		cfg.Providers.Audio.SetOption(opt, idx)
	}
	return nil
}

func inworldEntries(cfg *Config) []*ProviderEntry {
	var out []*ProviderEntry
	if cfg.Providers.TTS.Name == "inworld" {
		out = append(out, &cfg.Providers.TTS)
	}
	for i := range cfg.Providers.TTSFallbacks {
		if cfg.Providers.TTSFallbacks[i].Name == "inworld" {
			out = append(out, &cfg.Providers.TTSFallbacks[i])
		}
	}
	return out
}
