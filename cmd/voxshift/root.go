package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/pipeline"
)

var (
	// Global flags
	configPath string
	envFile    string
	logLevel   string

	// logLevelVar backs the default slog handler so the config watcher can
	// change the level at runtime.
	logLevelVar = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "voxshift",
	Short: "Real-time voice changer: speech in, synthetic speech out",
	Long: `voxshift listens to a microphone, cuts the audio into utterances with
voice activity detection, transcribes each utterance and plays the text back
through a text-to-speech voice.

Configuration is read from a YAML file. When the file is absent the built-in
defaults are used (Vosk for recognition, Inworld for synthesis, WebRTC VAD,
PortAudio devices). Credentials may also come from the environment or a .env
file:

  INWORLD_KEY, INWORLD_SECRET, INWORLD_MODEL_ID, INWORLD_VOICE_ID,
  INPUT_DEVICE_INDEX, OUTPUT_DEVICE_INDEX

Examples:
  voxshift list-devices
  voxshift list-voices
  voxshift test-tts --text "Bonjour" --play
  voxshift run --input-device 3 --output-device 5 --voice Dominique`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file consulted for missing credentials")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, listDevicesCmd, listVoicesCmd, testTTSCmd, testVADCmd, testSTTCmd)
}

// loadedConfig is the outcome of [loadConfig].
type loadedConfig struct {
	cfg    *config.Config
	lookup config.LookupFunc

	// fromFile is false when the defaults were used because the config file
	// does not exist.
	fromFile bool
}

// loadConfig reads the config file (or the defaults when the default path is
// missing), applies environment fallbacks and installs the logger.
func loadConfig(cmd *cobra.Command) (*loadedConfig, error) {
	lookup, err := config.DotEnv(envFile)
	if err != nil {
		return nil, err
	}

	lc := &loadedConfig{lookup: lookup, fromFile: true}
	lc.cfg, err = config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, err
		}
		lc.cfg = config.Default()
		lc.fromFile = false
	}
	if err := config.ApplyEnv(lc.cfg, lookup); err != nil {
		return nil, err
	}

	if logLevel != "" {
		lvl := config.LogLevel(logLevel)
		if !lvl.IsValid() {
			return nil, fmt.Errorf("--log-level %q is invalid", logLevel)
		}
		lc.cfg.Server.LogLevel = lvl
	}
	setupLogger(lc.cfg.Server.LogLevel)

	if !lc.fromFile {
		slog.Debug("config file not found, using defaults", "path", configPath)
	}
	return lc, nil
}

func setupLogger(level config.LogLevel) {
	logLevelVar.Set(level.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevelVar})))
}

// pipelineConfig converts cfg and re-validates it after flag overrides.
func pipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	pc, err := cfg.ToPipeline()
	if err != nil {
		return pipeline.Config{}, err
	}
	if err := pc.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	return pc, nil
}
