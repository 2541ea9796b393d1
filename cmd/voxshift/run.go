package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxshift/internal/app"
	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/observe"
)

var runFlags struct {
	inputDevice  int
	outputDevice int
	voice        string
	stt          string
	model        string
	language     string
	aggressive   int
	quiet        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the voice changer until interrupted",
	Long: `Run the full pipeline: capture, voice activity detection, transcription,
synthesis and playback. Press Ctrl+C to stop.

Flags override the matching configuration values for this run only. When a
configuration file is in use it is watched; log level changes apply live,
everything else is reported as needing a restart.

Examples:
  voxshift run
  voxshift run --input-device 3 --output-device 5 --voice Dominique
  voxshift run --stt whisper-native --model models/ggml-small.bin --language en`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, lc.cfg); err != nil {
			return err
		}
		if err := config.Validate(lc.cfg); err != nil {
			return err
		}
		return runPipeline(cmd, lc)
	},
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.inputDevice, "input-device", -1, "capture device index (see list-devices)")
	f.IntVar(&runFlags.outputDevice, "output-device", -1, "playback device index (see list-devices)")
	f.StringVar(&runFlags.voice, "voice", "", "synthesis voice id")
	f.StringVar(&runFlags.stt, "stt", "", "speech-to-text provider name")
	f.StringVar(&runFlags.model, "model", "", "speech-to-text model path or name")
	f.StringVar(&runFlags.language, "language", "", "recognition language code")
	f.IntVar(&runFlags.aggressive, "vad-aggressiveness", 3, "VAD aggressiveness from 0 to 3")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "do not print transcriptions and states")
}

// applyRunFlags copies every flag the user set onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("input-device") {
		cfg.Providers.Audio.SetOption("input_device", runFlags.inputDevice)
	}
	if f.Changed("output-device") {
		cfg.Providers.Audio.SetOption("output_device", runFlags.outputDevice)
	}
	if f.Changed("voice") {
		cfg.Pipeline.VoiceID = runFlags.voice
	}
	if f.Changed("stt") {
		cfg.Providers.STT = config.ProviderEntry{Name: runFlags.stt}
		if runFlags.stt == config.DefaultSTT && !f.Changed("model") {
			cfg.Providers.STT.Model = config.DefaultVoskPath
		}
	}
	if f.Changed("model") {
		cfg.Providers.STT.Model = runFlags.model
	}
	if f.Changed("language") {
		cfg.Pipeline.Language = runFlags.language
	}
	if f.Changed("vad-aggressiveness") {
		v := runFlags.aggressive
		cfg.Pipeline.VADAggressiveness = &v
	}
	return nil
}

func runPipeline(cmd *cobra.Command, lc *loadedConfig) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voxshift",
		Registerer:  registry,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	cfg := lc.cfg
	opts := []app.Option{
		app.WithRegistry(newRegistry()),
		app.WithLevelVar(logLevelVar),
		app.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	}
	if !runFlags.quiet {
		opts = append(opts, app.WithObserver(consoleObserver{w: cmd.OutOrStdout()}))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("voxshift starting",
		"config", configPath,
		"stt", cfg.Providers.STT.Name,
		"tts", cfg.Providers.TTS.Name,
		"vad", cfg.Providers.VAD.Name,
		"audio", cfg.Providers.Audio.Name,
		"listen_addr", cfg.Server.ListenAddr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })

	if lc.fromFile {
		w, err := config.NewWatcher(configPath, application.Reload, config.WithEnv(lc.lookup))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}

	runErr := g.Wait()

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	fmt.Fprintln(os.Stderr, "goodbye")
	return nil
}
