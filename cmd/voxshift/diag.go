package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/voxshift/internal/app"
	"github.com/MrWong99/voxshift/internal/config"
	"github.com/MrWong99/voxshift/internal/segment"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/audio/wavfile"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

// ─── test-tts ────────────────────────────────────────────────────────────────

var ttsFlags struct {
	text   string
	voice  string
	output string
	play   bool
	device int
}

var testTTSCmd = &cobra.Command{
	Use:   "test-tts",
	Short: "Synthesize one sentence to a WAV file",
	Long: `Synthesize --text with the configured TTS provider and write the result
as a mono 16-bit WAV at the pipeline sample rate. With --play the audio is
also sent to the output device.

Examples:
  voxshift test-tts
  voxshift test-tts --text "Salut tout le monde" --voice Dominique --play`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output-device") {
			lc.cfg.Providers.Audio.SetOption("output_device", ttsFlags.device)
		}
		pc, err := pipelineConfig(lc.cfg)
		if err != nil {
			return err
		}
		voice := ttsFlags.voice
		if voice == "" {
			voice = pc.VoiceID
		}

		reg := newRegistry()
		p, err := app.BuildTTS(reg, lc.cfg.Providers.TTS, lc.cfg.Providers.TTSFallbacks, pc)
		if err != nil {
			return err
		}
		defer app.CloseIfCloser(p)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		pcm, err := synthesizeToFile(ctx, p, ttsFlags.text, voice, ttsFlags.output, pc.SampleRate)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes, %s)\n",
			labelStyle.Render("wrote"), ttsFlags.output, len(pcm), pc.Format().Duration(len(pcm)).Round(time.Millisecond))

		if !ttsFlags.play {
			return nil
		}
		backend, err := reg.CreateAudio(lc.cfg.Providers.Audio)
		if err != nil {
			return err
		}
		if backend.Sink == nil {
			return fmt.Errorf("audio backend %q cannot play", lc.cfg.Providers.Audio.Name)
		}
		sink, err := backend.Sink(pc)
		if err != nil {
			return err
		}
		return play(ctx, sink, pcm)
	},
}

func init() {
	f := testTTSCmd.Flags()
	f.StringVar(&ttsFlags.text, "text", "Bonjour, ceci est un test de synthèse vocale.", "text to synthesize")
	f.StringVar(&ttsFlags.voice, "voice", "", "voice id (default pipeline.voice_id)")
	f.StringVarP(&ttsFlags.output, "output", "o", "test_output.wav", "WAV file to write")
	f.BoolVar(&ttsFlags.play, "play", false, "also play the audio")
	f.IntVar(&ttsFlags.device, "output-device", -1, "playback device index for --play")
}

// synthesizeToFile synthesizes text in one request and saves it as a WAV.
func synthesizeToFile(ctx context.Context, p tts.Provider, text, voice, path string, rate int) ([]byte, error) {
	if text == "" {
		return nil, errors.New("--text must not be empty")
	}
	pcm, err := p.SynthesizeOnce(ctx, text, tts.Voice(voice))
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("synthesize: provider returned no audio")
	}
	if err := wavfile.WriteFile(path, pcm, rate); err != nil {
		return nil, err
	}
	return pcm, nil
}

func play(ctx context.Context, sink audio.Sink, pcm []byte) error {
	if err := sink.Start(ctx); err != nil {
		return fmt.Errorf("start output: %w", err)
	}
	werr := sink.Write(ctx, pcm)
	if err := sink.Stop(); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		return fmt.Errorf("play: %w", werr)
	}
	return nil
}

// ─── test-vad ────────────────────────────────────────────────────────────────

var vadFlags struct {
	device    int
	outputDir string
	limit     int
}

var testVADCmd = &cobra.Command{
	Use:   "test-vad",
	Short: "Save detected utterances as WAV files",
	Long: `Capture audio and run only voice activity detection and utterance
buffering. Every released utterance is written to the output directory as
utterance_N.wav. Press Ctrl+C to stop.

Examples:
  voxshift test-vad --input-device 3 --output-dir vad_test`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lc, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("input-device") {
			lc.cfg.Providers.Audio.SetOption("input_device", vadFlags.device)
		}
		pc, err := pipelineConfig(lc.cfg)
		if err != nil {
			return err
		}

		reg := newRegistry()
		engine, err := reg.CreateVAD(lc.cfg.Providers.VAD)
		if err != nil {
			return err
		}
		defer app.CloseIfCloser(engine)
		seg, err := segment.NewSegmenter(engine, pc.VAD())
		if err != nil {
			return err
		}
		defer seg.Close()
		buf, err := segment.NewUtteranceBuffer(pc.Buffer())
		if err != nil {
			return err
		}

		backend, err := reg.CreateAudio(lc.cfg.Providers.Audio)
		if err != nil {
			return err
		}
		if backend.Source == nil {
			return fmt.Errorf("audio backend %q cannot capture", lc.cfg.Providers.Audio.Name)
		}
		src, err := backend.Source(pc)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("listening, press Ctrl+C to stop"))
		n, err := captureUtterances(ctx, src, seg, buf, utteranceWriter{
			dir:  vadFlags.outputDir,
			rate: pc.SampleRate,
			out:  cmd.OutOrStdout(),
		}, vadFlags.limit)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d utterance(s) in %s\n", labelStyle.Render("saved"), n, vadFlags.outputDir)
		return err
	},
}

func init() {
	f := testVADCmd.Flags()
	f.IntVar(&vadFlags.device, "input-device", -1, "capture device index")
	f.StringVar(&vadFlags.outputDir, "output-dir", "vad_test", "directory for utterance WAV files")
	f.IntVar(&vadFlags.limit, "max", 0, "stop after this many utterances (0 = until interrupted)")
}

// utteranceWriter stores each utterance as utterance_N.wav in dir.
type utteranceWriter struct {
	dir  string
	rate int
	out  io.Writer
}

func (w utteranceWriter) write(n int, pcm []byte) error {
	path := filepath.Join(w.dir, fmt.Sprintf("utterance_%d.wav", n))
	if err := wavfile.WriteFile(path, pcm, w.rate); err != nil {
		return err
	}
	if w.out != nil {
		fmt.Fprintf(w.out, "%s %s (%s)\n", labelStyle.Render("utterance"), path,
			audio.Mono(w.rate).Duration(len(pcm)).Round(time.Millisecond))
	}
	return nil
}

// captureUtterances runs src through seg and buf until ctx ends or limit
// utterances (when positive) were written. It returns the number written.
// Frames are classified on the capture goroutine. Files are written on the
// caller's goroutine.
func captureUtterances(ctx context.Context, src audio.Source, seg *segment.Segmenter, buf *segment.UtteranceBuffer, w utteranceWriter, limit int) (int, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", w.dir, err)
	}

	utterances := make(chan []byte, 8)
	err := src.Start(ctx, func(frame []byte) {
		pcm, ok := buf.Push(frame, seg.IsSpeech(frame))
		if !ok {
			return
		}
		select {
		case utterances <- pcm:
		default:
			slog.Warn("test-vad: writer behind, utterance dropped", "bytes", len(pcm))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("start capture: %w", err)
	}
	defer func() {
		if err := src.Stop(); err != nil {
			slog.Warn("test-vad: stop capture", "err", err)
		}
	}()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return n, nil
		case pcm := <-utterances:
			n++
			if err := w.write(n, pcm); err != nil {
				return n - 1, err
			}
			if limit > 0 && n >= limit {
				return n, nil
			}
		}
	}
}

// ─── test-stt ────────────────────────────────────────────────────────────────

var sttFlags struct {
	file   string
	engine string
	model  string
}

var testSTTCmd = &cobra.Command{
	Use:   "test-stt",
	Short: "Transcribe a WAV file",
	Long: `Transcribe a WAV file with the configured speech-to-text provider. Files
at any sample rate are accepted; stereo input is downmixed.

Examples:
  voxshift test-stt --file vad_test/utterance_1.wav
  voxshift test-stt --file sample.wav --engine whisper-native --model models/ggml-small.bin`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sttFlags.file == "" {
			return errors.New("--file is required")
		}
		lc, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("engine") {
			lc.cfg.Providers.STT = config.ProviderEntry{Name: sttFlags.engine}
			lc.cfg.Providers.STTFallbacks = nil
			if sttFlags.engine == config.DefaultSTT {
				lc.cfg.Providers.STT.Model = config.DefaultVoskPath
			}
		}
		if cmd.Flags().Changed("model") {
			lc.cfg.Providers.STT.Model = sttFlags.model
		}
		if err := config.Validate(lc.cfg); err != nil {
			return err
		}

		pcm, rate, err := wavfile.ReadFile(sttFlags.file)
		if err != nil {
			return err
		}
		pc, err := pipelineConfig(lc.cfg)
		if err != nil {
			return err
		}
		pc.SampleRate = rate

		p, err := app.BuildSTT(newRegistry(), lc.cfg.Providers.STT, lc.cfg.Providers.STTFallbacks, pc)
		if err != nil {
			return err
		}
		defer app.CloseIfCloser(p)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		text, err := transcribeFile(ctx, p, pcm)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render("»")+" "+text)
		return nil
	},
}

func init() {
	f := testSTTCmd.Flags()
	f.StringVarP(&sttFlags.file, "file", "f", "", "WAV file to transcribe")
	f.StringVar(&sttFlags.engine, "engine", "", "speech-to-text provider name")
	f.StringVar(&sttFlags.model, "model", "", "model path or name")
}

func transcribeFile(ctx context.Context, p stt.Provider, pcm []byte) (string, error) {
	text, err := p.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if text == "" {
		return "", errors.New("transcribe: no speech recognised")
	}
	return text, nil
}
