package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs whisper.cpp in-process. The model is loaded once and
// each Transcribe call gets its own inference context, so calls may overlap.
type NativeProvider struct {
	model     whisperlib.Model
	language  string
	prompt    string
	threads   uint
	inputRate int

	closeOnce sync.Once
	closeErr  error
}

type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the recognition language. Defaults to "fr".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeInputRate sets the sample rate of the PCM given to Transcribe.
// Defaults to 48000.
func WithNativeInputRate(rate int) NativeOption {
	return func(p *NativeProvider) { p.inputRate = rate }
}

// WithNativePrompt sets the initial prompt used to bias decoding.
func WithNativePrompt(prompt string) NativeOption {
	return func(p *NativeProvider) { p.prompt = prompt }
}

// WithNativeThreads caps the CPU threads used per inference. Zero keeps the
// library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NewNative loads the ggml model at modelPath.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{language: defaultLanguage, inputRate: defaultInputRate}
	for _, o := range opts {
		o(p)
	}
	if p.inputRate <= 0 {
		return nil, fmt.Errorf("whisper: invalid input rate %d", p.inputRate)
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p.model = model
	slog.Info("whisper: model loaded", "path", modelPath, "language", p.language)
	return p, nil
}

// Close releases the model. Later calls return the first result.
func (p *NativeProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.closeErr = p.model.Close()
		}
	})
	return p.closeErr
}

// Transcribe runs one inference over pcm. whisper.cpp cannot be interrupted,
// so ctx is only consulted before the run.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pcm16k, err := stt.Resample(pcm, p.inputRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	wctx, err := p.newContext()
	if err != nil {
		return "", err
	}
	if err := wctx.Process(audio.Float32(pcm16k), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}
	return joinSegments(wctx)
}

func (p *NativeProvider) newContext() (whisperlib.Context, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: unsupported language, keeping model default", "language", p.language, "err", err)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	return wctx, nil
}

// segmentReader is the part of whisperlib.Context joinSegments needs.
type segmentReader interface {
	NextSegment() (whisperlib.Segment, error)
}

func joinSegments(r segmentReader) (string, error) {
	var b strings.Builder
	for {
		seg, err := r.NextSegment()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
}
