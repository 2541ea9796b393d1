// Package vosk provides an offline STT provider backed by the Vosk speech
// recognition toolkit (github.com/alphacep/vosk-api/go).
//
// Vosk models are small (tens of MB) and run comfortably on a CPU, which makes
// this the lightweight default engine. The model directory is loaded once; a
// fresh recognizer is created for every utterance.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

// DefaultModelPath is the conventional location of the small French model.
const DefaultModelPath = "models/vosk-model-small-fr-0.22"

// chunkBytes is how much audio is fed to the recognizer per call.
const chunkBytes = 4000

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithInputRate sets the sample rate of the PCM passed to Transcribe.
// Defaults to 48000.
func WithInputRate(rate int) Option {
	return func(p *Provider) { p.inputRate = rate }
}

// WithLogLevel sets the native Vosk log level. Negative values silence it.
// Defaults to -1.
func WithLogLevel(level int) Option {
	return func(p *Provider) { p.logLevel = level }
}

// Provider implements stt.Provider with a Vosk model.
type Provider struct {
	model     *vosk.VoskModel
	inputRate int
	logLevel  int

	closeOnce sync.Once
}

// New loads the Vosk model directory at modelPath.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("vosk: modelPath must not be empty")
	}
	p := &Provider{inputRate: 48000, logLevel: -1}
	for _, o := range opts {
		o(p)
	}

	vosk.SetLogLevel(p.logLevel)
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}
	p.model = model
	return p, nil
}

// Transcribe feeds the 16 kHz utterance to a new recognizer in fixed chunks
// and returns the final hypothesis.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	pcm16k, err := stt.Resample(pcm, p.inputRate)
	if err != nil {
		return "", fmt.Errorf("vosk: %w", err)
	}

	rec, err := vosk.NewRecognizer(p.model, float64(stt.TargetRate))
	if err != nil {
		return "", fmt.Errorf("vosk: create recognizer: %w", err)
	}
	defer rec.Free()

	for off := 0; off < len(pcm16k); off += chunkBytes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := min(off+chunkBytes, len(pcm16k))
		if rec.AcceptWaveform(pcm16k[off:end]) < 0 {
			return "", errors.New("vosk: recognizer rejected audio")
		}
	}

	return parseResult(rec.FinalResult())
}

// parseResult extracts "text" from a Vosk JSON result.
func parseResult(raw []byte) (string, error) {
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("vosk: parse result: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

// Close frees the model. Calling Close more than once is safe.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.model.Free()
		}
	})
	return nil
}
