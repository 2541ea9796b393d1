// Package openai provides a cloud STT provider backed by the OpenAI audio
// transcription API. It works with any OpenAI-compatible server that
// implements POST /audio/transcriptions (e.g., a local faster-whisper
// gateway) through [WithBaseURL].
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

// DefaultModel is the default transcription model.
const DefaultModel = "whisper-1"

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client    oai.Client
	model     oai.AudioModel
	language  string
	inputRate int
}

type config struct {
	baseURL    string
	language   string
	inputRate  int
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the ISO-639-1 language hint (e.g., "fr").
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithInputRate sets the sample rate of the PCM passed to Transcribe.
// Defaults to 48000.
func WithInputRate(rate int) Option {
	return func(c *config) { c.inputRate = rate }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxRetries sets how often the client retries failed requests.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// New constructs a Provider. If model is empty, [DefaultModel] is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{inputRate: 48000, maxRetries: 2}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:    oai.NewClient(reqOpts...),
		model:     oai.AudioModel(model),
		language:  cfg.language,
		inputRate: cfg.inputRate,
	}, nil
}

// Transcribe uploads the utterance as a 16 kHz WAV file.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	pcm16k, err := stt.Resample(pcm, p.inputRate)
	if err != nil {
		return "", fmt.Errorf("openai stt: %w", err)
	}
	wav := audio.EncodeWAV(pcm16k, audio.Mono(stt.TargetRate))

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: p.model,
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
