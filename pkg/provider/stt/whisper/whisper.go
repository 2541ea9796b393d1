// Package whisper transcribes utterances with whisper.cpp.
//
// [Provider] uploads each utterance to a whisper-server process
// (POST /inference, multipart WAV). [NativeProvider] runs a ggml model
// in-process through the cgo bindings. Both resample to 16 kHz first and both
// accept an initial prompt, which voxshift fills with the configured
// vocabulary so that proper nouns are recognised before they need correcting.
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("fr"),
//	    whisper.WithPrompt("Eldrinax, Tour des Murmures"),
//	)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

const (
	defaultLanguage  = "fr"
	defaultInputRate = 48000
	inferencePath    = "/inference"
)

// ServerError is returned when whisper-server answers with a non-200 status.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("whisper: server returned HTTP %d: %s", e.StatusCode, e.Body)
}

var _ stt.Provider = (*Provider)(nil)

type Option func(*Provider)

// WithModel names the model for servers that host several. Empty keeps the
// server's startup model.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the recognition language. Defaults to "fr".
func WithLanguage(lang string) Option { return func(p *Provider) { p.language = lang } }

// WithInputRate sets the sample rate of the PCM given to Transcribe.
// Defaults to 48000.
func WithInputRate(rate int) Option { return func(p *Provider) { p.inputRate = rate } }

// WithPrompt sets the initial prompt used to bias decoding.
func WithPrompt(prompt string) Option { return func(p *Provider) { p.prompt = prompt } }

// WithTemperature sets the sampling temperature. Negative values leave the
// server default in place.
func WithTemperature(t float64) Option { return func(p *Provider) { p.temperature = t } }

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.httpClient = c } }

// Provider is an stt.Provider for a remote whisper-server.
type Provider struct {
	endpoint    string
	model       string
	language    string
	prompt      string
	temperature float64
	inputRate   int
	httpClient  *http.Client
}

// New returns a Provider for the server at serverURL, such as
// "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		endpoint:    strings.TrimRight(serverURL, "/") + inferencePath,
		language:    defaultLanguage,
		temperature: -1,
		inputRate:   defaultInputRate,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if p.inputRate <= 0 {
		return nil, fmt.Errorf("whisper: invalid input rate %d", p.inputRate)
	}
	return p, nil
}

func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	pcm16k, err := stt.Resample(pcm, p.inputRate)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	body, contentType, err := p.form(audio.EncodeWAV(pcm16k, audio.Mono(stt.TargetRate)))
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &ServerError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// form encodes wav and the decoding parameters as multipart/form-data.
func (p *Provider) form(wav []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", err
	}

	fields := [][2]string{{"response_format", "json"}}
	if p.language != "" {
		fields = append(fields, [2]string{"language", p.language})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	if p.prompt != "" {
		fields = append(fields, [2]string{"prompt", p.prompt})
	}
	if p.temperature >= 0 {
		fields = append(fields, [2]string{"temperature", strconv.FormatFloat(p.temperature, 'f', -1, 64)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
