// Package inworld provides a TTS provider backed by the Inworld text-to-speech
// REST API. It implements the tts.Provider interface.
//
// SynthesizeOnce calls POST /voice, which answers with one JSON document whose
// audioContent field holds the base64 audio. SynthesizeStream calls
// POST /voice:stream, which answers with newline-delimited JSON objects, each
// carrying one chunk in result.audioContent (or audioContent on older
// deployments). Audio is requested as LINEAR16; any RIFF header in front of a
// chunk is removed so callers always receive raw PCM.
//
// Authentication uses HTTP Basic with the API key and secret.
package inworld

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	// DefaultBaseURL is the Inworld TTS API root.
	DefaultBaseURL = "https://api.inworld.ai/tts/v1"

	// DefaultVoicesURL lists the voices available to the workspace.
	DefaultVoicesURL = "https://api.inworld.ai/voices/v1/voices"

	// DefaultModel is the synthesis model used when none is configured.
	DefaultModel = "inworld-tts-1.5-mini"

	defaultSampleRate = 48000
	defaultTimeout    = 60 * time.Second

	// maxLineBytes bounds one NDJSON line of the stream endpoint.
	maxLineBytes = 16 << 20
)

// Option is a functional option for configuring the Inworld Provider.
type Option func(*Provider)

// WithModel sets the Inworld model ID (e.g., "inworld-tts-1.5-max").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the TTS API root (used by tests and proxies).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithVoicesURL overrides the voice listing endpoint.
func WithVoicesURL(u string) Option {
	return func(p *Provider) {
		p.voicesURL = u
	}
}

// WithSampleRate sets the LINEAR16 output sample rate. Defaults to 48000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithTextNormalization enables server-side text normalisation.
func WithTextNormalization(on bool) Option {
	return func(p *Provider) {
		p.normalize = on
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the Inworld TTS API.
type Provider struct {
	auth       string
	baseURL    string
	voicesURL  string
	model      string
	sampleRate int
	normalize  bool
	httpClient *http.Client
}

// New creates a new Inworld Provider. key and secret must be non-empty.
func New(key, secret string, opts ...Option) (*Provider, error) {
	if key == "" || secret == "" {
		return nil, errors.New("inworld: key and secret must not be empty")
	}
	p := &Provider{
		auth:       "Basic " + base64.StdEncoding.EncodeToString([]byte(key+":"+secret)),
		baseURL:    DefaultBaseURL,
		voicesURL:  DefaultVoicesURL,
		model:      DefaultModel,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.sampleRate <= 0 {
		return nil, fmt.Errorf("inworld: invalid sample rate %d", p.sampleRate)
	}
	return p, nil
}

// Model returns the configured model ID.
func (p *Provider) Model() string { return p.model }

// ---- request / response types ----

type synthesizeRequest struct {
	Text        string        `json:"text"`
	VoiceID     string        `json:"voiceId"`
	ModelID     string        `json:"modelId"`
	AudioConfig audioConfig   `json:"audioConfig"`
	Config      requestConfig `json:"config"`
}

type audioConfig struct {
	AudioEncoding   string  `json:"audioEncoding"`
	SampleRateHertz int     `json:"sampleRateHertz"`
	SpeakingRate    float64 `json:"speakingRate"`
}

type requestConfig struct {
	ApplyTextNormalization bool `json:"applyTextNormalization"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// streamLine is one NDJSON object of the stream endpoint.
type streamLine struct {
	Result *struct {
		AudioContent string `json:"audioContent"`
	} `json:"result"`
	AudioContent string    `json:"audioContent"`
	Error        *apiError `json:"error"`
}

// ---- synthesis ----

// SynthesizeOnce calls POST /voice and returns the decoded PCM.
func (p *Provider) SynthesizeOnce(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	resp, err := p.post(ctx, "/voice", text, voice)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("inworld: decode /voice response: %w", err)
	}
	pcm, err := base64.StdEncoding.DecodeString(body.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("inworld: decode audioContent: %w", err)
	}
	return audio.StripWAVHeader(pcm), nil
}

// SynthesizeStream calls POST /voice:stream and yields one PCM chunk per
// NDJSON line. Lines that are not valid JSON or carry no audio are skipped.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		resp, err := p.post(ctx, "/voice:stream", text, voice)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			pcm, err := parseStreamLine(sc.Bytes())
			if err != nil {
				yield(nil, err)
				return
			}
			if len(pcm) == 0 {
				continue
			}
			if !yield(pcm, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(nil, fmt.Errorf("inworld: read stream: %w", err))
		}
	}
}

// parseStreamLine extracts the PCM of one stream line. It returns nil, nil for
// lines without usable audio and an error only when the server reports one.
func parseStreamLine(line []byte) ([]byte, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil, nil
	}
	if sl.Error != nil {
		return nil, fmt.Errorf("inworld: stream error %d: %s", sl.Error.Code, sl.Error.Message)
	}
	content := sl.AudioContent
	if sl.Result != nil && sl.Result.AudioContent != "" {
		content = sl.Result.AudioContent
	}
	if content == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, nil
	}
	return audio.StripWAVHeader(raw), nil
}

// post sends a synthesis request and returns the response when its status is 200.
func (p *Provider) post(ctx context.Context, endpoint, text string, voice tts.VoiceProfile) (*http.Response, error) {
	if voice.ID == "" {
		return nil, errors.New("inworld: voice.ID must not be empty")
	}
	body, err := json.Marshal(synthesizeRequest{
		Text:    text,
		VoiceID: voice.ID,
		ModelID: p.model,
		AudioConfig: audioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: p.sampleRate,
			SpeakingRate:    voice.Speed(),
		},
		Config: requestConfig{ApplyTextNormalization: p.normalize},
	})
	if err != nil {
		return nil, fmt.Errorf("inworld: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inworld: create request: %w", err)
	}
	req.Header.Set("Authorization", p.auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inworld: POST %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("inworld: POST %s returned status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// ---- ListVoices ----

type voicesResponse struct {
	Voices []inworldVoice `json:"voices"`
}

type inworldVoice struct {
	Name        string   `json:"name"`
	VoiceID     string   `json:"voiceId"`
	DisplayName string   `json:"displayName"`
	LangCode    string   `json:"langCode"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Source      string   `json:"source"`
}

// ListVoices calls the voices endpoint. The voice ID is the last path segment
// of the resource name (e.g. "workspaces/w/voices/Alex" yields "Alex").
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("inworld: list voices: %w", err)
	}
	req.Header.Set("Authorization", p.auth)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inworld: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inworld: list voices: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("inworld: list voices read: %w", err)
	}
	return parseVoicesResponse(data)
}

func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("inworld: list voices decode: %w", err)
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		id := v.VoiceID
		if v.Name != "" {
			id = path.Base(v.Name)
		}
		if id == "" || id == "." || id == "/" {
			continue
		}
		name := v.DisplayName
		if name == "" {
			name = id
		}
		meta := map[string]string{}
		if v.LangCode != "" {
			meta["language"] = v.LangCode
		}
		if v.Description != "" {
			meta["description"] = v.Description
		}
		if len(v.Tags) > 0 {
			meta["tags"] = strings.Join(v.Tags, ",")
		}
		if v.Source != "" {
			meta["source"] = v.Source
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       id,
			Name:     name,
			Provider: "inworld",
			Metadata: meta,
		})
	}
	return profiles, nil
}
