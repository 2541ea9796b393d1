// Package coqui provides a local Coqui TTS-backed TTS provider that connects to
// either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST API.
// It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; voice catalogue is retrieved from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; voice catalogue is retrieved from
//     GET /studio_speakers.
//
// Both servers operate in batch mode (one HTTP call per request). SynthesizeStream
// therefore splits the text into sentences and dispatches up to
// sentenceLookahead requests concurrently, yielding the audio in sentence order.
//
// Typical usage:
//
//	p, _ := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("fr"),
//	    coqui.WithOutputSampleRate(48000),
//	)
//	pcm, err := p.SynthesizeOnce(ctx, "Bonjour", tts.Voice("p225"))
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ---- constants ----

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// sentenceLookahead controls how many synthesis requests may be in flight
	// at once while streaming.
	sentenceLookahead = 4

	// pcmChunkSize is the size of each PCM chunk yielded by SynthesizeStream.
	pcmChunkSize = 4096
)

// ---- APIMode ----

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// ---- options ----

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de", "fr"). Defaults to "en" if not set.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate configures the provider to resample synthesised PCM to
// the given sample rate. When set to 0 (default), PCM is returned at the
// model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by a locally-running Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// ---- internal request/response types ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// audioResult carries a synthesised PCM byte slice or an error from a worker goroutine.
type audioResult struct {
	pcm []byte
	err error
}

// studioSpeakersResponse maps speaker names to opaque speaker data.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

func (p *Provider) checkVoice(voice tts.VoiceProfile) error {
	// Standard mode works without a voice for single-speaker models.
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}
	return nil
}

// ---- synthesis ----

// SynthesizeOnce synthesises the whole text in a single request.
func (p *Provider) SynthesizeOnce(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if err := p.checkVoice(voice); err != nil {
		return nil, err
	}
	return p.synthesize(ctx, text, voice)
}

// SynthesizeStream splits text into sentences, synthesises them with up to
// sentenceLookahead concurrent requests, and yields the PCM in sentence order
// as fixed-size chunks. The first failing sentence ends the stream with its error.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if err := p.checkVoice(voice); err != nil {
			yield(nil, err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// resultQueue carries ordered future channels so results are drained in order.
		resultQueue := make(chan chan audioResult, sentenceLookahead)

		go func() {
			defer close(resultQueue)
			for _, sentence := range tts.SplitSentences(text) {
				ch := make(chan audioResult, 1)
				select {
				case resultQueue <- ch:
				case <-ctx.Done():
					return
				}
				go func(s string, out chan<- audioResult) {
					pcm, err := p.synthesize(ctx, s, voice)
					out <- audioResult{pcm: pcm, err: err}
				}(sentence, ch)
			}
		}()

		for ch := range resultQueue {
			var result audioResult
			select {
			case result = <-ch:
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			}
			if result.err != nil {
				yield(nil, result.err)
				return
			}
			for chunk := range tts.Chunks(result.pcm, pcmChunkSize) {
				if !yield(chunk, nil) {
					return
				}
			}
		}
	}
}

// synthesize dispatches to the appropriate implementation based on the configured
// API mode and converts the WAV response to mono PCM at the output rate.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, error) {
	var (
		wav []byte
		err error
	)
	if p.apiMode == APIModeStandard {
		wav, err = p.synthesizeStandard(ctx, sentence, voice)
	} else {
		wav, err = p.synthesizeXTTS(ctx, sentence, voice)
	}
	if err != nil {
		return nil, err
	}
	return p.toPCM(wav)
}

// toPCM strips the WAV container, downmixes and resamples when configured.
func (p *Provider) toPCM(wav []byte) ([]byte, error) {
	pcm, format, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	pcm = audio.DownmixToMono(pcm, format.Channels)
	if p.outputRate > 0 && format.SampleRate != p.outputRate {
		pcm, err = audio.Resample(pcm, format.SampleRate, p.outputRate)
		if err != nil {
			return nil, fmt.Errorf("coqui: resample: %w", err)
		}
	}
	return pcm, nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode) and
// returns the WAV body.
func (p *Provider) synthesizeXTTS(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, error) {
	data, err := json.Marshal(ttsRequest{
		Text:       sentence,
		SpeakerWav: voice.ID,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	return p.fetchWAV(req, "POST "+ttsEndpoint)
}

// synthesizeStandard performs a single GET /api/tts request (standard server mode)
// and returns the WAV body.
func (p *Provider) synthesizeStandard(ctx context.Context, sentence string, voice tts.VoiceProfile) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")
	return p.fetchWAV(req, "GET "+apiTTSEndpoint)
}

func (p *Provider) fetchWAV(req *http.Request, what string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s returned status %d", what, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// ---- ListVoices ----

// ListVoices retrieves the list of available voices from the Coqui server.
//
// In APIModeXTTS, it calls GET /studio_speakers. In APIModeStandard, it calls
// GET /details and returns one VoiceProfile per speaker for multi-speaker
// models, or a single VoiceProfile named after the model otherwise.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	var raw studioSpeakersResponse
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return profiles, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		profiles := make([]tts.VoiceProfile, 0, len(speakers))
		for _, spk := range speakers {
			profiles = append(profiles, tts.VoiceProfile{
				ID:       spk,
				Name:     spk,
				Provider: "coqui",
				Metadata: map[string]string{
					"type":       "speaker",
					"model_name": details.ModelName,
				},
			})
		}
		return profiles, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.VoiceProfile{{
		ID:       name,
		Name:     name,
		Provider: "coqui",
		Metadata: map[string]string{
			"type":       "single-speaker",
			"model_name": name,
		},
	}}, nil
}
