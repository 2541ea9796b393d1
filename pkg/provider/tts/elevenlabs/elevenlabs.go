// Package elevenlabs provides an ElevenLabs-backed TTS provider. It implements
// the tts.Provider interface.
//
// SynthesizeOnce uses the REST text-to-speech endpoint and receives the whole
// utterance as raw PCM. SynthesizeStream uses the stream-input WebSocket API:
// the text is sent sentence by sentence followed by an empty flush message,
// and base64 audio frames are yielded as they arrive until the server marks
// the stream final.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultAPIBase    = "https://api.elevenlabs.io/v1"
	defaultWSBase     = "wss://api.elevenlabs.io/v1"
	defaultModel      = "eleven_flash_v2_5"
	defaultSampleRate = 48000
	defaultTimeout    = 60 * time.Second
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithSampleRate selects the pcm_<rate> output format. ElevenLabs supports
// 16000, 22050, 24000, 44100 and 48000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithBaseURL overrides the REST API root.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.apiBase = strings.TrimRight(u, "/")
	}
}

// WithWebSocketURL overrides the WebSocket API root.
func WithWebSocketURL(u string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(u, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey     string
	model      string
	sampleRate int
	apiBase    string
	wsBase     string
	httpClient *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		apiBase:    defaultAPIBase,
		wsBase:     defaultWSBase,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *Provider) outputFormat() string {
	return fmt.Sprintf("pcm_%d", p.sampleRate)
}

// ---- message types ----

// textMessage is the JSON payload sent for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is the "begin of input" message that authenticates the stream.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is one message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type restRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

func settingsFor(voice tts.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if voice.SpeedFactor > 0 {
		vs.Speed = voice.SpeedFactor
	}
	return vs
}

// ---- SynthesizeOnce ----

// SynthesizeOnce calls POST /text-to-speech/{voice} and returns the raw PCM body.
func (p *Provider) SynthesizeOnce(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	body, err := json.Marshal(restRequest{Text: text, ModelID: p.model, VoiceSettings: settingsFor(voice)})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", p.apiBase, url.PathEscape(voice.ID), p.outputFormat())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: synthesize: unexpected status %d", resp.StatusCode)
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	return pcm, nil
}

// ---- SynthesizeStream ----

// SynthesizeStream opens a WebSocket to ElevenLabs when iteration starts,
// sends text sentence by sentence and yields PCM chunks as they arrive.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if voice.ID == "" {
			yield(nil, errors.New("elevenlabs: voice.ID must not be empty"))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		conn, _, err := websocket.Dial(ctx, p.buildURLForVoice(voice.ID), nil)
		if err != nil {
			yield(nil, fmt.Errorf("elevenlabs: dial: %w", err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(4 << 20)

		// Writes happen in their own goroutine so a slow consumer of the
		// sequence never stalls the request side of the socket.
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- p.writeText(ctx, conn, text, voice)
		}()

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return
				}
				select {
				case werr := <-writeErr:
					if werr != nil {
						yield(nil, werr)
						return
					}
				default:
				}
				yield(nil, fmt.Errorf("elevenlabs: read: %w", err))
				return
			}

			pcm, final, err := parseAudioResponse(msg)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(pcm) > 0 && !yield(pcm, nil) {
				return
			}
			if final {
				conn.Close(websocket.StatusNormalClosure, "done")
				return
			}
		}
	}
}

// writeText sends the BOI message, one message per sentence and the final
// empty flush message.
func (p *Provider) writeText(ctx context.Context, conn *websocket.Conn, text string, voice tts.VoiceProfile) error {
	boi, _ := json.Marshal(boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: settingsFor(voice),
		XiAPIKey:      p.apiKey,
	})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		return fmt.Errorf("elevenlabs: send BOI: %w", err)
	}
	for _, sentence := range tts.SplitSentences(text) {
		// A trailing space tells ElevenLabs the word is complete.
		msg, err := buildWSMessage(sentence+" ", nil)
		if err != nil {
			return fmt.Errorf("elevenlabs: marshal text: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}
	flush, _ := buildWSMessage("", nil)
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		return fmt.Errorf("elevenlabs: send flush: %w", err)
	}
	return nil
}

// parseAudioResponse decodes one server message. Messages that are not JSON
// are ignored; an error field aborts the stream.
func parseAudioResponse(msg []byte) (pcm []byte, final bool, err error) {
	var resp audioResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, false, nil
	}
	if resp.Error != "" {
		return nil, false, fmt.Errorf("elevenlabs: stream error: %s: %s", resp.Error, resp.Message)
	}
	if resp.Audio != "" {
		pcm, err = base64.StdEncoding.DecodeString(resp.Audio)
		if err != nil {
			return nil, false, fmt.Errorf("elevenlabs: decode audio: %w", err)
		}
	}
	return pcm, resp.IsFinal, nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// ---- helpers ----

// buildWSMessage constructs the JSON text payload for a single text fragment.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// buildURLForVoice constructs the stream-input WebSocket URL for a voice.
func (p *Provider) buildURLForVoice(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat())
	return fmt.Sprintf("%s/text-to-speech/%s/stream-input?%s", p.wsBase, url.PathEscape(voiceID), q.Encode())
}

// parseVoicesResponse parses a /v1/voices body into VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
