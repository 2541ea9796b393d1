// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Each utterance opens its own connection: the audio is written as binary
// messages, a CloseStream control message asks the server to flush, and every
// final Results message received until the server closes the socket is joined
// into the transcript. Deepgram accepts linear16 at the capture rate, so no
// resampling is done.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "fr"
	defaultInputRate = 48000

	// writeChunk is the size of each binary audio message (~85 ms at 48 kHz).
	writeChunk = 8192
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "fr", "en-US").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithInputRate sets the sample rate of the PCM passed to Transcribe.
func WithInputRate(rate int) Option {
	return func(p *Provider) {
		p.inputRate = rate
	}
}

// WithEndpoint overrides the WebSocket endpoint (used by tests and proxies).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey    string
	endpoint  string
	model     string
	language  string
	inputRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:    apiKey,
		endpoint:  deepgramEndpoint,
		model:     defaultModel,
		language:  defaultLanguage,
		inputRate: defaultInputRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams pcm to Deepgram and returns the joined final results.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) < 2 {
		return "", fmt.Errorf("deepgram: %w", stt.ErrEmptyAudio)
	}
	wsURL, err := p.buildURL()
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	// Read concurrently so the server never blocks on a full send buffer.
	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := readFinals(ctx, conn)
		resCh <- result{text, err}
	}()

	for off := 0; off < len(pcm); off += writeChunk {
		end := min(off+writeChunk, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return "", fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return "", fmt.Errorf("deepgram: close stream: %w", err)
	}

	select {
	case res := <-resCh:
		if res.err != nil {
			return "", res.err
		}
		conn.Close(websocket.StatusNormalClosure, "done")
		return res.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readFinals collects final transcripts until the server closes the socket.
func readFinals(ctx context.Context, conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return strings.Join(parts, " "), nil
			}
			if len(parts) > 0 && websocket.CloseStatus(err) != -1 {
				return strings.Join(parts, " "), nil
			}
			return "", fmt.Errorf("deepgram: read: %w", err)
		}
		text, final, ok := parseDeepgramResponse(msg)
		if ok && final && text != "" {
			parts = append(parts, text)
		}
	}
}

// buildURL constructs the Deepgram streaming endpoint URL.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", p.model)
	if p.language != "" {
		q.Set("language", p.language)
	}
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.inputRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseDeepgramResponse extracts the top alternative from a Results message.
// ok is false for any other message type.
func parseDeepgramResponse(data []byte) (text string, final, ok bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", false, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return "", false, false
	}
	return strings.TrimSpace(resp.Channel.Alternatives[0].Transcript), resp.IsFinal, true
}
