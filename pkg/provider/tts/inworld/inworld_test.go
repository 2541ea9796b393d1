package inworld

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

func TestNew_MissingCredentials(t *testing.T) {
	t.Parallel()
	if _, err := New("", "secret"); err == nil {
		t.Error("expected error for empty key, got nil")
	}
	if _, err := New("key", ""); err == nil {
		t.Error("expected error for empty secret, got nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := New("key", "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("want model %q, got %q", DefaultModel, p.Model())
	}
	if p.sampleRate != 48000 {
		t.Errorf("want sample rate 48000, got %d", p.sampleRate)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
	if p.auth != want {
		t.Errorf("want auth %q, got %q", want, p.auth)
	}
}

func TestSynthesizeOnce(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := audio.EncodeWAV(pcm, audio.Mono(48000))

	var got synthesizeRequest
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		auth.Store(r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"audioContent":%q}`, base64.StdEncoding.EncodeToString(wav))
	}))
	defer srv.Close()

	p, _ := New("key", "secret", WithBaseURL(srv.URL+"/"))
	out, err := p.SynthesizeOnce(context.Background(), "Bonjour", tts.Voice("Alex"))
	if err != nil {
		t.Fatalf("SynthesizeOnce: %v", err)
	}
	if !bytes.Equal(out, pcm) {
		t.Errorf("want header-stripped pcm %v, got %v", pcm, out)
	}
	if got.Text != "Bonjour" || got.VoiceID != "Alex" || got.ModelID != DefaultModel {
		t.Errorf("unexpected request body: %+v", got)
	}
	if got.AudioConfig.AudioEncoding != "LINEAR16" || got.AudioConfig.SampleRateHertz != 48000 || got.AudioConfig.SpeakingRate != 1.0 {
		t.Errorf("unexpected audio config: %+v", got.AudioConfig)
	}
	if got.Config.ApplyTextNormalization {
		t.Error("want text normalisation disabled by default")
	}
	if a, _ := auth.Load().(string); !strings.HasPrefix(a, "Basic ") {
		t.Errorf("want basic auth, got %q", a)
	}
}

func TestSynthesizeOnce_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := New("key", "secret", WithBaseURL(srv.URL))
	_, err := p.SynthesizeOnce(context.Background(), "Bonjour", tts.Voice("Alex"))
	if err == nil {
		t.Fatal("expected error for HTTP 429, got nil")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("want status in error, got %v", err)
	}
}

func TestSynthesizeOnce_EmptyVoice(t *testing.T) {
	t.Parallel()
	p, _ := New("key", "secret")
	if _, err := p.SynthesizeOnce(context.Background(), "Bonjour", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID, got nil")
	}
}

func TestSynthesizeStream(t *testing.T) {
	t.Parallel()

	first := audio.EncodeWAV([]byte{1, 1, 2, 2}, audio.Mono(48000))
	second := []byte{3, 3, 4, 4}
	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice:stream" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		enc := base64.StdEncoding.EncodeToString
		fmt.Fprintf(w, "{\"result\":{\"audioContent\":%q}}\n", enc(first))
		fmt.Fprintln(w, "not json")
		fmt.Fprintln(w, `{"result":{}}`)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "{\"audioContent\":%q}\n", enc(second))
	}))
	defer srv.Close()

	p, _ := New("key", "secret", WithBaseURL(srv.URL))
	seq := p.SynthesizeStream(context.Background(), "Bonjour", tts.Voice("Alex"))
	if hits.Load() != 0 {
		t.Fatal("want no request before iteration starts")
	}

	var chunks [][]byte
	for chunk, err := range seq {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0], []byte{1, 1, 2, 2}) {
		t.Errorf("want stripped first chunk, got %v", chunks[0])
	}
	if !bytes.Equal(chunks[1], second) {
		t.Errorf("want second chunk %v, got %v", second, chunks[1])
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"error":{"code":3,"message":"unknown voice"}}`)
	}))
	defer srv.Close()

	p, _ := New("key", "secret", WithBaseURL(srv.URL))
	_, err := tts.Collect(p.SynthesizeStream(context.Background(), "Bonjour", tts.Voice("Nobody")))
	if err == nil || !strings.Contains(err.Error(), "unknown voice") {
		t.Fatalf("want stream error mentioning the voice, got %v", err)
	}
}

func TestSynthesizeStream_BadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("key", "secret", WithBaseURL(srv.URL))
	if _, err := tts.Collect(p.SynthesizeStream(context.Background(), "x", tts.Voice("Alex"))); err == nil {
		t.Fatal("expected error for HTTP 401, got nil")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"voices":[
			{"name":"workspaces/default/voices/Alex","displayName":"Alex","langCode":"EN_US","tags":["male","calm"]},
			{"voiceId":"Mathieu","langCode":"FR_FR"},
			{"name":""}
		]}`))
	}))
	defer srv.Close()

	p, _ := New("key", "secret", WithVoicesURL(srv.URL))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("want 2 voices, got %d", len(voices))
	}
	if voices[0].ID != "Alex" || voices[0].Metadata["tags"] != "male,calm" || voices[0].Metadata["language"] != "EN_US" {
		t.Errorf("unexpected first voice: %+v", voices[0])
	}
	if voices[1].ID != "Mathieu" || voices[1].Name != "Mathieu" {
		t.Errorf("unexpected second voice: %+v", voices[1])
	}
	for _, v := range voices {
		if v.Provider != "inworld" {
			t.Errorf("want provider inworld, got %q", v.Provider)
		}
	}
}

func TestParseStreamLine(t *testing.T) {
	t.Parallel()

	pcm, err := parseStreamLine([]byte(`{"audioContent":"!!notbase64"}`))
	if err != nil || pcm != nil {
		t.Errorf("want undecodable audio skipped, got %v, %v", pcm, err)
	}
}
