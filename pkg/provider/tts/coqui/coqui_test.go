package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

// ---- test helpers ----

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// pcmFor returns a distinct two-sample PCM payload per sentence so ordering
// can be verified on the output.
func pcmFor(text string) []byte {
	b := byte(len(text))
	return []byte{b, 0, b, 0}
}

// ---- constructor ----

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty serverURL, got nil")
	}
	if _, err := New("http://x", WithAPIMode("bogus")); err == nil {
		t.Error("expected error for unknown API mode, got nil")
	}

	p := mustNew(t, "http://localhost:5002/", WithLanguage("fr"), WithTimeout(5*time.Second))
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("expected trailing slash trimmed, got %q", p.serverURL)
	}
	if p.language != "fr" {
		t.Errorf("expected language fr, got %q", p.language)
	}
	if p.httpClient.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", p.httpClient.Timeout)
	}
	if p.apiMode != APIModeStandard {
		t.Errorf("expected default API mode standard, got %q", p.apiMode)
	}
}

func TestSynthesizeOnce_EmptyVoiceID_XTTS(t *testing.T) {
	t.Parallel()
	p := mustNew(t, "http://localhost:8002", WithAPIMode(APIModeXTTS))
	if _, err := p.SynthesizeOnce(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for empty voice ID in XTTS mode, got nil")
	}
}

// ---- standard mode ----

func TestSynthesizeOnce_Standard(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"text":        q.Get("text"),
			"speaker_id":  q.Get("speaker_id"),
			"language_id": q.Get("language_id"),
		}
		_, _ = w.Write(audio.EncodeWAV(pcmFor(q.Get("text")), audio.Mono(16000)))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("fr"))
	pcm, err := p.SynthesizeOnce(context.Background(), "Bonjour. Salut.", tts.Voice("p225"))
	if err != nil {
		t.Fatalf("SynthesizeOnce: %v", err)
	}
	if !bytes.Equal(pcm, pcmFor("Bonjour. Salut.")) {
		t.Errorf("unexpected pcm %v", pcm)
	}
	if gotQuery["text"] != "Bonjour. Salut." || gotQuery["speaker_id"] != "p225" || gotQuery["language_id"] != "fr" {
		t.Errorf("unexpected query %v", gotQuery)
	}
}

func TestSynthesizeOnce_Resamples(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(audio.EncodeWAV(make([]byte, 22050*2), audio.Mono(22050)))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithOutputSampleRate(48000))
	pcm, err := p.SynthesizeOnce(context.Background(), "Bonjour", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("SynthesizeOnce: %v", err)
	}
	// One second at 48 kHz is 96000 bytes; the filter delay may trim the tail.
	if len(pcm) <= 22050*2 || len(pcm) > 96000+512 || len(pcm)%2 != 0 {
		t.Errorf("expected ~96000 bytes of 48 kHz pcm, got %d", len(pcm))
	}
}

func TestSynthesizeOnce_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.SynthesizeOnce(context.Background(), "Bonjour", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

func TestSynthesizeOnce_NotWAV(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("definitely not a wav file"))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.SynthesizeOnce(context.Background(), "Bonjour", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error for non-WAV body, got nil")
	}
}

// ---- streaming ----

func TestSynthesizeStream_XTTS_Ordered(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ttsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		texts = append(texts, req.Text)
		mu.Unlock()
		// The first sentence is the slowest so out-of-order completion is exercised.
		if req.Text == "Un." {
			time.Sleep(50 * time.Millisecond)
		}
		_, _ = w.Write(audio.EncodeWAV(pcmFor(req.Text), audio.Mono(24000)))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	var got []byte
	for chunk, err := range p.SynthesizeStream(context.Background(), "Un. Deux! Trois?", tts.Voice("Ana Florence")) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		got = append(got, chunk...)
	}

	var want []byte
	for _, s := range []string{"Un.", "Deux!", "Trois?"} {
		want = append(want, pcmFor(s)...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 3 {
		t.Errorf("expected 3 requests, got %d", len(texts))
	}
}

func TestSynthesizeStream_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := tts.Collect(p.SynthesizeStream(context.Background(), "Bonjour.", tts.VoiceProfile{})); err == nil {
		t.Fatal("expected stream error for HTTP 502, got nil")
	}
}

func TestSynthesizeStream_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := mustNew(t, srv.URL)
	start := time.Now()
	if _, err := tts.Collect(p.SynthesizeStream(ctx, "Bonjour.", tts.VoiceProfile{})); err == nil {
		t.Fatal("expected error after cancellation, got nil")
	}
	if time.Since(start) > time.Second {
		t.Errorf("stream did not honour cancellation promptly (%v)", time.Since(start))
	}
}

// ---- ListVoices ----

func TestListVoices_XTTS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Zofija Kendrick":{},"Ana Florence":{}}`))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "Ana Florence" || voices[1].ID != "Zofija Kendrick" {
		t.Errorf("expected sorted studio voices, got %+v", voices)
	}
}

func TestListVoices_Standard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantIDs []string
		wantTyp string
	}{
		{"multi speaker", `{"model_name":"vctk/vits","speakers":["p226","p225"]}`, []string{"p225", "p226"}, "speaker"},
		{"single speaker", `{"model_name":"css10/vits"}`, []string{"css10/vits"}, "single-speaker"},
		{"no model name", `{}`, []string{"default"}, "single-speaker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.wantIDs) {
				t.Fatalf("expected %d voices, got %d", len(tt.wantIDs), len(voices))
			}
			for i, id := range tt.wantIDs {
				if voices[i].ID != id {
					t.Errorf("voice %d: expected %q, got %q", i, id, voices[i].ID)
				}
				if voices[i].Metadata["type"] != tt.wantTyp {
					t.Errorf("voice %d: expected type %q, got %q", i, tt.wantTyp, voices[i].Metadata["type"])
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := mustNew(t, srv.URL).ListVoices(context.Background()); err == nil {
		t.Fatal("expected error for HTTP 503, got nil")
	}
}
