package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty apiKey, got nil")
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := New("sk-test", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != DefaultModel {
		t.Errorf("want model %q, got %q", DefaultModel, p.model)
	}
	if p.inputRate != 48000 {
		t.Errorf("want input rate 48000, got %d", p.inputRate)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var (
		hits     atomic.Int32
		language atomic.Value
		auth     atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		auth.Store(r.Header.Get("Authorization"))
		if err := r.ParseMultipartForm(10 << 20); err == nil {
			language.Store(r.FormValue("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Salut à tous "}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithLanguage("fr"), WithInputRate(16000), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), make([]byte, 3200))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Salut à tous" {
		t.Errorf("want %q, got %q", "Salut à tous", text)
	}
	if hits.Load() != 1 {
		t.Errorf("want 1 request, got %d", hits.Load())
	}
	if got, _ := auth.Load().(string); got != "Bearer sk-test" {
		t.Errorf("want bearer auth, got %q", got)
	}
	if got, _ := language.Load().(string); got != "fr" {
		t.Errorf("want language fr, got %q", got)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithInputRate(16000), WithMaxRetries(0))
	if _, err := p.Transcribe(context.Background(), make([]byte, 3200)); err == nil {
		t.Fatal("expected error for HTTP 400, got nil")
	}
}
