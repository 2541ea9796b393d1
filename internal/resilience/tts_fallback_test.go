package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxshift/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voxshift/pkg/provider/tts/mock"
)

func collectStream(t *testing.T, fb *TTSFallback) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range fb.SynthesizeStream(context.Background(), "bonjour", tts.Voice("v1")) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, string(chunk))
	}
	return chunks, nil
}

func TestTTSFallback_SynthesizeStream_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Chunks: [][]byte{[]byte("audio1"), []byte("audio2")}}
	secondary := &ttsmock.Provider{Chunks: [][]byte{[]byte("fallback-audio")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	chunks, err := collectStream(t, fb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 || chunks[0] != "audio1" {
		t.Fatalf("chunks = %q, want [audio1 audio2]", chunks)
	}
	if len(secondary.SynthesizeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.SynthesizeCalls))
	}
}

func TestTTSFallback_SynthesizeStream_FailoverBeforeFirstChunk(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{Chunks: [][]byte{[]byte("fallback-audio")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	chunks, err := collectStream(t, fb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "fallback-audio" {
		t.Fatalf("chunks = %q, want [fallback-audio]", chunks)
	}
}

func TestTTSFallback_SynthesizeStream_NoFailoverMidStream(t *testing.T) {
	errCut := errors.New("connection reset")
	primary := &ttsmock.Provider{
		Chunks:        [][]byte{[]byte("first")},
		SynthesizeErr: errCut,
	}
	secondary := &ttsmock.Provider{Chunks: [][]byte{[]byte("fallback-audio")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	chunks, err := collectStream(t, fb)
	if !errors.Is(err, errCut) {
		t.Fatalf("err = %v, want %v", err, errCut)
	}
	if len(chunks) != 1 || chunks[0] != "first" {
		t.Fatalf("chunks = %q, want [first]", chunks)
	}
	if len(secondary.SynthesizeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.SynthesizeCalls))
	}
}

func TestTTSFallback_SynthesizeStream_EarlyBreak(t *testing.T) {
	primary := &ttsmock.Provider{Chunks: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	secondary := &ttsmock.Provider{Chunks: [][]byte{[]byte("x")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	n := 0
	for _, err := range fb.SynthesizeStream(context.Background(), "t", tts.Voice("v")) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("got %d chunks, want 1", n)
	}
	if len(secondary.SynthesizeCalls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.SynthesizeCalls))
	}
}

func TestTTSFallback_SynthesizeStream_AllFail(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeErr: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	_, err := collectStream(t, fb)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_SynthesizeOnce_Failover(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{Chunks: [][]byte{[]byte("ab"), []byte("cd")}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	pcm, err := fb.SynthesizeOnce(context.Background(), "bonjour", tts.Voice("v1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(pcm) != "abcd" {
		t.Fatalf("pcm = %q, want abcd", pcm)
	}
	if got := secondary.Texts(); len(got) != 1 || got[0] != "bonjour" {
		t.Fatalf("secondary texts = %q, want [bonjour]", got)
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	primary := &ttsmock.Provider{ListVoicesErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{
		ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
	}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Fatalf("voices = %+v, want [v1]", voices)
	}
	if err := fb.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil for providers without Close", err)
	}
}
