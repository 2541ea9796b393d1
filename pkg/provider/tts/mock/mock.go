// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:           [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	pcm, _ := p.SynthesizeOnce(ctx, "Bonjour", tts.Voice("v1"))
package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/MrWong99/voxshift/pkg/provider/tts"
)

// SynthesizeCall records a single SynthesizeOnce or SynthesizeStream invocation.
type SynthesizeCall struct {
	// Text is the text passed to the provider.
	Text string
	// Voice is the VoiceProfile passed to the provider.
	Voice tts.VoiceProfile
	// Stream reports whether SynthesizeStream was used.
	Stream bool
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the audio returned by SynthesizeOnce (concatenated) and
	// yielded by SynthesizeStream (one element per chunk).
	Chunks [][]byte

	// SynthesizeErr, if non-nil, fails SynthesizeOnce and is yielded by
	// SynthesizeStream after the chunks.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every synthesis call in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeOnce records the call and returns the concatenated Chunks.
func (p *Provider) SynthesizeOnce(_ context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	var out []byte
	for _, c := range p.Chunks {
		out = append(out, c...)
	}
	return out, nil
}

// SynthesizeStream records the call when iteration starts and yields Chunks,
// followed by SynthesizeErr if set.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, voice tts.VoiceProfile) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		p.mu.Lock()
		p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice, Stream: true})
		chunks := make([][]byte, len(p.Chunks))
		copy(chunks, p.Chunks)
		synthErr := p.SynthesizeErr
		p.mu.Unlock()

		for _, c := range chunks {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if synthErr != nil {
			yield(nil, synthErr)
		}
	}
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Texts returns the text of every recorded synthesis call. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}
