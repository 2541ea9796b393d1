// Package mock provides a test double for the stt.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Texts: []string{"bonjour", "euh"}}
//	text, _ := p.Transcribe(ctx, pcm) // "bonjour"
//	text, _ = p.Transcribe(ctx, pcm)  // "euh"
//	text, _ = p.Transcribe(ctx, pcm)  // "euh" (last value repeats)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxshift/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts are returned in order; the last one repeats once exhausted.
	Texts []string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Block, if non-nil, is waited on (or ctx) before returning.
	Block <-chan struct{}

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted text.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	p.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.Calls = append(p.Calls, TranscribeCall{PCM: cp})
	n := len(p.Calls)
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) == 0 {
		return "", nil
	}
	return p.Texts[min(n, len(p.Texts))-1], nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ stt.Provider = (*Provider)(nil)
