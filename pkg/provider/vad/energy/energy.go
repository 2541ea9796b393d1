// Package energy provides a pure-Go VAD engine that classifies frames by RMS
// energy. It needs no native library and works at any supported rate, at the
// cost of reacting to any loud noise.
package energy

import (
	"fmt"
	"sync"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// thresholds maps aggressiveness 0..3 to the normalised RMS a frame must
// reach to count as speech.
var thresholds = [4]float64{0.005, 0.010, 0.015, 0.025}

// Option configures an [Engine].
type Option func(*Engine)

// WithThreshold overrides the aggressiveness table with a fixed RMS level.
func WithThreshold(rms float64) Option {
	return func(e *Engine) { e.threshold = rms }
}

// Engine creates energy-based VAD sessions.
type Engine struct {
	threshold float64
}

// New returns an energy VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	th := e.threshold
	if th <= 0 {
		th = thresholds[cfg.Aggressiveness]
	}
	return &session{frameBytes: cfg.FrameBytes(), threshold: th}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu         sync.Mutex
	frameBytes int
	threshold  float64
	edge       vad.Edge
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	level := audio.RMS(frame)
	p := min(level/(2*s.threshold), 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edge.Next(level >= s.threshold, p), nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Reset()
}

func (s *session) Close() error { return nil }
