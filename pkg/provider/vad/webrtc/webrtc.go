// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad).
//
// The WebRTC classifier is a binary per-frame decision. It accepts 8, 16, 32
// and 48 kHz mono PCM16 in frames of 10, 20 or 30 ms. The aggressiveness mode
// (0–3) trades recall for precision.
package webrtc

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// Engine creates WebRTC VAD sessions.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and allocates a native detector.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.FrameSizeMs {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("webrtc: frame size must be 10, 20 or 30 ms, got %d", cfg.FrameSizeMs)
	}

	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc: create detector: %w", err)
	}
	if err := det.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc: set mode %d: %w", cfg.Aggressiveness, err)
	}
	return &session{det: det, cfg: cfg}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	mu     sync.Mutex
	det    *webrtcvad.VAD
	cfg    vad.Config
	edge   vad.Edge
	closed bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("webrtc: session closed")
	}
	if want := s.cfg.FrameBytes(); len(frame) != want {
		return vad.VADEvent{}, fmt.Errorf("webrtc: frame is %d bytes, want %d", len(frame), want)
	}
	active, err := s.det.Process(s.cfg.SampleRate, frame)
	if err != nil {
		return vad.VADEvent{}, fmt.Errorf("webrtc: process: %w", err)
	}
	p := 0.0
	if active {
		p = 1
	}
	return s.edge.Next(active, p), nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edge.Reset()
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
