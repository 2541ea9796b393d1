// Package mock scripts voice activity decisions for pipeline and segmenter
// tests.
//
// A Session decides speech per frame, either through Classify or by
// replaying Script, and turns the decisions into start/end edges the same
// way the real engines do:
//
//	sess := &mock.Session{Classify: mock.NonZeroSpeech}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// NonZeroSpeech treats a frame as speech when its first byte is non-zero.
func NonZeroSpeech(frame []byte) bool { return len(frame) > 0 && frame[0] != 0 }

// Engine hands out Session, or a fresh all-silence Session when it is nil.
type Engine struct {
	Session       vad.SessionHandle
	NewSessionErr error

	mu      sync.Mutex
	Configs []vad.Config // one per NewSession call
}

func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	switch {
	case e.NewSessionErr != nil:
		return nil, e.NewSessionErr
	case e.Session != nil:
		return e.Session, nil
	}
	return &Session{}, nil
}

// Opened returns the number of NewSession calls.
func (e *Engine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Configs)
}

var _ vad.Engine = (*Engine)(nil)

// Session is a scripted vad.SessionHandle.
//
// Classify wins over Script. Script is consumed one decision per frame and
// frames past its end are silence. With neither set every frame is silence.
type Session struct {
	Classify func(frame []byte) bool
	Script   []bool

	// ProcessFrameErr fails every frame; Panic is raised from ProcessFrame
	// to exercise recovery in callers.
	ProcessFrameErr error
	Panic           any
	CloseErr        error

	mu     sync.Mutex
	edge   vad.Edge
	Frames int
	Resets int
	Closes int
}

func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.Frames
	s.Frames++
	if s.Panic != nil {
		panic(s.Panic)
	}
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}

	var speech bool
	switch {
	case s.Classify != nil:
		speech = s.Classify(frame)
	case n < len(s.Script):
		speech = s.Script[n]
	}
	p := 0.0
	if speech {
		p = 1
	}
	return s.edge.Next(speech, p), nil
}

// Reset forgets whether speech was in progress.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resets++
	s.edge.Reset()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	return s.CloseErr
}

// CloseCount returns the number of Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Closes
}

var _ vad.SessionHandle = (*Session)(nil)
