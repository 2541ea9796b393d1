// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on counts and arguments, and expose exported fields that the
// test sets to control return values.
//
// Typical usage:
//
//	src := &mock.Source{}
//	sink := &mock.Sink{}
//	// ... start the pipeline with src and sink ...
//	src.Emit(frame)            // drive the capture callback
//	written := sink.Written()  // inspect played audio
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxshift/pkg/audio"
)

// Source is a mock [audio.Source]. Frames are delivered synchronously by
// calling [Source.Emit] from the test goroutine.
type Source struct {
	mu sync.Mutex
	cb audio.FrameCallback

	// StartErr is returned by Start when non-nil.
	StartErr error

	// StopErr is returned by Stop.
	StopErr error

	// StartCalls and StopCalls count invocations.
	StartCalls int
	StopCalls  int
}

// Start records the callback and returns StartErr.
func (s *Source) Start(_ context.Context, cb audio.FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.cb = cb
	return nil
}

// Stop detaches the callback and returns StopErr.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	s.cb = nil
	return s.StopErr
}

// Emit passes frame to the registered callback. It reports false when the
// source is not started.
func (s *Source) Emit(frame []byte) bool {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(frame)
	return true
}

// Running reports whether a callback is currently registered.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb != nil
}

var _ audio.Source = (*Source)(nil)

// Sink is a mock [audio.Sink] that keeps every written buffer.
type Sink struct {
	mu sync.Mutex

	// StartErr is returned by Start when non-nil.
	StartErr error

	// WriteErr is returned by every Write when non-nil; the buffer is still
	// recorded.
	WriteErr error

	// StopErr is returned by Stop.
	StopErr error

	// OnWrite, if set, is called with each buffer after it is recorded.
	OnWrite func(pcm []byte)

	StartCalls int
	StopCalls  int
	writes     [][]byte
}

// Start records the call and returns StartErr.
func (s *Sink) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartCalls++
	return s.StartErr
}

// Write records a copy of pcm and returns WriteErr.
func (s *Sink) Write(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.writes = append(s.writes, cp)
	hook, err := s.OnWrite, s.WriteErr
	s.mu.Unlock()
	if hook != nil {
		hook(cp)
	}
	return err
}

// Stop records the call and returns StopErr.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	return s.StopErr
}

// Written returns a snapshot of every buffer passed to Write, in order.
func (s *Sink) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

var _ audio.Sink = (*Sink)(nil)
