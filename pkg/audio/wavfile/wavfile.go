// Package wavfile provides file-backed [audio.Source] and [audio.Sink]
// implementations for headless runs and the diagnostic commands.
//
// A [Source] replays a WAV file as fixed-size mono frames, converted to the
// pipeline rate, optionally paced in real time. A [Sink] collects everything
// written to it and saves a mono PCM16 WAV when stopped.
package wavfile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxshift/pkg/audio"
)

// ReadFile loads a WAV file and returns mono PCM16 at its native rate.
func ReadFile(path string) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("wavfile: read %q: %w", path, err)
	}
	pcm, f, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("wavfile: decode %q: %w", path, err)
	}
	return audio.DownmixToMono(pcm, f.Channels), f.SampleRate, nil
}

// WriteFile saves mono PCM16 at rate as a WAV file.
func WriteFile(path string, pcm []byte, rate int) error {
	if err := os.WriteFile(path, audio.EncodeWAV(pcm, audio.Mono(rate)), 0o644); err != nil {
		return fmt.Errorf("wavfile: write %q: %w", path, err)
	}
	return nil
}

// Option configures a [Source].
type Option func(*Source)

// WithRealtime paces frames at their natural duration instead of emitting
// them as fast as the callback returns.
func WithRealtime(on bool) Option {
	return func(s *Source) { s.realtime = on }
}

// WithTrailingSilence appends d of silence after the file so that a
// segmenter sees the end of the last utterance.
func WithTrailingSilence(d time.Duration) Option {
	return func(s *Source) { s.trailing = d }
}

// WithOnDone registers a function called once the last frame was delivered.
func WithOnDone(fn func()) Option {
	return func(s *Source) { s.onDone = fn }
}

// Source replays a WAV file as pipeline frames.
type Source struct {
	path     string
	format   audio.Format
	chunkMs  int
	realtime bool
	trailing time.Duration
	onDone   func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource returns a source that will deliver path as mono frames of chunkMs
// at sampleRate.
func NewSource(path string, sampleRate, chunkMs int, opts ...Option) *Source {
	s := &Source{
		path:     path,
		format:   audio.Mono(sampleRate),
		chunkMs:  chunkMs,
		realtime: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start loads the file and launches the replay goroutine.
func (s *Source) Start(ctx context.Context, cb audio.FrameCallback) error {
	if cb == nil {
		return errors.New("wavfile: nil frame callback")
	}
	pcm, rate, err := ReadFile(s.path)
	if err != nil {
		return err
	}
	pcm, err = audio.Resample(pcm, rate, s.format.SampleRate)
	if err != nil {
		return fmt.Errorf("wavfile: %w", err)
	}
	if s.trailing > 0 {
		pcm = append(pcm, make([]byte, s.format.FrameBytes(int(s.trailing/time.Millisecond)))...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("wavfile: source already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.replay(ctx, pcm, cb, s.done)
	return nil
}

func (s *Source) replay(ctx context.Context, pcm []byte, cb audio.FrameCallback, done chan struct{}) {
	defer close(done)
	size := s.format.FrameBytes(s.chunkMs)
	interval := time.Duration(s.chunkMs) * time.Millisecond

	var tick <-chan time.Time
	if s.realtime {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}

	frames := 0
	for off := 0; off+size <= len(pcm); off += size {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}
		cb(pcm[off : off+size])
		frames++
	}
	slog.Debug("wavfile: replay finished", "path", s.path, "frames", frames)
	if s.onDone != nil {
		s.onDone()
	}
}

// Stop cancels the replay and waits for the goroutine to exit.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

var _ audio.Source = (*Source)(nil)

// Sink accumulates written PCM and saves it on Stop. An empty path keeps the
// audio in memory only, retrievable through [Sink.Bytes].
type Sink struct {
	path string
	rate int

	mu      sync.Mutex
	started bool
	pcm     []byte
}

// NewSink returns a sink that writes a mono WAV at rate to path on Stop.
func NewSink(path string, rate int) *Sink {
	return &Sink{path: path, rate: rate}
}

// Start implements [audio.Sink].
func (s *Sink) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Write appends pcm to the in-memory buffer.
func (s *Sink) Write(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return audio.ErrNotStarted
	}
	s.pcm = append(s.pcm, pcm...)
	return nil
}

// Bytes returns a copy of everything written so far.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.pcm))
	copy(out, s.pcm)
	return out
}

// Stop saves the collected audio. A second Stop is a no-op.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	if s.path == "" {
		return nil
	}
	return WriteFile(s.path, s.pcm, s.rate)
}

var _ audio.Sink = (*Sink)(nil)
