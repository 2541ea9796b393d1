// Package portaudio implements [audio.Source] and [audio.Sink] on top of the
// PortAudio host library via github.com/gordonklaus/portaudio.
//
// Every stream is mono PCM16. The capture stream uses the callback API with a
// buffer of exactly one pipeline frame, so each callback delivers one frame.
// The playback stream uses the blocking API: [Sink.Write] returns once
// PortAudio has accepted all samples.
//
// A device index of -1 selects the host default.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxshift/pkg/audio"
)

// DefaultDevice selects the host's default input or output device.
const DefaultDevice = -1

// Config holds the stream parameters shared by sources and sinks.
type Config struct {
	// Device is the PortAudio device index, or [DefaultDevice].
	Device int

	// SampleRate in Hz. Defaults to 48000.
	SampleRate int

	// ChunkMs is the frame duration in milliseconds. Defaults to 20.
	ChunkMs int
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.ChunkMs <= 0 {
		c.ChunkMs = 20
	}
	return c
}

func (c Config) framesPerBuffer() int {
	return c.SampleRate * c.ChunkMs / 1000
}

// Devices enumerates the host's audio devices. It initialises and terminates
// PortAudio around the query.
func Devices() ([]audio.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	out := make([]audio.Device, 0, len(infos))
	for _, info := range infos {
		d := audio.Device{
			Index:             info.Index,
			Name:              info.Name,
			InputChannels:     info.MaxInputChannels,
			OutputChannels:    info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			IsDefaultInput:    defIn != nil && defIn.Index == info.Index,
			IsDefaultOutput:   defOut != nil && defOut.Index == info.Index,
		}
		if info.MaxInputChannels > 0 {
			d.Direction |= audio.DirectionInput
		}
		if info.MaxOutputChannels > 0 {
			d.Direction |= audio.DirectionOutput
		}
		out = append(out, d)
	}
	return out, nil
}

// Lister adapts [Devices] to [audio.DeviceLister].
type Lister struct{}

// Devices implements [audio.DeviceLister].
func (Lister) Devices() ([]audio.Device, error) { return Devices() }

var _ audio.DeviceLister = Lister{}

// resolve maps an index to a DeviceInfo. PortAudio must be initialised.
func resolve(index int, input bool) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Index != index {
			continue
		}
		if input && info.MaxInputChannels < 1 {
			return nil, fmt.Errorf("device %d (%s) has no input channels", index, info.Name)
		}
		if !input && info.MaxOutputChannels < 1 {
			return nil, fmt.Errorf("device %d (%s) has no output channels", index, info.Name)
		}
		return info, nil
	}
	return nil, fmt.Errorf("device %d not found", index)
}

// ─── Source ──────────────────────────────────────────────────────────────────

// Source captures mono PCM16 from a PortAudio input device.
type Source struct {
	cfg Config

	mu     sync.Mutex
	stream *portaudio.Stream
	cb     audio.FrameCallback
}

// NewSource returns an unstarted capture source.
func NewSource(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults()}
}

// Start opens the input stream and begins delivering frames to cb.
func (s *Source) Start(_ context.Context, cb audio.FrameCallback) error {
	if cb == nil {
		return errors.New("portaudio: nil frame callback")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return errors.New("portaudio: source already started")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	dev, err := resolve(s.cfg.Device, true)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: input device: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: s.cfg.framesPerBuffer(),
	}
	s.cb = cb
	stream, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	s.stream = stream
	slog.Debug("portaudio: capture started", "device", dev.Name, "rate", s.cfg.SampleRate, "chunk_ms", s.cfg.ChunkMs)
	return nil
}

// process runs on the PortAudio callback thread.
func (s *Source) process(in []int16) {
	s.cb(audio.PCM(in))
}

// Stop halts capture and releases the device.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return fmt.Errorf("portaudio: stop input stream: %w", err)
	}
	return nil
}

var _ audio.Source = (*Source)(nil)

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink plays mono PCM16 on a PortAudio output device.
type Sink struct {
	cfg Config

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// NewSink returns an unstarted playback sink.
func NewSink(cfg Config) *Sink {
	return &Sink{cfg: cfg.withDefaults()}
}

// Start opens the output stream.
func (s *Sink) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	dev, err := resolve(s.cfg.Device, false)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: output device: %w", err)
	}

	s.buf = make([]int16, s.cfg.framesPerBuffer())
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: len(s.buf),
	}
	stream, err := portaudio.OpenStream(params, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: open output stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	s.stream = stream
	slog.Debug("portaudio: playback started", "device", dev.Name, "rate", s.cfg.SampleRate)
	return nil
}

// Write plays pcm in buffer-sized pieces, zero-padding the last one. It
// checks ctx between pieces.
func (s *Sink) Write(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return audio.ErrNotStarted
	}

	samples := audio.Samples(pcm)
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Stop drains and closes the output stream.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	return nil
}

var _ audio.Sink = (*Sink)(nil)
