package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/voxshift/internal/segment"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// DefaultDevice selects the host default input or output device.
const DefaultDevice = -1

// DefaultNoiseWords are transcripts treated as noise rather than speech.
// Matching is case-insensitive on the trimmed text.
var DefaultNoiseWords = []string{
	"hum", "euh", "ah", "oh", "hein", "hmm", "mm", "mh",
	"oui", "non", "ok", "ouais", "bah", "ben", "eh",
	"the", "a", "i", "you", "it", "is", "and",
}

// Config is the immutable description of one pipeline run. Build it once
// before Start; the orchestrator keeps its own copy.
type Config struct {
	// InputDevice and OutputDevice are backend device indices, or
	// DefaultDevice.
	InputDevice  int
	OutputDevice int

	// VoiceID is passed to the TTS provider.
	VoiceID string

	// STTEngine and TTSEngine name the providers. They label metrics and logs.
	STTEngine string
	TTSEngine string

	// Model is the STT model path (vosk) or model name (whisper).
	Model    string
	Language string

	SampleRate        int
	ChunkMs           int
	VADAggressiveness int
	MinSpeechMs       int
	MinSilenceMs      int
	PaddingMs         int

	// MinTextLength is the minimum trimmed transcript length, in characters,
	// that reaches synthesis.
	MinTextLength int

	// NoiseWords overrides DefaultNoiseWords when non-nil.
	NoiseWords []string

	// Vocabulary lists proper nouns whose spelling transcripts are
	// corrected to before filtering. Empty disables correction.
	Vocabulary []string

	UtteranceQueueSize int
	AudioQueueSize     int

	// PollTimeout bounds how long a worker waits on its queue before
	// re-checking the stop signal.
	PollTimeout time.Duration

	// StopTimeout bounds how long Stop waits for the workers.
	StopTimeout time.Duration

	// StreamSynthesis selects SynthesizeStream over SynthesizeOnce.
	StreamSynthesis bool

	// PlaybackChunkBytes splits one-shot synthesis output into audio queue
	// chunks. Defaults to 100 ms of audio at SampleRate.
	PlaybackChunkBytes int
}

// DefaultConfig returns the stock configuration: 48 kHz, 20 ms frames,
// aggressive VAD, French Vosk model.
func DefaultConfig() Config {
	return Config{
		InputDevice:        DefaultDevice,
		OutputDevice:       DefaultDevice,
		STTEngine:          "vosk",
		TTSEngine:          "inworld",
		Model:              "models/vosk-model-small-fr-0.22",
		Language:           "fr",
		SampleRate:         48000,
		ChunkMs:            20,
		VADAggressiveness:  3,
		MinSpeechMs:        300,
		MinSilenceMs:       600,
		PaddingMs:          200,
		MinTextLength:      3,
		UtteranceQueueSize: 5,
		AudioQueueSize:     50,
		PollTimeout:        500 * time.Millisecond,
		StopTimeout:        2 * time.Second,
	}
}

// withDefaults fills the zero-valued sizes and timeouts from DefaultConfig.
// VAD timings and aggressiveness are left alone: zero is a valid setting.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ChunkMs == 0 {
		c.ChunkMs = d.ChunkMs
	}
	if c.MinTextLength == 0 {
		c.MinTextLength = d.MinTextLength
	}
	if c.UtteranceQueueSize == 0 {
		c.UtteranceQueueSize = d.UtteranceQueueSize
	}
	if c.AudioQueueSize == 0 {
		c.AudioQueueSize = d.AudioQueueSize
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = d.StopTimeout
	}
	if c.NoiseWords == nil {
		c.NoiseWords = DefaultNoiseWords
	}
	if c.PlaybackChunkBytes == 0 {
		c.PlaybackChunkBytes = audio.Mono(c.SampleRate).BytesPerSecond() / 10
	}
	return c
}

// Validate reports every invalid field. The sample rate itself is checked by
// the segmenter at Start.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkMs <= 0 {
		errs = append(errs, fmt.Errorf("chunk_ms must be positive, got %d", c.ChunkMs))
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad_aggressiveness must be in [0, 3], got %d", c.VADAggressiveness))
	}
	if c.MinSpeechMs < 0 || c.MinSilenceMs < 0 || c.PaddingMs < 0 {
		errs = append(errs, errors.New("min_speech_ms, min_silence_ms and padding_ms must not be negative"))
	}
	if c.UtteranceQueueSize <= 0 || c.AudioQueueSize <= 0 {
		errs = append(errs, errors.New("queue sizes must be positive"))
	}
	if c.PollTimeout <= 0 || c.StopTimeout <= 0 {
		errs = append(errs, errors.New("poll and stop timeouts must be positive"))
	}
	if c.PlaybackChunkBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("playback chunk must be a whole number of samples, got %d bytes", c.PlaybackChunkBytes))
	}
	return errors.Join(errs...)
}

// Format is the mono PCM16 format of captured and played audio.
func (c Config) Format() audio.Format { return audio.Mono(c.SampleRate) }

// FrameBytes is the size of one capture frame.
func (c Config) FrameBytes() int { return c.Format().FrameBytes(c.ChunkMs) }

// VAD returns the session parameters for the segmenter.
func (c Config) VAD() vad.Config {
	return vad.Config{
		SampleRate:     c.SampleRate,
		FrameSizeMs:    c.ChunkMs,
		Aggressiveness: c.VADAggressiveness,
	}
}

// Buffer returns the utterance buffer timing.
func (c Config) Buffer() segment.BufferConfig {
	return segment.BufferConfig{
		ChunkMs:      c.ChunkMs,
		MinSpeechMs:  c.MinSpeechMs,
		MinSilenceMs: c.MinSilenceMs,
		PaddingMs:    c.PaddingMs,
	}
}

// NoiseFilter decides whether a transcript is worth synthesizing.
type NoiseFilter struct {
	minLen int
	words  map[string]struct{}
}

// NewNoiseFilter rejects transcripts shorter than minLen characters after
// trimming, and transcripts equal to one of words ignoring case.
func NewNoiseFilter(minLen int, words []string) *NoiseFilter {
	f := &NoiseFilter{minLen: minLen, words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		f.words[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return f
}

// Reject returns a short reason and true when text should be discarded.
func (f *NoiseFilter) Reject(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "empty transcript", true
	}
	if utf8.RuneCountInString(t) < f.minLen {
		return "transcript too short", true
	}
	if _, ok := f.words[strings.ToLower(t)]; ok {
		return "noise word", true
	}
	return "", false
}
