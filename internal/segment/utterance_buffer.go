package segment

import (
	"bytes"
	"errors"
)

// BufferConfig sets the timing of an [UtteranceBuffer]. All durations are in
// milliseconds and are converted to whole frames by integer division.
type BufferConfig struct {
	ChunkMs      int
	MinSpeechMs  int
	MinSilenceMs int
	PaddingMs    int
}

// UtteranceBuffer collects speech frames between a trigger (first speech
// frame) and a release (silence counter strictly above the minimum).
//
// While idle it holds the last paddingFrames frames in a ring. The trigger
// frame is appended to a copy of that ring, so every emitted utterance starts
// with up to paddingFrames of pre-roll.
//
// The buffer is a pure function of the frame sequence. It does not gate on
// speech length; minSpeechFrames is reported for callers that want to.
type UtteranceBuffer struct {
	minSpeechFrames  int
	minSilenceFrames int
	paddingFrames    int

	ring      [][]byte
	ringStart int
	ringLen   int

	triggered bool
	active    [][]byte
	silence   int
}

// NewUtteranceBuffer converts cfg to frame counts.
func NewUtteranceBuffer(cfg BufferConfig) (*UtteranceBuffer, error) {
	if cfg.ChunkMs <= 0 {
		return nil, errors.New("segment: chunk duration must be positive")
	}
	if cfg.MinSpeechMs < 0 || cfg.MinSilenceMs < 0 || cfg.PaddingMs < 0 {
		return nil, errors.New("segment: durations must not be negative")
	}
	b := &UtteranceBuffer{
		minSpeechFrames:  cfg.MinSpeechMs / cfg.ChunkMs,
		minSilenceFrames: cfg.MinSilenceMs / cfg.ChunkMs,
		paddingFrames:    cfg.PaddingMs / cfg.ChunkMs,
	}
	b.ring = make([][]byte, b.paddingFrames)
	return b, nil
}

// MinSpeechFrames returns min_speech_ms expressed in frames.
func (b *UtteranceBuffer) MinSpeechFrames() int { return b.minSpeechFrames }

// MinSilenceFrames returns min_silence_ms expressed in frames.
func (b *UtteranceBuffer) MinSilenceFrames() int { return b.minSilenceFrames }

// PaddingFrames returns padding_ms expressed in frames.
func (b *UtteranceBuffer) PaddingFrames() int { return b.paddingFrames }

// Triggered reports whether an utterance is currently being collected.
func (b *UtteranceBuffer) Triggered() bool { return b.triggered }

// Push feeds one frame. It returns the concatenated utterance and true when
// this frame releases it; otherwise nil and false. The frame is copied.
func (b *UtteranceBuffer) Push(frame []byte, isSpeech bool) ([]byte, bool) {
	f := bytes.Clone(frame)

	if !b.triggered {
		if !isSpeech {
			b.pushRing(f)
			return nil, false
		}
		b.triggered = true
		b.silence = 0
		b.active = make([][]byte, 0, b.ringLen+1+b.minSilenceFrames)
		for i := range b.ringLen {
			b.active = append(b.active, b.ring[(b.ringStart+i)%len(b.ring)])
		}
		b.active = append(b.active, f)
		b.clearRing()
		return nil, false
	}

	b.active = append(b.active, f)
	if isSpeech {
		b.silence = 0
		return nil, false
	}
	b.silence++
	if b.silence <= b.minSilenceFrames {
		return nil, false
	}

	out := bytes.Join(b.active, nil)
	b.Reset()
	return out, true
}

// Reset discards any partial utterance and the pre-roll ring.
func (b *UtteranceBuffer) Reset() {
	b.triggered = false
	b.active = nil
	b.silence = 0
	b.clearRing()
}

func (b *UtteranceBuffer) pushRing(f []byte) {
	n := len(b.ring)
	if n == 0 {
		return
	}
	if b.ringLen < n {
		b.ring[(b.ringStart+b.ringLen)%n] = f
		b.ringLen++
		return
	}
	b.ring[b.ringStart] = f
	b.ringStart = (b.ringStart + 1) % n
}

func (b *UtteranceBuffer) clearRing() {
	clear(b.ring)
	b.ringStart = 0
	b.ringLen = 0
}
