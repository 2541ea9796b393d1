// Package segment turns a stream of fixed-size PCM frames into complete
// utterances.
//
// A [Segmenter] classifies each frame as speech or non-speech. An
// [UtteranceBuffer] consumes (frame, isSpeech) pairs, keeps a short pre-roll
// of recent non-speech frames, and releases the collected audio once enough
// consecutive silence follows the speech.
//
// Both types are meant to be driven from a single capture goroutine; neither
// is safe for concurrent use.
package segment

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// Segmenter wraps a VAD session and reduces every failure to "not speech".
type Segmenter struct {
	sess vad.SessionHandle
	cfg  vad.Config
}

// NewSegmenter validates the sample rate and opens a session on engine.
// An unsupported rate returns an error wrapping [vad.ErrUnsupportedSampleRate].
func NewSegmenter(engine vad.Engine, cfg vad.Config) (*Segmenter, error) {
	if engine == nil {
		return nil, errors.New("segment: nil VAD engine")
	}
	if err := vad.CheckSampleRate(cfg.SampleRate); err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	sess, err := engine.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("segment: open VAD session: %w", err)
	}
	return &Segmenter{sess: sess, cfg: cfg}, nil
}

// IsSpeech classifies one frame. Malformed frames, classifier errors and
// classifier panics all yield false.
func (s *Segmenter) IsSpeech(frame []byte) (speech bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("segment: VAD panicked, treating frame as silence", "panic", r)
			speech = false
		}
	}()
	ev, err := s.sess.ProcessFrame(frame)
	if err != nil {
		slog.Debug("segment: VAD rejected frame", "bytes", len(frame), "err", err)
		return false
	}
	return ev.IsSpeech()
}

// Reset clears the underlying session's edge state.
func (s *Segmenter) Reset() { s.sess.Reset() }

// Close releases the VAD session.
func (s *Segmenter) Close() error { return s.sess.Close() }
