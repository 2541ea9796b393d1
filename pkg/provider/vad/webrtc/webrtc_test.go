package webrtc

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

func TestNewSession_RejectsConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"unsupported rate", vad.Config{SampleRate: 44100, FrameSizeMs: 20}},
		{"frame 25ms", vad.Config{SampleRate: 16000, FrameSizeMs: 25}},
		{"aggressiveness 5", vad.Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New().NewSession(tt.cfg); err == nil {
				t.Error("want error, got nil")
			}
		})
	}

	_, err := New().NewSession(vad.Config{SampleRate: 22050, FrameSizeMs: 20})
	if !errors.Is(err, vad.ErrUnsupportedSampleRate) {
		t.Errorf("want ErrUnsupportedSampleRate, got %v", err)
	}
}

func TestSession_Silence(t *testing.T) {
	t.Parallel()

	sess, err := New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: 3})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	ev, err := sess.ProcessFrame(make([]byte, 640))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.IsSpeech() {
		t.Error("want digital silence classified as non-speech")
	}
	if _, err := sess.ProcessFrame(make([]byte, 100)); err == nil {
		t.Error("want error for wrong frame size")
	}
}
