package energy

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

func tone(n int, amp int16) []byte {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return audio.PCM(s)
}

func TestSession_Classifies(t *testing.T) {
	t.Parallel()

	sess, err := New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20, Aggressiveness: 2})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	quiet := make([]byte, 640)
	loud := tone(320, 8000)

	steps := []struct {
		frame []byte
		want  vad.VADEventType
	}{
		{quiet, vad.VADSilence},
		{loud, vad.VADSpeechStart},
		{loud, vad.VADSpeechContinue},
		{quiet, vad.VADSpeechEnd},
	}
	for i, s := range steps {
		ev, err := sess.ProcessFrame(s.frame)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != s.want {
			t.Errorf("step %d: want %s, got %s", i, s.want, ev.Type)
		}
	}
}

func TestSession_WrongFrameSize(t *testing.T) {
	t.Parallel()

	sess, err := New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sess.ProcessFrame(make([]byte, 10)); err == nil {
		t.Error("want error for short frame")
	}
}

func TestNewSession_UnsupportedRate(t *testing.T) {
	t.Parallel()

	_, err := New().NewSession(vad.Config{SampleRate: 44100, FrameSizeMs: 20})
	if !errors.Is(err, vad.ErrUnsupportedSampleRate) {
		t.Errorf("want ErrUnsupportedSampleRate, got %v", err)
	}
}

func TestWithThreshold(t *testing.T) {
	t.Parallel()

	sess, err := New(WithThreshold(0.9)).NewSession(vad.Config{SampleRate: 8000, FrameSizeMs: 20, Aggressiveness: 0})
	if err != nil {
		t.Fatal(err)
	}
	ev, _ := sess.ProcessFrame(tone(160, 8000))
	if ev.IsSpeech() {
		t.Error("want silence below custom threshold")
	}
}
