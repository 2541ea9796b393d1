package wavfile

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxshift/pkg/audio"
)

func TestWriteReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a.wav")
	pcm := audio.PCM([]int16{1, -1, 2, -2})
	if err := WriteFile(path, pcm, 16000); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, rate, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if rate != 16000 {
		t.Errorf("want rate 16000, got %d", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("want %v, got %v", pcm, got)
	}
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()

	if _, _, err := ReadFile(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("want error for missing file")
	}
}

func TestSource_DeliversFrames(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.wav")
	// 100 ms at 16 kHz = 5 frames of 20 ms.
	if err := WriteFile(path, make([]byte, 3200), 16000); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	src := NewSource(path, 16000, 20,
		WithRealtime(false),
		WithTrailingSilence(40*time.Millisecond),
		WithOnDone(func() { close(done) }),
	)

	var (
		mu     sync.Mutex
		frames [][]byte
	)
	err := src.Start(context.Background(), func(f []byte) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replay")
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 7 {
		t.Fatalf("want 7 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if len(f) != 640 {
			t.Errorf("frame %d: want 640 bytes, got %d", i, len(f))
		}
	}
}

func TestSource_StopBeforeStart(t *testing.T) {
	t.Parallel()

	if err := NewSource("x.wav", 16000, 20).Stop(); err != nil {
		t.Errorf("want nil, got %v", err)
	}
}

func TestSink(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.wav")
	s := NewSink(path, 24000)
	ctx := context.Background()

	if err := s.Write(ctx, []byte{1, 2}); err != audio.ErrNotStarted {
		t.Errorf("write before start: want ErrNotStarted, got %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	_ = s.Write(ctx, audio.PCM([]int16{10, 20}))
	_ = s.Write(ctx, audio.PCM([]int16{30}))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	got, rate, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if rate != 24000 {
		t.Errorf("want rate 24000, got %d", rate)
	}
	if want := audio.PCM([]int16{10, 20, 30}); !bytes.Equal(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
}
