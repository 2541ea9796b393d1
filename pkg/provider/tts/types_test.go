package tts

import (
	"errors"
	"slices"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single", "Bonjour", []string{"Bonjour"}},
		{"two", "Bonjour. Comment vas-tu ?", []string{"Bonjour.", "Comment vas-tu ?"}},
		{"decimal", "Il fait 3.5 degrés. Brr!", []string{"Il fait 3.5 degrés.", "Brr!"}},
		{"trailing space", "  Salut!  ", []string{"Salut!"}},
		{"empty", "   ", nil},
		{"only punctuation gaps", "Oui. . Non.", []string{"Oui.", ".", "Non."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitSentences(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestChunks(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 10)
	var sizes []int
	for chunk, err := range Chunks(pcm, 5) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sizes = append(sizes, len(chunk))
	}
	// 5 is rounded down to 4 so samples are never split.
	if want := []int{4, 4, 2}; !slices.Equal(sizes, want) {
		t.Errorf("want chunk sizes %v, got %v", want, sizes)
	}
}

func TestCollect(t *testing.T) {
	t.Parallel()

	got, err := Collect(Chunks([]byte{1, 2, 3, 4}, 2))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !slices.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("want [1 2 3 4], got %v", got)
	}

	boom := errors.New("boom")
	if _, err := Collect(Fail(boom)); !errors.Is(err, boom) {
		t.Errorf("want %v, got %v", boom, err)
	}
}

func TestVoiceProfile_Speed(t *testing.T) {
	t.Parallel()

	if got := Voice("v").Speed(); got != 1.0 {
		t.Errorf("want default speed 1.0, got %v", got)
	}
	if got := (VoiceProfile{SpeedFactor: 1.3}).Speed(); got != 1.3 {
		t.Errorf("want 1.3, got %v", got)
	}
}
