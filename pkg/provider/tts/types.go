package tts

import (
	"iter"
	"strings"
	"unicode"
)

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means default.
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, language, etc.).
	Metadata map[string]string
}

// Voice returns a VoiceProfile carrying only an ID.
func Voice(id string) VoiceProfile {
	return VoiceProfile{ID: id}
}

// Speed returns the effective speaking rate of v.
func (v VoiceProfile) Speed() float64 {
	if v.SpeedFactor <= 0 {
		return 1.0
	}
	return v.SpeedFactor
}

// Collect drains seq into a single buffer. It stops at the first error.
func Collect(seq iter.Seq2[[]byte, error]) ([]byte, error) {
	var out []byte
	for chunk, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// Chunks yields pcm in slices of at most size bytes. size is rounded down to
// an even number so no sample is split.
func Chunks(pcm []byte, size int) iter.Seq2[[]byte, error] {
	size &^= 1
	if size <= 0 {
		size = len(pcm)
	}
	return func(yield func([]byte, error) bool) {
		for len(pcm) > 0 {
			end := min(size, len(pcm))
			if !yield(pcm[:end], nil) {
				return
			}
			pcm = pcm[end:]
		}
	}
}

// Fail returns a sequence that yields err once.
func Fail(err error) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield(nil, err)
	}
}

// SplitSentences breaks text at '.', '!' and '?' that are followed by
// whitespace or the end of the text. Abbreviations such as "Dr.Who" and
// decimals such as "3.14" stay intact. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var out []string
	for {
		idx := sentenceBoundary(text)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(text[:idx+1]); s != "" {
			out = append(out, s)
		}
		text = text[idx+1:]
	}
	if s := strings.TrimSpace(text); s != "" {
		out = append(out, s)
	}
	return out
}

func sentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}
