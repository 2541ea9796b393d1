package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech score in [0.0, 1.0]. Binary classifiers
	// report 0 or 1.
	Probability float64
}

// IsSpeech reports whether the frame was classified as speech.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates the first non-speech frame after speech.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns the human-readable event name.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Edge tracks the previous decision of a binary classifier and turns each new
// decision into a [VADEvent]. The zero value starts in silence.
type Edge struct {
	speaking bool
}

// Next returns the event for the current decision and records it.
func (e *Edge) Next(speech bool, probability float64) VADEvent {
	var t VADEventType
	switch {
	case speech && !e.speaking:
		t = VADSpeechStart
	case speech:
		t = VADSpeechContinue
	case e.speaking:
		t = VADSpeechEnd
	default:
		t = VADSilence
	}
	e.speaking = speech
	return VADEvent{Type: t, Probability: probability}
}

// Reset returns to the silent state.
func (e *Edge) Reset() { e.speaking = false }
