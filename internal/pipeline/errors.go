package pipeline

import "errors"

// Sentinel errors. Concrete failures wrap one of these with %w so callers can
// classify them with errors.Is.
var (
	// ErrConstruction is returned by Start when a collaborator cannot be
	// built or started. It is the only error that aborts a run.
	ErrConstruction = errors.New("pipeline: construction failed")

	// ErrCaptureDropped is reported when a finished utterance is discarded
	// because the utterance queue is full.
	ErrCaptureDropped = errors.New("pipeline: utterance dropped")

	// ErrTranscription is reported when the STT provider fails on an
	// utterance. The processing worker moves on to the next one.
	ErrTranscription = errors.New("pipeline: transcription failed")

	// ErrSynthesis is reported when the TTS provider fails on a transcript.
	ErrSynthesis = errors.New("pipeline: synthesis failed")

	// ErrPlayback is reported when the output sink rejects a chunk.
	ErrPlayback = errors.New("pipeline: playback failed")
)
