// Command voxshift captures speech from a microphone, transcribes it and
// speaks the text back in a synthetic voice.
//
// Usage:
//
//	voxshift [flags] <command> [args]
//
// Commands:
//
//	run           - full capture, transcription, synthesis and playback loop
//	list-devices  - audio devices known to the configured backend
//	list-voices   - voices offered by the configured TTS provider
//	test-tts      - synthesize one sentence to a WAV file
//	test-vad      - save detected utterances as WAV files
//	test-stt      - transcribe a WAV file
//
// Configuration:
//
//	Settings come from a YAML file (--config, default config.yaml). Missing
//	credentials, voice and device indices fall back to the environment and to
//	a .env file (--env-file).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "voxshift:", err)
		os.Exit(1)
	}
}
