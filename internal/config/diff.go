package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
//
// Only the log level is applied live. Everything the running pipeline was
// built from is reported in RestartRequired, because a [pipeline.Config] is
// fixed for the lifetime of a run.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the YAML paths of changed settings that only take
	// effect on the next Start.
	RestartRequired []string
}

// Changed reports whether d carries any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	d.RestartRequired = append(d.RestartRequired, diffPipeline(&old.Pipeline, &new.Pipeline)...)

	providers := []struct {
		path     string
		old, new any
	}{
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.stt_fallbacks", old.Providers.STTFallbacks, new.Providers.STTFallbacks},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.tts_fallbacks", old.Providers.TTSFallbacks, new.Providers.TTSFallbacks},
		{"providers.vad", old.Providers.VAD, new.Providers.VAD},
		{"providers.audio", old.Providers.Audio, new.Providers.Audio},
		{"journal", old.Journal, new.Journal},
	}
	for _, p := range providers {
		if !reflect.DeepEqual(p.old, p.new) {
			d.RestartRequired = append(d.RestartRequired, p.path)
		}
	}

	return d
}

// diffPipeline returns the YAML paths of pipeline fields that differ.
func diffPipeline(old, new *PipelineConfig) []string {
	var out []string
	add := func(changed bool, path string) {
		if changed {
			out = append(out, "pipeline."+path)
		}
	}
	add(old.SampleRate != new.SampleRate, "sample_rate")
	add(old.ChunkMs != new.ChunkMs, "chunk_ms")
	add(intPtr(old.VADAggressiveness) != intPtr(new.VADAggressiveness), "vad_aggressiveness")
	add(old.MinSpeechMs != new.MinSpeechMs, "min_speech_ms")
	add(old.MinSilenceMs != new.MinSilenceMs, "min_silence_ms")
	add(old.PaddingMs != new.PaddingMs, "padding_ms")
	add(old.Language != new.Language, "language")
	add(old.VoiceID != new.VoiceID, "voice_id")
	add(old.MinTextLength != new.MinTextLength, "min_text_length")
	add(!slices.Equal(old.NoiseWords, new.NoiseWords), "noise_words")
	add(!slices.Equal(old.Vocabulary, new.Vocabulary), "vocabulary")
	add(old.UtteranceQueueSize != new.UtteranceQueueSize, "utterance_queue_size")
	add(old.AudioQueueSize != new.AudioQueueSize, "audio_queue_size")
	add(old.PollTimeout != new.PollTimeout, "poll_timeout")
	add(old.StopTimeout != new.StopTimeout, "stop_timeout")
	add(old.StreamSynthesis != new.StreamSynthesis, "stream_synthesis")
	return out
}

func intPtr(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
