package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxshift/internal/pipeline"
	"github.com/MrWong99/voxshift/pkg/audio"
	"github.com/MrWong99/voxshift/pkg/provider/stt"
	"github.com/MrWong99/voxshift/pkg/provider/tts"
	"github.com/MrWong99/voxshift/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a speech-to-text provider for one pipeline run.
type STTFactory func(entry ProviderEntry, pc pipeline.Config) (stt.Provider, error)

// TTSFactory builds a text-to-speech provider for one pipeline run.
type TTSFactory func(entry ProviderEntry, pc pipeline.Config) (tts.Provider, error)

// VADFactory builds a voice activity detection engine.
type VADFactory func(entry ProviderEntry) (vad.Engine, error)

// AudioFactory builds an audio backend.
type AudioFactory func(entry ProviderEntry) (AudioBackend, error)

// AudioBackend opens capture and playback devices. Devices may be nil when the
// backend cannot enumerate host devices.
type AudioBackend struct {
	Source  func(pc pipeline.Config) (audio.Source, error)
	Sink    func(pc pipeline.Config) (audio.Sink, error)
	Devices audio.DeviceLister
}

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]STTFactory
	tts   map[string]TTSFactory
	vad   map[string]VADFactory
	audio map[string]AudioFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]STTFactory),
		tts:   make(map[string]TTSFactory),
		vad:   make(map[string]VADFactory),
		audio: make(map[string]AudioFactory),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a TTS provider factory under name.
func (r *Registry) RegisterTTS(name string, factory TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory VADFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterAudio registers an audio backend factory under name.
func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry, pc pipeline.Config) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, pc)
}

// CreateTTS instantiates a TTS provider using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry, pc pipeline.Config) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, pc)
}

// CreateVAD instantiates a VAD engine using the factory registered under entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAudio instantiates an audio backend using the factory registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (AudioBackend, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return AudioBackend{}, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the sorted names registered for kind ("stt", "tts", "vad" or
// "audio"). Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		names = keys(r.stt)
	case "tts":
		names = keys(r.tts)
	case "vad":
		names = keys(r.vad)
	case "audio":
		names = keys(r.audio)
	}
	slices.Sort(names)
	return names
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
