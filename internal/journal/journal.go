// Package journal records what happened to every utterance the pipeline
// processed: the recognised text, whether it was spoken, filtered, dropped or
// failed, and how long each stage took.
//
// The default [Memory] store keeps a bounded ring in process. Durable
// backends live in the postgres and badger subpackages. All stores are safe
// for concurrent use.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the final disposition of one utterance.
type Outcome string

const (
	// OutcomeSpoken means the text was synthesized and queued for playback.
	OutcomeSpoken Outcome = "spoken"

	// OutcomeFiltered means the transcript was empty, too short or noise.
	OutcomeFiltered Outcome = "filtered"

	// OutcomeFailed means transcription or synthesis returned an error.
	OutcomeFailed Outcome = "failed"

	// OutcomeDropped means the utterance queue was full at capture time.
	OutcomeDropped Outcome = "dropped"
)

// Entry is one journal record.
type Entry struct {
	ID         uuid.UUID `msgpack:"id" json:"id"`
	CapturedAt time.Time `msgpack:"captured_at" json:"captured_at"`
	Text       string    `msgpack:"text" json:"text"`
	Outcome    Outcome   `msgpack:"outcome" json:"outcome"`

	// Reason explains a filtered or failed outcome.
	Reason string `msgpack:"reason" json:"reason"`

	AudioDuration time.Duration `msgpack:"audio_duration" json:"audio_duration"`
	STTDuration   time.Duration `msgpack:"stt_duration" json:"stt_duration"`
	TTSDuration   time.Duration `msgpack:"tts_duration" json:"tts_duration"`

	// SynthBytes is the number of PCM bytes pushed to the playback queue.
	SynthBytes int `msgpack:"synth_bytes" json:"synth_bytes"`
}

// Store persists journal entries.
type Store interface {
	// Record appends e.
	Record(ctx context.Context, e Entry) error

	// Recent returns at most limit of the newest entries in chronological
	// order (oldest first). A limit <= 0 returns every retained entry.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close() error
}

// DefaultCapacity is the ring size used by [NewMemory] when capacity <= 0.
const DefaultCapacity = 256

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("journal: store closed")

// Memory is an in-process ring of the newest entries.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	n       int
	closed  bool
}

// NewMemory returns a ring that retains the last capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{entries: make([]Entry, capacity)}
}

// Record implements [Store]. The oldest entry is evicted when the ring is full.
func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	size := len(m.entries)
	if m.n < size {
		m.entries[(m.start+m.n)%size] = e
		m.n++
		return nil
	}
	m.entries[m.start] = e
	m.start = (m.start + 1) % size
	return nil
}

// Recent implements [Store].
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	n := m.n
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := m.n - n; i < m.n; i++ {
		out = append(out, m.entries[(m.start+i)%len(m.entries)])
	}
	return out, nil
}

// Close implements [Store].
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Discard is a [Store] that keeps nothing.
type Discard struct{}

func (Discard) Record(context.Context, Entry) error { return nil }

func (Discard) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

func (Discard) Close() error { return nil }

var (
	_ Store = (*Memory)(nil)
	_ Store = Discard{}
)
