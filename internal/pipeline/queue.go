package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// utterance is one captured segment travelling from the capture callback to
// the processing worker.
type utterance struct {
	id         uuid.UUID
	pcm        []byte
	capturedAt time.Time
}

// utteranceQueue is a bounded FIFO with a non-blocking producer side. A full
// queue rejects the newest item.
type utteranceQueue struct {
	ch chan utterance
}

func newUtteranceQueue(size int) *utteranceQueue {
	return &utteranceQueue{ch: make(chan utterance, size)}
}

// tryPush enqueues u without blocking. It reports false when the queue is full.
func (q *utteranceQueue) tryPush(u utterance) bool {
	select {
	case q.ch <- u:
		return true
	default:
		return false
	}
}

// pop waits up to timeout for an utterance. It reports false on timeout or
// when ctx is done.
func (q *utteranceQueue) pop(ctx context.Context, timeout time.Duration) (utterance, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case u := <-q.ch:
		return u, true
	case <-t.C:
	case <-ctx.Done():
	}
	return utterance{}, false
}

func (q *utteranceQueue) len() int { return len(q.ch) }

// Chunk is one element of the audio queue: synthesized PCM for an utterance,
// or the EndMarker that closes the utterance's sequence.
type Chunk struct {
	UtteranceID uuid.UUID
	PCM         []byte
	End         bool
}

// EndMarker returns the sentinel that follows the last chunk of utterance id.
func EndMarker(id uuid.UUID) Chunk {
	return Chunk{UtteranceID: id, End: true}
}

// audioQueue is a bounded FIFO whose producer blocks until there is room or
// the pipeline stops.
type audioQueue struct {
	ch chan Chunk
}

func newAudioQueue(size int) *audioQueue {
	return &audioQueue{ch: make(chan Chunk, size)}
}

// push blocks until c is enqueued or ctx is done.
func (q *audioQueue) push(ctx context.Context, c Chunk) error {
	select {
	case q.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryPush enqueues c only if there is room.
func (q *audioQueue) tryPush(c Chunk) bool {
	select {
	case q.ch <- c:
		return true
	default:
		return false
	}
}

func (q *audioQueue) pop(ctx context.Context, timeout time.Duration) (Chunk, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case c := <-q.ch:
		return c, true
	case <-t.C:
	case <-ctx.Done():
	}
	return Chunk{}, false
}

func (q *audioQueue) len() int { return len(q.ch) }
