package pipeline

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateListening, "listening"},
		{StateRecording, "recording"},
		{StateProcessing, "processing"},
		{StateStreaming, "streaming"},
		{StateStopping, "stopping"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestStateHolder_NotifiesChangesOnly(t *testing.T) {
	t.Parallel()
	var h stateHolder
	var seen []State
	h.notify = func(s State) {
		h.get()
		seen = append(seen, s)
	}
	stop := h.start()

	h.set(StateListening)
	h.set(StateListening)
	h.update(func(cur State) (State, bool) { return StateRecording, cur == StateProcessing })
	h.update(func(cur State) (State, bool) { return StateRecording, cur == StateListening })
	stop()

	want := []State{StateListening, StateRecording}
	if !slices.Equal(seen, want) {
		t.Errorf("got notifications %v, want %v", seen, want)
	}

	// Without a delivery goroutine the state still moves, silently.
	h.set(StateIdle)
	if got := h.get(); got != StateIdle || len(seen) != 2 {
		t.Errorf("got state %v with %d notifications, want idle with 2", got, len(seen))
	}
}

// A capture callback moving the state while an observer is busy, and reads
// the state itself, must not wait for that observer.
func TestStateHolder_UpdateDoesNotWaitForObserver(t *testing.T) {
	t.Parallel()
	var (
		h    stateHolder
		mu   sync.Mutex
		seen []State
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.notify = func(s State) {
		if s == StateStreaming {
			close(entered)
			<-release
		}
		h.get()
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}
	stop := h.start()

	go h.set(StateStreaming)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("observer never saw streaming")
	}

	done := make(chan struct{})
	go func() {
		h.update(func(cur State) (State, bool) { return StateRecording, cur == StateStreaming })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("update blocked behind a busy observer")
	}
	if got := h.get(); got != StateRecording {
		t.Errorf("got state %v, want recording", got)
	}

	close(release)
	stop()
	mu.Lock()
	defer mu.Unlock()
	if want := []State{StateStreaming, StateRecording}; !slices.Equal(seen, want) {
		t.Errorf("got notifications %v, want %v", seen, want)
	}
}

func TestStateHolder_OrderedNotifications(t *testing.T) {
	t.Parallel()
	var (
		h    stateHolder
		seen []State
	)
	h.notify = func(s State) { seen = append(seen, s) }
	stop := h.start()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Go(func() {
			if i%2 == 0 {
				h.set(StateRecording)
			} else {
				h.set(StateListening)
			}
		})
	}
	wg.Wait()
	stop()

	// Each notification reports a change, so neighbours always differ and
	// the last one matches the final state.
	for i := 1; i < len(seen); i++ {
		if seen[i] == seen[i-1] {
			t.Fatalf("notification %d repeats %v", i, seen[i])
		}
	}
	if len(seen) == 0 || seen[len(seen)-1] != h.get() {
		t.Errorf("got notifications %v, want the last to be final state %v", seen, h.get())
	}
}

func TestActive(t *testing.T) {
	t.Parallel()
	for _, s := range []State{StateIdle, StateStopping} {
		if active(s) {
			t.Errorf("active(%v) = true, want false", s)
		}
	}
	for _, s := range []State{StateListening, StateRecording, StateProcessing, StateStreaming} {
		if !active(s) {
			t.Errorf("active(%v) = false, want true", s)
		}
	}
}
