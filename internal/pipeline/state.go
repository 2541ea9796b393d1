package pipeline

import "sync"

// State is the coarse phase of a running pipeline.
type State int

const (
	StateIdle State = iota
	StateListening
	StateRecording
	StateProcessing
	StateStreaming
	StateStopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// stateHolder guards the single live State of an Orchestrator.
//
// mu is the only lock. Each change is queued under mu and handed to notify
// by one delivery goroutine, in the order the changes were made. Callers of
// update never wait for an observer.
type stateHolder struct {
	mu      sync.Mutex
	cur     State
	pending []State
	wake    chan struct{} // nil while no delivery goroutine runs
	notify  func(State)
}

func (h *stateHolder) get() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

// set moves to s unconditionally.
func (h *stateHolder) set(s State) {
	h.update(func(State) (State, bool) { return s, true })
}

// update calls fn with the current state under the lock. When fn reports ok
// and the state actually changes, the change is queued for the observer.
// Changes made while no delivery goroutine runs are not reported.
func (h *stateHolder) update(fn func(cur State) (next State, ok bool)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	next, ok := fn(h.cur)
	if !ok || next == h.cur {
		return false
	}
	h.cur = next
	if h.wake != nil {
		h.pending = append(h.pending, next)
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
	return true
}

// start launches the delivery goroutine. The returned stop func reports
// every change queued so far, then ends the goroutine.
func (h *stateHolder) start() (stop func()) {
	wake := make(chan struct{}, 1)
	h.mu.Lock()
	h.wake = wake
	h.pending = nil
	h.mu.Unlock()

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-wake:
				h.deliver()
			case <-quit:
				h.deliver()
				return
			}
		}
	}()
	return func() {
		h.mu.Lock()
		h.wake = nil
		h.mu.Unlock()
		close(quit)
		<-done
	}
}

func (h *stateHolder) deliver() {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, s := range batch {
		if h.notify != nil {
			h.notify(s)
		}
	}
}

// active reports whether s belongs to a running pipeline that workers may
// still move between phases.
func active(s State) bool {
	return s != StateIdle && s != StateStopping
}
