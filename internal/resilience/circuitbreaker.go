// Package resilience keeps a voice session alive when a speech engine
// misbehaves.
//
// Every STT or TTS engine a session may use gets its own [CircuitBreaker].
// [FallbackGroup] walks the engines in configured order and skips those whose
// breaker is open. [STTFallback] and [TTSFallback] present such a group as a
// plain provider, so the pipeline never knows failover happened.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the engine is
// being rested.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last failure.
	StateOpen
	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successful probes close the breaker; one failed probe re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultProbes       = 3
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero fields take the
// package defaults.
type CircuitBreakerConfig struct {
	// Name identifies the engine in logs and state-change callbacks.
	Name string

	// MaxFailures is how many failures in a row open the breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker rests the engine.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of probe calls let through after a rest, and
	// the number of successes needed to close again.
	HalfOpenMax int

	// IsFailure reports whether err says something about engine health.
	// The default ignores context.Canceled: a barge-in or shutdown that
	// abandons a transcription is not the engine's fault.
	IsFailure func(err error) bool

	// OnStateChange, when set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

func engineFault(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// CircuitBreaker guards a single engine.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int // consecutive, closed state only
	lastFailure time.Time
	probes      int // probe calls admitted since entering half-open
	probeOK     int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultProbes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = engineFault
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the engine name the breaker was configured with.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Execute calls fn unless the breaker is open or the half-open probe budget
// is spent, in which case it returns [ErrCircuitOpen]. Errors from fn are
// returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	cb.mu.Lock()
	from := cb.state
	switch {
	case callErr == nil:
		cb.succeeded(probe)
	case cb.cfg.IsFailure(callErr):
		cb.failed(probe)
	case probe:
		cb.probes--
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return callErr
}

// admit decides whether a call may proceed and whether it is a probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	from := cb.state
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		cb.state = StateHalfOpen
		cb.probes, cb.probeOK = 0, 0
	}
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.probes < cb.cfg.HalfOpenMax {
			cb.probes++
			probe = true
		} else {
			err = ErrCircuitOpen
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return probe, err
}

// failed must be called with cb.mu held.
func (cb *CircuitBreaker) failed(probe bool) {
	cb.lastFailure = cb.cfg.Now()
	if probe {
		cb.state = StateOpen
		return
	}
	cb.failures++
	if cb.state == StateClosed && cb.failures >= cb.cfg.MaxFailures {
		cb.state = StateOpen
	}
}

// succeeded must be called with cb.mu held.
func (cb *CircuitBreaker) succeeded(probe bool) {
	if !probe {
		cb.failures = 0
		return
	}
	if cb.state != StateHalfOpen {
		// Another probe already re-opened the breaker.
		return
	}
	cb.probeOK++
	if cb.probeOK >= cb.cfg.HalfOpenMax {
		cb.state = StateClosed
		cb.failures, cb.probes, cb.probeOK = 0, 0, 0
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: breaker state changed",
		"name", cb.cfg.Name, "from", from.String(), "to", to.String())
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// State reports the current state. An open breaker whose rest has elapsed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.probes, cb.probeOK = 0, 0, 0
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}
