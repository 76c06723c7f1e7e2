package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker state machine position.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // upstream considered down, rejecting calls
	StateHalfOpen              // probing whether the upstream recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a breaker. Zero values fall back to defaults.
type Config struct {
	FailureThreshold int           // consecutive failures before opening (default 5)
	SuccessThreshold int           // half-open successes before closing (default 2)
	OpenTimeout      time.Duration // open duration before probing (default 30s)
	OnStateChange    func(from, to State)
}

// Breaker guards one upstream explorer API. A run of transport failures
// opens the circuit so the remaining rows for that network fail fast instead
// of each burning the full retry budget against a dead endpoint.
type Breaker struct {
	mu sync.Mutex

	cfg       Config
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed. While open, it returns ErrOpen
// until OpenTimeout has elapsed, then transitions to half-open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) <= b.cfg.OpenTimeout {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// RecordSuccess feeds a successful call into the state machine.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure feeds a failed call into the state machine.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0
	switch {
	case b.state == StateHalfOpen:
		b.openedAt = time.Now()
		b.transition(StateOpen)
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.openedAt = time.Now()
		b.transition(StateOpen)
	}
}

// CurrentState returns the state, promoting open to half-open when the open
// window has elapsed.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.openedAt) > b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.successes = 0
	if to == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
