package resilience

import (
	"context"
	"sync"
	"time"
)

// State is the breaker's view of the origin.
type State int

const (
	// StateClosed: the origin is considered reachable.
	StateClosed State = iota
	// StateOpen: the origin is considered unreachable; calls fail fast.
	StateOpen
	// StateHalfOpen: cooldown elapsed; a limited number of trial calls may pass.
	StateHalfOpen
)

// String returns the state label.
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

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	// Default: 5
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30 seconds
	Cooldown time.Duration

	// HalfOpenCalls is the number of calls admitted while half-open.
	// Default: 1
	HalfOpenCalls int

	// Counts decides whether an error is an origin failure.
	// Default: every non-nil error that is not a context cancellation.
	Counts func(err error) bool

	// OnTransition is called after every state change, outside the lock.
	OnTransition func(from, to State)

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Breaker tracks origin reachability from call outcomes.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenCalls <= 0 {
		cfg.HalfOpenCalls = 1
	}
	if cfg.Counts == nil {
		cfg.Counts = countsAsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

func countsAsFailure(err error) bool {
	return err != nil && err != context.Canceled
}

// Do runs op unless the breaker is open.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// State returns the current state, promoting open to half-open after cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	from, to := b.refreshLocked()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.inflight = 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	from, to := b.refreshLocked()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrOriginUnavailable
	case StateHalfOpen:
		if b.inflight >= b.cfg.HalfOpenCalls {
			err = ErrOriginUnavailable
		} else {
			b.inflight++
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
	return err
}

func (b *Breaker) record(err error) {
	failed := b.cfg.Counts(err)

	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.state = StateOpen
			b.openedAt = b.cfg.Now()
		}
	case StateHalfOpen:
		b.inflight--
		if failed {
			b.state = StateOpen
			b.openedAt = b.cfg.Now()
		} else {
			b.state = StateClosed
			b.failures = 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *Breaker) refreshLocked() (State, State) {
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		b.inflight = 0
		return StateOpen, StateHalfOpen
	}
	return b.state, b.state
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.cfg.OnTransition != nil {
		b.cfg.OnTransition(from, to)
	}
}
