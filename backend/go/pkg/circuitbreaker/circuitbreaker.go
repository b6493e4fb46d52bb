package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jaqpot/backend/go/internal/config"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen lets trial requests through to check for recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open. Errors satisfying the
	// breaker's ignore predicate do not count as failures.
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Option configures a breaker.
type Option func(*breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) { b.now = now }
}

// IgnoreErrors marks errors for which ignore returns true as non-failures.
// Context cancellation is always ignored.
func IgnoreErrors(ignore func(error) bool) Option {
	return func(b *breaker) { b.ignore = ignore }
}

type breaker struct {
	failureThreshold uint32        // Number of failures to trip the circuit.
	successThreshold uint32        // Number of successes in HalfOpen state to close the circuit.
	timeout          time.Duration // Duration to wait in Open state before transitioning to HalfOpen.
	now              func() time.Time
	ignore           func(error) bool

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	openedAt  time.Time
}

// New creates a breaker that opens after failureThreshold consecutive
// failures, stays open for timeout and closes again after successThreshold
// consecutive half-open successes.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		now:              time.Now,
		ignore:           func(error) bool { return false },
		state:            Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromConfig builds a breaker from configuration. It returns nil when the
// breaker is disabled.
func FromConfig(cfg config.CircuitBreakerConfig, opts ...Option) (CircuitBreaker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	return New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout, opts...), nil
}

func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

func (b *breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	b.advance()
	if b.state == Open {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case err == nil:
		b.onSuccess()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), b.ignore(err):
	default:
		b.onFailure()
	}
	return err
}

// advance moves Open to HalfOpen once the timeout elapsed. Caller holds mu.
func (b *breaker) advance() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	case Closed:
		b.failures = 0
	}
}

func (b *breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
}
