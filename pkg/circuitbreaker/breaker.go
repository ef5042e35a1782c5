// Package circuitbreaker stops calling a failing dependency for a cool-down
// period once it has failed several times in a row.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
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
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned without calling the dependency while the breaker
	// is open.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrProbeLimit is returned in half-open state once every probe slot
	// is taken.
	ErrProbeLimit = errors.New("circuit breaker probe limit reached")
)

// Config holds breaker settings.
type Config struct {
	Name string

	// Consecutive failures that open the breaker
	FailureThreshold int

	// Consecutive half-open successes that close it again
	SuccessThreshold int

	// Cool-down before the first probe
	OpenTimeout time.Duration

	// Concurrent probes allowed while half-open
	MaxProbes int

	// IsFailure decides which errors count. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called with the lock held; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

// Option configures a Breaker.
type Option func(*Config)

// WithFailureThreshold sets the failures that open the breaker.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the probe successes that close the breaker.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithOpenTimeout sets the cool-down.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.OpenTimeout = d
		}
	}
}

// WithMaxProbes sets the concurrent half-open probes.
func WithMaxProbes(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxProbes = n
		}
	}
}

// WithIsFailure sets the failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) { c.IsFailure = fn }
}

// WithOnStateChange sets the transition callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) { c.OnStateChange = fn }
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	successes  int
	openedAt   time.Time
	probesOpen int
}

// New creates a closed breaker.
func New(name string, opts ...Option) *Breaker {
	cfg := Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
		MaxProbes:        1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// EmailBreaker returns the breaker guarding the mail provider: it opens after
// three consecutive failures and probes again after one minute.
func EmailBreaker(isFailure func(error) bool, onStateChange func(name string, from, to State)) *Breaker {
	return New("email",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithOpenTimeout(time.Minute),
		WithMaxProbes(1),
		WithIsFailure(isFailure),
		WithOnStateChange(onStateChange),
	)
}

// Execute calls fn unless the breaker rejects the call, and records the
// outcome. A context error is never counted against the dependency.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.record(err, probe, ctx.Err() != nil)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false, ErrOpen
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probesOpen >= b.cfg.MaxProbes {
			return false, ErrProbeLimit
		}
		b.probesOpen++
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) record(err error, probe, cancelled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.probesOpen > 0 {
		b.probesOpen--
	}
	if err != nil && cancelled {
		return
	}

	failed := err != nil
	if failed && b.cfg.IsFailure != nil {
		failed = b.cfg.IsFailure(err)
	}

	if failed {
		b.successes = 0
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
		b.probesOpen = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

// State returns the current position. An open breaker whose cool-down has
// passed still reports open until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
	b.probesOpen = 0
}
