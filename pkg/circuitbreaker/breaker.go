// Package circuitbreaker stops calls to a dependency after repeated failures
// and lets a single probe through once a cooldown has passed.
//
// States:
//   - Closed: calls pass through
//   - Open: calls are rejected until the cooldown elapses
//   - HalfOpen: one probe call is in flight; its outcome closes or reopens
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for a circuit breaker.
type Config struct {
	Name      string        // Reported to OnStateChange; the registry sets it to the key
	Threshold int           // Consecutive failures before opening (default: 5)
	Cooldown  time.Duration // Open duration before a probe is allowed (default: 30s)

	// OnStateChange is called after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// Breaker guards a single dependency.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures
	openedAt time.Time // when the breaker last opened
	probing  bool      // a half-open probe is in flight
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a call may be attempted. In the half-open state only
// the first caller gets through until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return false
		}
		b.probing = true
		notify := b.transition(HalfOpen)
		b.mu.Unlock()
		notify()
		return true
	case HalfOpen:
		allowed := !b.probing
		b.probing = true
		b.mu.Unlock()
		return allowed
	default:
		b.mu.Unlock()
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	notify := b.transition(Closed)
	b.mu.Unlock()
	notify()
}

// RecordFailure counts a failure. A failed probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.probing = false

	notify := func() {}
	if b.state == HalfOpen || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		notify = b.transition(Open)
	}
	b.mu.Unlock()
	notify()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// transition must be called with b.mu held. The returned func runs the
// state-change hook and must be called after unlocking.
func (b *Breaker) transition(to State) func() {
	from := b.state
	if from == to {
		return func() {}
	}
	b.state = to
	hook := b.cfg.OnStateChange
	if hook == nil {
		return func() {}
	}
	name := b.cfg.Name
	return func() { hook(name, from, to) }
}
