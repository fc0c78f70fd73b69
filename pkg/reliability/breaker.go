// Package reliability guards the live queues: a keyed circuit breaker
// fed by terminal job failures, and a debounced backlog monitor.
package reliability

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that opens a breaker.
	DefaultBreakerThreshold = 5
	// DefaultBreakerCooldown is how long an opened breaker keeps its queue paused.
	DefaultBreakerCooldown = 60 * time.Second
)

// BreakerConfig tunes the keyed circuit breaker.
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

func (c *BreakerConfig) normalize() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultBreakerThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultBreakerCooldown
	}
}

type breakerState struct {
	consecutiveFailures int
	openedUntil         time.Time
}

// Breaker tracks consecutive terminal failures per (queue, job kind).
// State is process-local and guarded by one mutex: failure hooks run
// concurrently across worker goroutines and lost updates would
// under-count failures.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu     sync.Mutex
	states map[string]*breakerState
}

// NewBreaker creates an empty breaker registry.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.normalize()
	return &Breaker{
		cfg:    cfg,
		now:    time.Now,
		states: map[string]*breakerState{},
	}
}

// Cooldown returns the configured open window.
func (b *Breaker) Cooldown() time.Duration {
	return b.cfg.Cooldown
}

// RecordFailure counts one terminal failure for the key. It returns
// true exactly when this failure transitions the breaker to open; an
// already-open breaker absorbs further failures silently.
func (b *Breaker) RecordFailure(queueName, kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.state(queueName, kind)
	if state.openedUntil.After(b.now()) {
		return false
	}
	state.consecutiveFailures++
	if state.consecutiveFailures < b.cfg.Threshold {
		return false
	}
	state.openedUntil = b.now().Add(b.cfg.Cooldown)
	return true
}

// RecordSuccess resets the key's failure count immediately. The breaker
// heals on the first success, not after a full cooldown.
func (b *Breaker) RecordSuccess(queueName, kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state(queueName, kind).consecutiveFailures = 0
}

// Expire closes the key after its cooldown elapsed: counter and open
// window are cleared together.
func (b *Breaker) Expire(queueName, kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.state(queueName, kind)
	state.consecutiveFailures = 0
	state.openedUntil = time.Time{}
}

// IsOpen reports whether the key is inside its open window.
func (b *Breaker) IsOpen(queueName, kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(queueName, kind).openedUntil.After(b.now())
}

// Failures returns the current consecutive-failure count for the key.
func (b *Breaker) Failures(queueName, kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(queueName, kind).consecutiveFailures
}

func (b *Breaker) state(queueName, kind string) *breakerState {
	key := breakerKey(queueName, kind)
	state, ok := b.states[key]
	if !ok {
		state = &breakerState{}
		b.states[key] = state
	}
	return state
}

func breakerKey(queueName, kind string) string {
	return strings.TrimSpace(queueName) + "|" + strings.TrimSpace(kind)
}
