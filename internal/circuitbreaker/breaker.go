// Package circuitbreaker guards module handlers that fail repeatedly.
//
// Each target module gets an independent breaker: a run of consecutive
// failures opens it, dispatches while open fail fast, and after the
// cooldown a single half-open probe decides whether it closes again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type moduleState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*moduleState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*moduleState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// Allow reports whether a dispatch to the module may proceed. In the open
// state it admits one probe after the cooldown; further calls keep failing
// until the probe reports back.
func (cb *CircuitBreaker) Allow(module string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[module]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if cb.clock().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the module's breaker.
func (cb *CircuitBreaker) RecordSuccess(module string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[module]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure counts a failure; reaching the threshold opens the breaker.
func (cb *CircuitBreaker) RecordFailure(module string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[module]
	if !ok {
		s = &moduleState{}
		cb.states[module] = s
	}

	s.consecutiveFailures++
	if s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.clock()
	}
}
