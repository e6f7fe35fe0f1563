package cache

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerConfig struct {
	MaxFailures      int           `json:"max_failures"`
	Cooldown         time.Duration `json:"cooldown"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`
}

func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker shields callers from a redis that keeps failing: after
// MaxFailures consecutive errors it rejects calls outright until Cooldown
// elapses, then probes with a limited number of half-open calls.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	probes      int
	lastFailure time.Time
	config      *BreakerConfig
}

func NewCircuitBreaker(config *BreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &CircuitBreaker{state: BreakerClosed, config: config}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrBreakerOpen
	}
	if err := fn(); err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(cb.lastFailure) >= cb.config.Cooldown {
			cb.state = BreakerHalfOpen
			cb.probes = 0
			return true
		}
		return false
	default: // half-open
		if cb.probes < cb.config.HalfOpenMaxCalls {
			cb.probes++
			return true
		}
		return false
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case BreakerClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		if cb.probes >= cb.config.HalfOpenMaxCalls {
			cb.state = BreakerClosed
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	stateName := "closed"
	switch cb.state {
	case BreakerOpen:
		stateName = "open"
	case BreakerHalfOpen:
		stateName = "half-open"
	}
	return map[string]interface{}{
		"state":        stateName,
		"failures":     cb.failures,
		"last_failure": cb.lastFailure.Unix(),
		"max_failures": cb.config.MaxFailures,
		"cooldown":     cb.config.Cooldown.String(),
	}
}
