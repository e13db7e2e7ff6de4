package broker

import (
	"sync"
	"time"
)

// CircuitBreaker stops all scraping for a fixed cooldown once the target
// book signals rate limiting.
type CircuitBreaker struct {
	mu sync.RWMutex

	// Configuration
	cooldownDuration time.Duration

	// State
	tripped             bool
	trippedAt           time.Time
	reason              string
	consecutiveFailures int

	now func() time.Time
}

// BreakerStats is a snapshot of the breaker state
type BreakerStats struct {
	Tripped             bool
	TrippedAt           time.Time
	Reason              string
	CooldownRemaining   time.Duration
	ConsecutiveFailures int
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cooldown time.Duration, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{
		cooldownDuration: cooldown,
		now:              now,
	}
}

// Allow reports whether requests may proceed. A tripped breaker resets itself
// once the cooldown has fully elapsed; reset is true on that transition.
func (cb *CircuitBreaker) Allow() (allowed bool, reset bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tripped {
		return true, false
	}
	if cb.now().Sub(cb.trippedAt) >= cb.cooldownDuration {
		cb.reset()
		return true, true
	}
	return false, false
}

// Trip opens the breaker. Tripping an open breaker restarts the cooldown.
func (cb *CircuitBreaker) Trip(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = true
	cb.trippedAt = cb.now()
	cb.reason = reason
}

// RecordFailure counts an ordinary request failure
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
}

// RecordSuccess clears the failure count
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
}

// IsTripped returns current trip state without applying the cooldown
func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.tripped
}

// Cooldown returns the configured cooldown
func (cb *CircuitBreaker) Cooldown() time.Duration {
	return cb.cooldownDuration
}

// Stats returns circuit breaker statistics
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	stats := BreakerStats{
		Tripped:             cb.tripped,
		TrippedAt:           cb.trippedAt,
		Reason:              cb.reason,
		ConsecutiveFailures: cb.consecutiveFailures,
	}
	if cb.tripped {
		if remaining := cb.cooldownDuration - cb.now().Sub(cb.trippedAt); remaining > 0 {
			stats.CooldownRemaining = remaining
		}
	}
	return stats
}

// ForceReset manually resets the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

func (cb *CircuitBreaker) reset() {
	cb.tripped = false
	cb.reason = ""
	cb.consecutiveFailures = 0
}
