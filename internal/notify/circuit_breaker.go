package notify

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitBreaker stops hammering the messaging gateway while it is failing
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration

	consecutiveFailures int
	totalFailures       int
	totalRequests       int
	isOpen              bool
	openedAt            time.Time
	now                 func() time.Time

	mutex sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// RecordSuccess records a delivered message
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.consecutiveFailures = 0
}

// RecordFailure records a failed delivery and opens the circuit after
// failureThreshold consecutive failures
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalRequests++
	cb.totalFailures++
	cb.consecutiveFailures++

	if !cb.isOpen && cb.consecutiveFailures >= cb.failureThreshold {
		cb.isOpen = true
		cb.openedAt = cb.now()
		slog.Warn("notification circuit breaker open",
			"consecutive_failures", cb.consecutiveFailures, "retry_after", cb.resetTimeout)
	}
}

// CanProceed checks if sends are allowed. After resetTimeout the breaker
// half-opens and lets the next send through.
func (cb *CircuitBreaker) CanProceed() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if !cb.isOpen {
		return true
	}

	if cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		slog.Info("notification circuit breaker half-open", "after", cb.resetTimeout)
		cb.isOpen = false
		// one more failure re-opens immediately
		cb.consecutiveFailures = cb.failureThreshold - 1
		return true
	}

	return false
}

// GetStatus returns current circuit breaker status
func (cb *CircuitBreaker) GetStatus() (isOpen bool, failures int, total int) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.isOpen, cb.totalFailures, cb.totalRequests
}
