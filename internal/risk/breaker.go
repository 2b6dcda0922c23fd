package risk

import (
	"time"

	gobreaker "github.com/sony/gobreaker"
)

// CircuitBreaker wraps sony/gobreaker as a generic call breaker: once
// open it rejects calls until its timeout elapses, then lets trial calls
// through in the half-open state. The execution Coordinator keeps one per
// venue; the Risk Controller's trade gate uses manualBreaker instead.
// Grounded on the teacher's infra/breakers.Breaker (same Settings shape,
// same ReadyToTrip blend of a low consecutive-failure count and a
// request-rate failure ratio).
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker constructs a breaker that trips after
// consecutiveFailures in a row, or once total requests in the rolling
// interval reach 20 and the failure ratio exceeds 5%, matching the
// teacher's dual policy.
func NewCircuitBreaker(name string, consecutiveFailures uint32, interval, timeout time.Duration) *CircuitBreaker {
	st := gobreaker.Settings{
		Name:     name,
		Interval: interval,
		Timeout:  timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= consecutiveFailures {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker, counting its outcome toward the
// trip policy.
func (b *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// State reports the underlying gobreaker state as a plain string for
// logging/activity narratives.
func (b *CircuitBreaker) State() string {
	return b.cb.State().String()
}
