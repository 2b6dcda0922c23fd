package risk

import "errors"

var (
	ErrCircuitBreakerOpen = errors.New("risk: circuit breaker is active")
	ErrNotTripped         = errors.New("risk: circuit breaker is not active")
)
