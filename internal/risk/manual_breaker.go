package risk

import (
	"sync"
	"time"
)

// manualBreaker implements the Risk Controller's own circuit breaker per
// spec §4.6: "Only manual reset (or user-triggered) clears it; this is an
// explicit state mutation that also restores previous mode." That
// contract is incompatible with gobreaker's automatic half-open-after-
// timeout recovery (used instead for CircuitBreaker, the generic
// retry-breaker wrapping external calls), so this is a small
// hand-rolled atomic flag rather than a library call — the spec's
// manual-only semantics are not a concern any pack breaker library
// models.
type manualBreaker struct {
	mu         sync.Mutex
	active     bool
	reason     string
	trippedAt  time.Time
	priorMode  string
}

func (b *manualBreaker) trip(reason, priorMode string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return
	}
	b.active = true
	b.reason = reason
	b.priorMode = priorMode
	b.trippedAt = time.Now().UTC()
}

// reset clears the breaker and returns the mode to restore, per spec's
// "also restores previous mode". Returns ok=false if it was not active.
func (b *manualBreaker) reset() (priorMode string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return "", false
	}
	b.active = false
	priorMode = b.priorMode
	b.reason = ""
	b.priorMode = ""
	return priorMode, true
}

func (b *manualBreaker) snapshot() (active bool, reason string, trippedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.reason, b.trippedAt
}
