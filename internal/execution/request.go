// Package execution implements the Execution Coordinator (spec §4.4):
// pre-trade checks, paired-leg submission, partial-fill monitoring,
// leg-sync correction and the close protocol.
//
// Grounded on the teacher's internal/net/circuit.Breaker.Call fan-out
// shape (a buffered result channel per concurrent call) for submitting
// both legs concurrently, and internal/risk.CircuitBreaker (itself
// grounded on infra/breakers) reused here per-venue to protect every
// venue.Adapter call.
package execution

import (
	"time"

	"github.com/fundingarb/core/internal/types"
)

// Request is one paired-leg execution request, emitted by the Capital
// Allocator on execution.request per spec §4.4.
type Request struct {
	AllocationID   string
	Symbol         string
	LongVenue      string
	ShortVenue     string
	SizeUSD        types.Money
	MaxSlippagePct *float64
}

// Result is Submit's outcome.
type Result struct {
	Position *types.Position
	Failed   bool
	Reason   string
}

// CloseReq is one close-protocol request, per spec §4.4's "close-request
// (from C5 exit trigger or C3 unwind or a user)".
type CloseReq struct {
	PositionID string
	Symbol     string
	LongVenue  string
	ShortVenue string
	Reason     string
}

// CloseResult carries the realized P&L published on position.closed.
type CloseResult struct {
	PositionID  string
	RealizedPnL types.Money
	ClosedAt    time.Time
}
