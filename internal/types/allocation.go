package types

import "time"

// AllocationState is the lifecycle state of a capital allocation.
type AllocationState string

const (
	AllocPending   AllocationState = "PENDING"
	AllocExecuting AllocationState = "EXECUTING"
	AllocActive    AllocationState = "ACTIVE"
	AllocClosing   AllocationState = "CLOSING"
	AllocClosed    AllocationState = "CLOSED"
	AllocFailed    AllocationState = "FAILED"
	AllocCancelled AllocationState = "CANCELLED"
)

// Terminal reports whether the state is one from which no further
// transition is expected.
func (s AllocationState) Terminal() bool {
	switch s {
	case AllocClosed, AllocFailed, AllocCancelled:
		return true
	default:
		return false
	}
}

// allocationTransitions enumerates the only legal state-to-state edges,
// enforced by Allocation.TransitionTo. This is the concrete form of spec
// §5's ordering guarantee: "EXECUTING precedes ACTIVE precedes CLOSING
// precedes CLOSED; violations are dropped."
var allocationTransitions = map[AllocationState]map[AllocationState]bool{
	AllocPending:   {AllocExecuting: true, AllocCancelled: true, AllocFailed: true},
	AllocExecuting: {AllocActive: true, AllocFailed: true},
	AllocActive:    {AllocClosing: true},
	AllocClosing:   {AllocClosed: true},
}

// Allocation reserves capital against a (weak) reference to the opportunity
// that spawned it.
type Allocation struct {
	ID                string
	OpportunityID     string // weak reference; opportunity may already be gone
	Symbol            string
	LongVenue         string
	ShortVenue        string
	SizeUSD           Money
	UOSAtEntry        float64
	PositionID        string // empty until EXECUTING
	State             AllocationState
	CreatedAt         time.Time
	ExecutedAt        *time.Time
	ClosedAt          *time.Time
	RealizedPnL       Money
	UnrealizedPnL     Money // mirrored from position
	NetFundingCollected Money // mirrored from position
}

// TransitionTo attempts the state change, returning false (without
// mutating state) if the edge is not legal. Per spec §9's single-writer
// rule this must only ever be called by the Capital Allocator.
func (a *Allocation) TransitionTo(next AllocationState) bool {
	if a.State == next {
		return true // idempotent replay, spec §8 round-trip property
	}
	edges, ok := allocationTransitions[a.State]
	if !ok || !edges[next] {
		return false
	}
	a.State = next
	now := NowUTC()
	switch next {
	case AllocExecuting:
		a.ExecutedAt = &now
	case AllocClosed, AllocFailed, AllocCancelled:
		a.ClosedAt = &now
	}
	return true
}
