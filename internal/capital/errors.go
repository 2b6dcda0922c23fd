package capital

import "errors"

var (
	// ErrBelowMinKellyEdge is returned when Kelly sizing is enabled and
	// the computed edge fails spec §4.3's min-Kelly-edge floor.
	ErrBelowMinKellyEdge = errors.New("capital: kelly edge below minimum")
	// ErrAllocationNotFound is returned by any lookup against an unknown
	// allocation ID.
	ErrAllocationNotFound = errors.New("capital: allocation not found")
	// ErrIllegalTransition mirrors types.Allocation.TransitionTo's false
	// return with a concrete error for callers that need one.
	ErrIllegalTransition = errors.New("capital: illegal allocation state transition")
	// ErrLockNotAcquired is returned when the reconciliation/enforcement
	// fenced lock is already held elsewhere.
	ErrLockNotAcquired = errors.New("capital: distributed lock not acquired")
)
