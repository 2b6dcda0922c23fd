// Package types holds the shared data model consumed by every core
// component: funding rates, quotes, venue health, opportunities,
// allocations, positions, orders and the derived risk snapshot.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money is a fixed-precision decimal used for monetary amounts, prices,
// funding rates and spreads in the data model. Percentages, scores,
// base-asset quantities and price correlation are plain float64.
type Money = decimal.Decimal

// Zero is the canonical zero Money value.
var Zero = decimal.Zero

// NewID returns a fresh identifier for any entity in the data model.
func NewID() string {
	return uuid.NewString()
}

// NowUTC returns the current time truncated to millisecond precision in UTC,
// the minimum precision the data model requires for every timestamp.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Clamp restricts v to the closed interval [lo, hi].
func Clamp(v, lo, hi Money) Money {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// ClampF restricts a binary float to [lo, hi], used for correlation and
// Kelly fractions where spec explicitly allows binary floats with
// division-by-zero guards.
func ClampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeDiv divides a by b, returning zero when b is zero instead of
// panicking or producing +/-Inf/NaN. Used wherever spec calls for a ratio
// over a quantity that may legitimately be zero (e.g. max(long, short)
// filled size before either leg fills).
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
