package types

import "time"

// PositionState is the top-level lifecycle state of a paired position.
type PositionState string

const (
	PositionOpening PositionState = "OPENING"
	PositionActive  PositionState = "ACTIVE"
	PositionClosing PositionState = "CLOSING"
	PositionClosed  PositionState = "CLOSED"
)

// HealthState is the substate tracked only while PositionState == ACTIVE.
type HealthState string

const (
	HealthHealthy  HealthState = "HEALTHY"
	HealthDegraded HealthState = "DEGRADED"
	HealthCritical HealthState = "CRITICAL"
)

// SpreadTrend summarizes the short-term direction of the rolling spread
// history.
type SpreadTrend string

const (
	TrendRising  SpreadTrend = "rising"
	TrendFalling SpreadTrend = "falling"
	TrendStable  SpreadTrend = "stable"
)

// ExitReason is the specific rule that forced a CRITICAL transition and
// close-request. The zero value means no exit has been triggered.
type ExitReason string

const (
	ExitNone                  ExitReason = ""
	ExitSpreadFlipped         ExitReason = "spread-flipped"
	ExitStopLoss              ExitReason = "stop-loss"
	ExitMaxHoldTime           ExitReason = "max-hold-time"
	ExitSpreadBelowThreshold  ExitReason = "spread-below-threshold"
	ExitDeltaCritical         ExitReason = "delta-critical"
	ExitLiquidationImminent   ExitReason = "liquidation-imminent"
	ExitSpreadDeterioration   ExitReason = "spread-deterioration"
	ExitDegradedTimeout       ExitReason = "degraded-timeout"
)

// SpreadSample is one point in a position's rolling spread history, also
// the row shape persisted to positions.spread_snapshots.
type SpreadSample struct {
	PositionID string
	Spread     Money
	LongRate   Money
	ShortRate  Money
	Price      Money
	Timestamp  time.Time
}

const SpreadHistoryMaxSamples = 60

// Leg is one side of the paired position. Mark/liquidation prices are
// pointers: per spec §9 open question, a missing value must never be
// treated as safe, only as "rule not evaluated".
type Leg struct {
	Venue            string
	Side             string // "long" or "short"
	Quantity         float64
	EntryPrice       Money
	CurrentPrice     Money
	MarkPrice        *Money
	LiquidationPrice *Money
	NotionalUSD      Money
	UnrealizedPnL    Money
}

// Position is the joint lifetime record of a paired cross-venue trade.
type Position struct {
	ID         string
	Symbol     string
	LongVenue  string
	ShortVenue string
	SizeUSD    Money

	Long  Leg
	Short Leg

	EntryPrice   Money // average of both legs at OPENING->ACTIVE
	CurrentPrice Money
	EntrySpread  Money
	CurrentSpread Money

	LongFundingRate  Money
	ShortFundingRate Money
	FundingReceived  Money
	FundingPaid      Money
	FundingPeriods   int64

	UnrealizedPnL Money
	DeltaExposurePct float64
	LegDriftPct      float64
	PriceCorrelation float64 // [-1,1], binary float per spec §9

	SpreadHistory    []SpreadSample // last N=60
	SpreadDrawdownPct float64
	SpreadTrend       SpreadTrend
	TimeToNextFundingSeconds int64

	State         PositionState
	Health        HealthState
	DegradedSince *time.Time

	RebalanceCount int
	LastRebalance  *time.Time

	ExitReason ExitReason

	OpenedAt time.Time
	ClosedAt *time.Time
}

// AppendSpreadSample records a new sample, dropping the oldest once the
// rolling window of SpreadHistoryMaxSamples is exceeded.
func (p *Position) AppendSpreadSample(s SpreadSample) {
	p.SpreadHistory = append(p.SpreadHistory, s)
	if len(p.SpreadHistory) > SpreadHistoryMaxSamples {
		p.SpreadHistory = p.SpreadHistory[len(p.SpreadHistory)-SpreadHistoryMaxSamples:]
	}
}

// LiquidationDistancePct returns the fractional distance between current
// mark and liquidation price for a leg, and whether the rule is
// evaluable at all (both prices present).
func (l Leg) LiquidationDistancePct() (dist float64, evaluable bool) {
	if l.MarkPrice == nil || l.LiquidationPrice == nil {
		return 0, false
	}
	mark, _ := l.MarkPrice.Float64()
	liq, _ := l.LiquidationPrice.Float64()
	if mark == 0 {
		return 0, false
	}
	d := (mark - liq) / mark
	if d < 0 {
		d = -d
	}
	return d, true
}
