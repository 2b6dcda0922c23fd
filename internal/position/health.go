// Package position implements the Position Manager (spec §4.5): the
// health state machine, spread history/trend, advisory forecaster,
// rebalance decision and funding/price tracking for every open paired
// position, plus the five periodic loops that drive them.
//
// Grounded on the teacher's internal/exits/logic.go ExitEvaluator:
// first-matching-rule-wins precedence over a flat rule list, kept here
// but re-targeted from momentum/ATR exits to spec §4.5's spread/delta/
// liquidation triggers, plus a DEGRADED substate the teacher's exit
// logic has no equivalent of.
package position

import (
	"time"

	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/types"
)

// Fixed thresholds named directly in spec §4.5's CRITICAL/DEGRADED rules
// that are not part of the runtime-configurable §6 Position surface.
const (
	criticalDeltaExposurePct  = 0.25
	criticalLiquidationDistPct = 0.05
	degradedLiquidationDistPct = 0.10
	degradedSpreadEntryRatio   = 0.5
)

// HealthInputs is the flattened snapshot EvaluateHealth needs, built by
// the caller from a types.Position plus the latest marketstate read.
type HealthInputs struct {
	CurrentSpread        float64
	EntrySpread           float64
	UnrealizedPnLPct      float64 // unrealized P&L as a signed fraction of size; negative is a loss
	DeltaExposurePct      float64
	LongLiqDist           float64
	LongLiqEvaluable      bool
	ShortLiqDist          float64
	ShortLiqEvaluable     bool
	SpreadDrawdownPct     float64
	TimeToNextFundingSec  int64
	FundingPeriods        int64
}

func liquidationImminent(in HealthInputs, ceiling float64) bool {
	if in.LongLiqEvaluable && in.LongLiqDist < ceiling {
		return true
	}
	if in.ShortLiqEvaluable && in.ShortLiqDist < ceiling {
		return true
	}
	return false
}

// classify applies spec §4.5's CRITICAL rules first (first match wins),
// then the DEGRADED rules, returning HEALTHY when none apply. The
// returned reason is always set for a non-HEALTHY result: for CRITICAL
// it is the literal close reason; for DEGRADED it names which condition
// is the active one, so a later degraded-timeout escalation can carry
// a more specific reason than the bare "degraded-timeout" label (see
// DESIGN.md's Open Question decision on this).
func classify(cfg config.PositionConfig, in HealthInputs) (types.HealthState, types.ExitReason) {
	switch {
	case in.CurrentSpread <= 0:
		return types.HealthCritical, types.ExitSpreadFlipped
	case in.UnrealizedPnLPct <= -cfg.StopLossPct:
		return types.HealthCritical, types.ExitStopLoss
	case in.DeltaExposurePct > criticalDeltaExposurePct:
		return types.HealthCritical, types.ExitDeltaCritical
	case liquidationImminent(in, criticalLiquidationDistPct):
		return types.HealthCritical, types.ExitLiquidationImminent
	case in.SpreadDrawdownPct >= cfg.SpreadDrawdownExitPct && in.TimeToNextFundingSec >= cfg.MinTimeToFundingExitSec:
		return types.HealthCritical, types.ExitSpreadDeterioration
	}

	switch {
	case in.CurrentSpread > 0 && in.CurrentSpread < cfg.MinSpreadThreshold:
		return types.HealthDegraded, types.ExitSpreadBelowThreshold
	case in.EntrySpread > 0 && in.CurrentSpread < in.EntrySpread*degradedSpreadEntryRatio:
		return types.HealthDegraded, types.ExitSpreadBelowThreshold
	case in.FundingPeriods >= cfg.MaxHoldPeriods:
		return types.HealthDegraded, types.ExitMaxHoldTime
	case in.DeltaExposurePct > cfg.MaxDeltaThreshold:
		return types.HealthDegraded, types.ExitDeltaCritical
	case liquidationImminent(in, degradedLiquidationDistPct):
		return types.HealthDegraded, types.ExitLiquidationImminent
	}

	return types.HealthHealthy, types.ExitNone
}

// AdvanceHealth is classify plus the degraded-timeout escalation rule:
// a position stuck DEGRADED for cfg.DegradedTimeoutSeconds without
// reaching HEALTHY is forced CRITICAL. degradedSince is nil unless the
// position is currently DEGRADED; the caller persists the returned
// value and passes it back on the next tick.
func AdvanceHealth(cfg config.PositionConfig, in HealthInputs, prevHealth types.HealthState, degradedSince *time.Time, now time.Time) (health types.HealthState, reason types.ExitReason, shouldClose bool, nextDegradedSince *time.Time) {
	health, reason = classify(cfg, in)

	switch health {
	case types.HealthCritical:
		return types.HealthCritical, reason, true, nil
	case types.HealthDegraded:
		since := degradedSince
		if prevHealth != types.HealthDegraded || since == nil {
			started := now
			since = &started
		}
		timeout := time.Duration(cfg.DegradedTimeoutSeconds) * time.Second
		if now.Sub(*since) >= timeout {
			escalated := reason
			if escalated == types.ExitNone {
				escalated = types.ExitDegradedTimeout
			}
			return types.HealthCritical, escalated, true, nil
		}
		return types.HealthDegraded, reason, false, since
	default:
		return types.HealthHealthy, types.ExitNone, false, nil
	}
}
