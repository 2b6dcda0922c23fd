// Package opportunity implements the Opportunity Engine (spec §4.2):
// spread/APR recomputation on every venue/symbol update, the four-part
// UOS score, and the priority-ordered Bot-Action verdict.
//
// Grounded on the teacher's internal/score/composite package: unified.go's
// weighted-sub-score composition pattern generalizes to ScoreInputs/Score
// below, and gates.go's HardEntryGates (ordered gate evaluation recording
// a per-gate pass/fail and reason map) generalizes to the Bot-Action
// verdict evaluator in gates.go of this package — adapted from "AND every
// gate" to spec §4.2's "first matching rule wins".
package opportunity

import (
	"github.com/fundingarb/core/internal/types"
)

// Tuning ceilings for the Execution and Risk sub-scores. Spec §4.2 names
// the point allocations and the proportionality direction but not these
// ceilings; they are internal scoring calibration, not part of the
// runtime-adjustable surface in spec §6.
const (
	slippageCeilingPct   = 0.002 // slippage at or above this floors the 12-pt sub-score to 0
	feeCeilingPct        = 0.002 // total fees at or above this floors the 8-pt sub-score to 0
	spreadStabilityScale = 0.001 // rolling stddev at this level halves the 8-pt stability score
)

// ScoreInputs bundles every raw input the four UOS sub-scores need.
type ScoreInputs struct {
	AnnualizedAPRPct float64 // e.g. 24.0 for 24% APR
	Spread           float64 // per funding interval, signed fraction
	OptimalSpread    float64

	LongTierPrimary  bool
	ShortTierPrimary bool
	Volume24hUSD     float64 // min(long, short) 24h volume
	MinVolume24hUSD  float64
	MaxVolume24hUSD  float64
	SpreadStdDev     float64 // rolling stddev of historical spread

	EstimatedSlippagePct float64
	TotalFeesPct         float64
	VenueReliability     float64 // combined [0,1] reliability of both venues

	InFundingWindow bool // within 37.5%-75% of the min funding interval
	Trend           types.SpreadTrend
	TrendAdverse    bool // trend direction works against holding the position
}

// Score computes the four bounded sub-scores and their sum per spec
// §4.2's exact point breakdown.
func Score(in ScoreInputs) types.UOSScores {
	return types.UOSScores{
		Return:    returnScore(in),
		Risk:      riskScore(in),
		Execution: executionScore(in),
		Timing:    timingScore(in),
	}
}

func returnScore(in ScoreInputs) float64 {
	aprComponent := clamp01(in.AnnualizedAPRPct/100.0) * 20
	var spreadComponent float64
	if in.OptimalSpread > 0 {
		spreadComponent = clamp01(in.Spread/in.OptimalSpread) * 10
	}
	return aprComponent + spreadComponent
}

func riskScore(in ScoreInputs) float64 {
	var tierPts float64
	switch {
	case in.LongTierPrimary && in.ShortTierPrimary:
		tierPts = 12
	case in.LongTierPrimary || in.ShortTierPrimary:
		tierPts = 6
	}

	var volumePts float64
	if in.MaxVolume24hUSD > in.MinVolume24hUSD {
		frac := (in.Volume24hUSD - in.MinVolume24hUSD) / (in.MaxVolume24hUSD - in.MinVolume24hUSD)
		volumePts = clamp01(frac) * 10
	}

	stabilityPts := 8 * spreadStabilityScale / (spreadStabilityScale + in.SpreadStdDev)
	if in.SpreadStdDev <= 0 {
		stabilityPts = 8
	}

	return tierPts + volumePts + stabilityPts
}

func executionScore(in ScoreInputs) float64 {
	slippagePts := (1 - clamp01(in.EstimatedSlippagePct/slippageCeilingPct)) * 12
	feePts := (1 - clamp01(in.TotalFeesPct/feeCeilingPct)) * 8
	reliabilityPts := clamp01(in.VenueReliability) * 5
	return slippagePts + feePts + reliabilityPts
}

func timingScore(in ScoreInputs) float64 {
	var windowPts float64
	if in.InFundingWindow {
		windowPts = 10
	}

	var trendPts float64
	switch {
	case in.Trend == types.TrendStable:
		trendPts = 5
	case in.TrendAdverse:
		trendPts = 1
	default:
		trendPts = 4
	}

	return windowPts + trendPts
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
