// Package capital implements the Capital Allocator (spec §4.3): the
// sizing pipeline, concurrent-coin cap enforcement with weakness-scored
// auto-unwind, startup reconciliation and manual-approval queueing.
//
// Grounded on the teacher's repository-per-relation reconciliation idiom
// (internal/persistence/postgres/premove_repo.go's upsert-on-conflict
// pattern, generalized here to allocation/position reconciliation) and
// the general "rank the weakest, act on the excess" shape the teacher's
// scoring pipeline already uses for candidate ranking.
package capital

import (
	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/types"
)

// EdgeStats is the historical win/loss sample a symbol's Kelly fraction
// is computed from; AvgWin/AvgLoss are absolute per-trade PnL magnitudes.
type EdgeStats struct {
	WinRate float64
	AvgWin  float64
	AvgLoss float64
	Samples int
}

// halfKellyFraction implements spec §4.3 step 1's Kelly branch:
// f = 0.5*(b*p - q)/b, b = avg_win/avg_loss, p = win rate, q = 1-p.
// Returns ok=false when avg_loss is zero (no informative edge) or the
// computed fraction is not positive.
func halfKellyFraction(edge EdgeStats) (f float64, ok bool) {
	if edge.AvgLoss <= 0 || edge.Samples == 0 {
		return 0, false
	}
	b := edge.AvgWin / edge.AvgLoss
	if b <= 0 {
		return 0, false
	}
	p := edge.WinRate
	q := 1 - p
	raw := 0.5 * (b*p - q) / b
	if raw <= 0 {
		return 0, false
	}
	return raw, true
}

// baseAmount implements spec §4.3 step 1: Kelly-derived when enabled and
// an edge exists, otherwise score-weighted 10% of available capital.
func baseAmount(cfg SizingConfig, edge EdgeStats, hasEdge bool, uos float64, availableCapital types.Money) (types.Money, error) {
	if cfg.UseKellyCriterion && hasEdge {
		f, ok := halfKellyFraction(edge)
		if !ok || f < cfg.MinKellyEdge {
			return types.Zero, ErrBelowMinKellyEdge
		}
		capped := decimal.NewFromFloat(f)
		quarter := decimal.NewFromFloat(0.25)
		if capped.GreaterThan(quarter) {
			capped = quarter
		}
		return availableCapital.Mul(capped), nil
	}

	scoreWeight := 0.5 + 0.5*(uos/100.0)*cfg.ScoreWeightFactor
	pct := decimal.NewFromFloat(cfg.BaseAllocationPct * scoreWeight)
	return availableCapital.Mul(pct), nil
}

// SizingConfig is the subset of config.AllocationConfig the sizing
// pipeline needs, kept narrow so sizing.go has no import-time dependency
// on the config package's YAML tags.
type SizingConfig struct {
	UseKellyCriterion       bool
	KellyFraction           float64
	MinKellyEdge            float64
	ScoreWeightFactor       float64
	BaseAllocationPct       float64
	MaxPortfolioCorrelation float64
	CorrelationSizePenalty  float64
	MinAllocationUSD        types.Money
	MaxAllocationUSD        types.Money
}

// CorrelationInput names the exposures the correlation-penalty estimate
// (spec §4.3 step 2) compares the candidate symbol against.
type CorrelationInput struct {
	SameBaseAssetActive bool // another active position shares the candidate's base asset
	BothBTCLinked       bool // candidate and an active position are both BTC-denominated/correlated majors
	SameSymbolActive    bool // the candidate symbol itself already has a non-terminal allocation
}

// estimateCorrelation implements spec §4.3 step 2's fixed correlation
// table: same-symbol dominates (already maximally correlated with
// itself), then same-base-asset, then the BTC-linked baseline, else the
// generic crypto-beta floor.
func estimateCorrelation(in CorrelationInput) float64 {
	switch {
	case in.SameSymbolActive:
		return 1.0
	case in.SameBaseAssetActive:
		return 0.8
	case in.BothBTCLinked:
		return 0.3
	default:
		return 0.3
	}
}

// applyCorrelationPenalty implements spec §4.3 step 2's amount
// adjustment: multiply by max(0.25, 1 - (rho - threshold) * penalty) when
// rho exceeds the configured ceiling.
func applyCorrelationPenalty(amount types.Money, rho float64, cfg SizingConfig) types.Money {
	if rho <= cfg.MaxPortfolioCorrelation {
		return amount
	}
	factor := 1 - (rho-cfg.MaxPortfolioCorrelation)*cfg.CorrelationSizePenalty
	if factor < 0.25 {
		factor = 0.25
	}
	return amount.Mul(decimal.NewFromFloat(factor))
}

// SizeOpportunity runs the full spec §4.3 sizing pipeline: base amount,
// correlation penalty, then clamp to [min-allocation, min(max-allocation,
// available-capital)]. Risk Controller's own cap (step 4) is applied by
// the caller against the returned amount via risk.Controller.ValidateTrade.
func SizeOpportunity(cfg SizingConfig, edge EdgeStats, hasEdge bool, uos float64, availableCapital types.Money, corr CorrelationInput) (types.Money, error) {
	amount, err := baseAmount(cfg, edge, hasEdge, uos, availableCapital)
	if err != nil {
		return types.Zero, err
	}

	rho := estimateCorrelation(corr)
	amount = applyCorrelationPenalty(amount, rho, cfg)

	ceiling := cfg.MaxAllocationUSD
	if availableCapital.LessThan(ceiling) {
		ceiling = availableCapital
	}
	return types.Clamp(amount, cfg.MinAllocationUSD, ceiling), nil
}
