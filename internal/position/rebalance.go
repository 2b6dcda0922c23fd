package position

import (
	"time"

	"github.com/fundingarb/core/internal/config"
)

// Fixed economics named directly in spec §4.5's rebalance rule, not part
// of the runtime-configurable §6 Position surface.
const (
	rebalanceMinTimeToFundingSec = int64(30 * 60)
	driftRiskCostFactor          = 0.1
	rebalanceCostFactor          = 0.001
)

// RebalanceInputs is the flattened snapshot ShouldRebalance needs.
type RebalanceInputs struct {
	LegDriftPct            float64
	SizeUSD                float64
	TimeSinceLastRebalance time.Duration
	TimeToNextFundingSec   int64
}

// ShouldRebalance implements spec §4.5's rebalance trigger: leg drift
// over threshold, cooldown elapsed, clear of the funding window, and the
// estimated drift-risk cost exceeds twice the estimated rebalance cost.
func ShouldRebalance(cfg config.PositionConfig, in RebalanceInputs) bool {
	if in.LegDriftPct <= cfg.MaxLegDriftThreshold {
		return false
	}
	if in.TimeSinceLastRebalance < time.Duration(cfg.RebalanceMinIntervalSec)*time.Second {
		return false
	}
	if in.TimeToNextFundingSec <= rebalanceMinTimeToFundingSec {
		return false
	}
	driftRiskCost := in.SizeUSD * in.LegDriftPct * driftRiskCostFactor
	rebalanceCost := in.SizeUSD * rebalanceCostFactor
	return driftRiskCost > 2*rebalanceCost
}
