package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fundingarb/core/internal/config"
)

func TestShouldRebalance_BelowDriftThresholdNeverTriggers(t *testing.T) {
	cfg := *config.DefaultPositionConfig()
	in := RebalanceInputs{
		LegDriftPct: cfg.MaxLegDriftThreshold - 1, SizeUSD: 100_000,
		TimeSinceLastRebalance: time.Hour, TimeToNextFundingSec: 3600,
	}
	assert.False(t, ShouldRebalance(cfg, in))
}

func TestShouldRebalance_CooldownNotElapsedBlocks(t *testing.T) {
	cfg := *config.DefaultPositionConfig()
	in := RebalanceInputs{
		LegDriftPct: cfg.MaxLegDriftThreshold + 5, SizeUSD: 100_000,
		TimeSinceLastRebalance: time.Second, TimeToNextFundingSec: 3600,
	}
	assert.False(t, ShouldRebalance(cfg, in))
}

func TestShouldRebalance_NearFundingWindowBlocks(t *testing.T) {
	cfg := *config.DefaultPositionConfig()
	in := RebalanceInputs{
		LegDriftPct: cfg.MaxLegDriftThreshold + 5, SizeUSD: 100_000,
		TimeSinceLastRebalance: time.Hour, TimeToNextFundingSec: rebalanceMinTimeToFundingSec - 1,
	}
	assert.False(t, ShouldRebalance(cfg, in))
}

func TestShouldRebalance_DriftRiskMustExceedTwiceRebalanceCost(t *testing.T) {
	cfg := *config.DefaultPositionConfig()
	// drift=6%, size=100: driftRiskCost = 100*6*0.1=60, rebalanceCost=100*0.001=0.1, 2x=0.2 -> 60>0.2 triggers
	in := RebalanceInputs{
		LegDriftPct: cfg.MaxLegDriftThreshold + 1, SizeUSD: 100,
		TimeSinceLastRebalance: time.Hour, TimeToNextFundingSec: 3600,
	}
	assert.True(t, ShouldRebalance(cfg, in))
}
