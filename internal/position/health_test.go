package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/types"
)

func testPositionConfig() config.PositionConfig {
	return *config.DefaultPositionConfig()
}

func TestClassify_HealthyWhenNothingTriggers(t *testing.T) {
	in := HealthInputs{CurrentSpread: 0.002, EntrySpread: 0.002, UnrealizedPnLPct: 0.01, DeltaExposurePct: 0.02, SpreadDrawdownPct: 0}
	health, reason := classify(testPositionConfig(), in)
	assert.Equal(t, types.HealthHealthy, health)
	assert.Equal(t, types.ExitNone, reason)
}

func TestClassify_CriticalSpreadFlipped(t *testing.T) {
	in := HealthInputs{CurrentSpread: -0.001, EntrySpread: 0.002}
	health, reason := classify(testPositionConfig(), in)
	assert.Equal(t, types.HealthCritical, health)
	assert.Equal(t, types.ExitSpreadFlipped, reason)
}

func TestClassify_CriticalStopLoss(t *testing.T) {
	cfg := testPositionConfig()
	in := HealthInputs{CurrentSpread: 0.002, EntrySpread: 0.002, UnrealizedPnLPct: -cfg.StopLossPct - 0.01}
	health, reason := classify(cfg, in)
	assert.Equal(t, types.HealthCritical, health)
	assert.Equal(t, types.ExitStopLoss, reason)
}

func TestClassify_CriticalDeltaBeatsLiquidation(t *testing.T) {
	// Both the delta and liquidation critical conditions fire; delta wins
	// because it is evaluated first in spec §4.5's rule order.
	in := HealthInputs{
		CurrentSpread: 0.002, EntrySpread: 0.002, DeltaExposurePct: 0.30,
		LongLiqDist: 0.01, LongLiqEvaluable: true,
	}
	health, reason := classify(testPositionConfig(), in)
	assert.Equal(t, types.HealthCritical, health)
	assert.Equal(t, types.ExitDeltaCritical, reason)
}

func TestClassify_CriticalLiquidationImminent(t *testing.T) {
	in := HealthInputs{CurrentSpread: 0.002, EntrySpread: 0.002, ShortLiqDist: 0.03, ShortLiqEvaluable: true}
	health, reason := classify(testPositionConfig(), in)
	assert.Equal(t, types.HealthCritical, health)
	assert.Equal(t, types.ExitLiquidationImminent, reason)
}

func TestClassify_CriticalSpreadDeterioration_RequiresBothConditions(t *testing.T) {
	cfg := testPositionConfig()
	in := HealthInputs{
		CurrentSpread: 0.002, EntrySpread: 0.002,
		SpreadDrawdownPct: cfg.SpreadDrawdownExitPct, TimeToNextFundingSec: cfg.MinTimeToFundingExitSec,
	}
	health, reason := classify(cfg, in)
	assert.Equal(t, types.HealthCritical, health)
	assert.Equal(t, types.ExitSpreadDeterioration, reason)

	// Drawdown alone, with an imminent funding window, does not trigger.
	in.TimeToNextFundingSec = cfg.MinTimeToFundingExitSec - 1
	health, _ = classify(cfg, in)
	assert.NotEqual(t, types.HealthCritical, health)
}

func TestClassify_DegradedSpreadBelowThreshold(t *testing.T) {
	cfg := testPositionConfig()
	in := HealthInputs{CurrentSpread: cfg.MinSpreadThreshold / 2, EntrySpread: cfg.MinSpreadThreshold * 10}
	health, reason := classify(cfg, in)
	assert.Equal(t, types.HealthDegraded, health)
	assert.Equal(t, types.ExitSpreadBelowThreshold, reason)
}

func TestClassify_DegradedMaxHold(t *testing.T) {
	cfg := testPositionConfig()
	in := HealthInputs{CurrentSpread: 0.01, EntrySpread: 0.01, FundingPeriods: cfg.MaxHoldPeriods}
	health, reason := classify(cfg, in)
	assert.Equal(t, types.HealthDegraded, health)
	assert.Equal(t, types.ExitMaxHoldTime, reason)
}

func TestAdvanceHealth_DegradedTimeoutEscalatesToCritical(t *testing.T) {
	cfg := testPositionConfig()
	cfg.DegradedTimeoutSeconds = 60
	in := HealthInputs{CurrentSpread: 0.01, EntrySpread: 0.01, FundingPeriods: cfg.MaxHoldPeriods}

	start := time.Now()
	health, reason, shouldClose, since := AdvanceHealth(cfg, in, types.HealthHealthy, nil, start)
	assert.Equal(t, types.HealthDegraded, health)
	assert.False(t, shouldClose)
	assert.NotNil(t, since)

	later := start.Add(90 * time.Second)
	health, reason, shouldClose, since = AdvanceHealth(cfg, in, types.HealthDegraded, since, later)
	assert.Equal(t, types.HealthCritical, health)
	assert.True(t, shouldClose)
	assert.Equal(t, types.ExitMaxHoldTime, reason, "escalation carries the underlying degraded condition's reason")
	assert.Nil(t, since)
}

func TestAdvanceHealth_CriticalShortCircuitsDegradedClock(t *testing.T) {
	cfg := testPositionConfig()
	in := HealthInputs{CurrentSpread: -1}
	health, reason, shouldClose, since := AdvanceHealth(cfg, in, types.HealthHealthy, nil, time.Now())
	assert.Equal(t, types.HealthCritical, health)
	assert.Equal(t, types.ExitSpreadFlipped, reason)
	assert.True(t, shouldClose)
	assert.Nil(t, since)
}

func TestAdvanceHealth_RecoveringToHealthyResetsDegradedClock(t *testing.T) {
	cfg := testPositionConfig()
	degradedIn := HealthInputs{CurrentSpread: cfg.MinSpreadThreshold / 2, EntrySpread: cfg.MinSpreadThreshold * 10}
	start := time.Now()
	_, _, _, since := AdvanceHealth(cfg, degradedIn, types.HealthHealthy, nil, start)
	assert.NotNil(t, since)

	healthyIn := HealthInputs{CurrentSpread: 0.01, EntrySpread: 0.01}
	health, _, _, since := AdvanceHealth(cfg, healthyIn, types.HealthDegraded, since, start.Add(time.Second))
	assert.Equal(t, types.HealthHealthy, health)
	assert.Nil(t, since)
}
