package capital

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeaknessScore_NegativeFundingAndUnrealizedIsWeakest(t *testing.T) {
	weak := WeaknessScore(WeaknessInput{FundingPnL: -10, UnrealizedPnL: -20, TotalPnL: -30, HeldFor: time.Hour})
	strong := WeaknessScore(WeaknessInput{FundingPnL: 10, UnrealizedPnL: 10, TotalPnL: 20, HeldFor: time.Hour})
	assert.Greater(t, weak, strong)
}

func TestWeaknessScore_LongHeldLoserAddsHoldComponent(t *testing.T) {
	short := WeaknessScore(WeaknessInput{FundingPnL: -5, UnrealizedPnL: -5, TotalPnL: -10, HeldFor: time.Hour})
	long := WeaknessScore(WeaknessInput{FundingPnL: -5, UnrealizedPnL: -5, TotalPnL: -10, HeldFor: 6 * time.Hour})
	assert.Greater(t, long, short)
}

func TestRankWeakest_ReturnsTopNByDescendingWeakness(t *testing.T) {
	inputs := []WeaknessInput{
		{AllocationID: "a", FundingPnL: 10, UnrealizedPnL: 10, TotalPnL: 20},
		{AllocationID: "b", FundingPnL: -50, UnrealizedPnL: -50, TotalPnL: -100},
		{AllocationID: "c", FundingPnL: -5, UnrealizedPnL: 5, TotalPnL: 0},
	}
	top := RankWeakest(inputs, 2)
	assert.Equal(t, []string{"b", "c"}, top)
}

func TestRankWeakest_ClampsNBounds(t *testing.T) {
	inputs := []WeaknessInput{{AllocationID: "a"}}
	assert.Len(t, RankWeakest(inputs, 5), 1)
	assert.Len(t, RankWeakest(inputs, -1), 0)
}
