package capital

import (
	"sort"
	"time"
)

// WeaknessInput bundles one active allocation's PnL/hold-time facts for
// the concurrent-coin cap's weakness ranking (spec §4.3).
type WeaknessInput struct {
	AllocationID  string
	Symbol        string
	FundingPnL    float64
	UnrealizedPnL float64
	TotalPnL      float64
	HeldFor       time.Duration
}

// WeaknessScore implements spec §4.3's exact formula. Higher is weaker
// (a better candidate for forced closure under the coin cap).
func WeaknessScore(in WeaknessInput) float64 {
	var fundingComponent float64
	if in.FundingPnL < 0 {
		fundingComponent = 50 + (-in.FundingPnL)
	} else {
		capped := in.FundingPnL
		if capped > 20 {
			capped = 20
		}
		fundingComponent = -capped
	}

	var unrealizedComponent float64
	if in.UnrealizedPnL < 0 {
		unrealizedComponent = 30 + (-in.UnrealizedPnL)
	} else {
		capped := in.UnrealizedPnL
		if capped > 15 {
			capped = 15
		}
		unrealizedComponent = -capped
	}

	var holdComponent float64
	hours := in.HeldFor.Hours()
	if hours > 4 && in.TotalPnL < 0 {
		holdComponent = 2 * hours
	}

	return fundingComponent + unrealizedComponent + holdComponent
}

// RankWeakest sorts allocations by descending weakness score (weakest,
// i.e. best closure candidate, first) and returns the IDs of the top n.
func RankWeakest(inputs []WeaknessInput, n int) []string {
	scored := make([]WeaknessInput, len(inputs))
	copy(scored, inputs)

	scores := make(map[string]float64, len(scored))
	for _, in := range scored {
		scores[in.AllocationID] = WeaknessScore(in)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scores[scored[i].AllocationID] > scores[scored[j].AllocationID]
	})

	if n > len(scored) {
		n = len(scored)
	}
	if n < 0 {
		n = 0
	}
	out := make([]string, 0, n)
	for _, in := range scored[:n] {
		out = append(out, in.AllocationID)
	}
	return out
}
