package position

import "github.com/fundingarb/core/internal/types"

// spreadTrendStabilityBand is spec §4.5's "±5·10⁻⁴" dead zone: a mean
// delta inside this band is reported as stable rather than a direction.
const spreadTrendStabilityBand = 5e-4

// ComputeTrend implements spec §4.5's "Trend = sign of (mean of last 2 −
// mean of previous 2)". Fewer than 4 samples can't form both windows, so
// it reports stable until the history fills in.
func ComputeTrend(history []types.SpreadSample) types.SpreadTrend {
	n := len(history)
	if n < 4 {
		return types.TrendStable
	}
	recent := meanSpread(history[n-2:])
	prior := meanSpread(history[n-4 : n-2])
	delta := recent - prior

	switch {
	case delta > spreadTrendStabilityBand:
		return types.TrendRising
	case delta < -spreadTrendStabilityBand:
		return types.TrendFalling
	default:
		return types.TrendStable
	}
}

func meanSpread(samples []types.SpreadSample) float64 {
	var sum float64
	for _, s := range samples {
		f, _ := s.Spread.Float64()
		sum += f
	}
	return sum / float64(len(samples))
}

// SpreadDrawdownPct is the percentage contraction of the current spread
// relative to the entry spread, floored at zero (a spread that has
// widened since entry has no drawdown, not a negative one).
func SpreadDrawdownPct(entrySpread, currentSpread float64) float64 {
	if entrySpread <= 0 {
		return 0
	}
	dd := (entrySpread - currentSpread) / entrySpread * 100
	if dd < 0 {
		return 0
	}
	return dd
}
