package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// historicalVaRCVaR implements spec §4.6's VaR/CVaR recipe: sort the
// return series, VaR is the absolute return at index (1-c)*N, CVaR is
// the absolute mean of returns below that index, both then scaled by
// the caller's current exposure. Grounded on the teacher pack's
// aristath-sentinel/trader pkg/formulas.CalculateCVaR (same sorted-tail
// approach), using gonum/stat for the supporting standard deviation
// rather than hand-rolling it.
func historicalVaRCVaR(returns []float64, confidence float64) (varAbs, cvarAbs float64) {
	n := len(returns)
	if n == 0 {
		return 0, 0
	}
	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}

	varAbs = math.Abs(sorted[idx])

	tail := sorted[:idx+1]
	sum := 0.0
	for _, r := range tail {
		sum += r
	}
	cvarAbs = math.Abs(sum / float64(len(tail)))
	return varAbs, cvarAbs
}

// sampleVolatility is the sample standard deviation of recent returns,
// spec §4.6's volatility-regime input.
func sampleVolatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil)
}
