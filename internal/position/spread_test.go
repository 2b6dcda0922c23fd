package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fundingarb/core/internal/types"
)

func sample(spread float64) types.SpreadSample {
	return types.SpreadSample{Spread: decimal.NewFromFloat(spread), Timestamp: time.Now()}
}

func TestComputeTrend_FewerThanFourSamplesIsStable(t *testing.T) {
	assert.Equal(t, types.TrendStable, ComputeTrend([]types.SpreadSample{sample(0.01), sample(0.02)}))
}

func TestComputeTrend_Rising(t *testing.T) {
	history := []types.SpreadSample{sample(0.001), sample(0.001), sample(0.01), sample(0.01)}
	assert.Equal(t, types.TrendRising, ComputeTrend(history))
}

func TestComputeTrend_Falling(t *testing.T) {
	history := []types.SpreadSample{sample(0.01), sample(0.01), sample(0.001), sample(0.001)}
	assert.Equal(t, types.TrendFalling, ComputeTrend(history))
}

func TestComputeTrend_WithinStabilityBandIsStable(t *testing.T) {
	history := []types.SpreadSample{sample(0.0100), sample(0.0100), sample(0.0101), sample(0.0101)}
	assert.Equal(t, types.TrendStable, ComputeTrend(history))
}

func TestSpreadDrawdownPct_WideningHasNoDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, SpreadDrawdownPct(0.01, 0.02))
}

func TestSpreadDrawdownPct_ContractionIsPositivePercent(t *testing.T) {
	assert.InDelta(t, 50.0, SpreadDrawdownPct(0.01, 0.005), 0.001)
}

func TestSpreadDrawdownPct_ZeroEntrySpreadIsZero(t *testing.T) {
	assert.Equal(t, 0.0, SpreadDrawdownPct(0, 0.01))
}
