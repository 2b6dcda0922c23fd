package position

import (
	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/types"
)

// AccrueFunding computes one funding-tracker tick's settlement for a
// paired position: the long leg pays longRate × size when the rate is
// positive (perpetual convention: longs pay shorts), the short leg
// receives shortRate × size under the same convention. Both legs are
// netted into a single per-tick amount and split into a FundingReceived
// delta and a FundingPaid delta so both of Position's accumulators stay
// monotonically non-decreasing regardless of which side of the net the
// tick landed on — spec §8 requires funding accounting to never go
// backwards even when the net result flips sign tick to tick.
func AccrueFunding(longRate, shortRate, sizeUSD types.Money, elapsedPeriods int64) (receivedDelta, paidDelta types.Money) {
	if elapsedPeriods <= 0 {
		return types.Zero, types.Zero
	}
	periods := decimal.NewFromInt(elapsedPeriods)

	longFlow := sizeUSD.Mul(longRate).Mul(periods)
	shortFlow := sizeUSD.Mul(shortRate).Mul(periods)
	net := shortFlow.Sub(longFlow)

	if net.IsPositive() {
		return net, types.Zero
	}
	return types.Zero, net.Neg()
}
