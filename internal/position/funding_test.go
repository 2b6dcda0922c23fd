package position

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fundingarb/core/internal/types"
)

func moneyf(v float64) types.Money { return decimal.NewFromFloat(v) }

func TestAccrueFunding_ZeroOrNegativePeriodsIsNoop(t *testing.T) {
	received, paid := AccrueFunding(moneyf(0.001), moneyf(0.002), moneyf(100_000), 0)
	assert.True(t, received.IsZero())
	assert.True(t, paid.IsZero())
}

func TestAccrueFunding_PositiveNetOnlyIncrementsReceived(t *testing.T) {
	// short receives more than long pays: net positive, goes to FundingReceived.
	received, paid := AccrueFunding(moneyf(0.0001), moneyf(0.0005), moneyf(100_000), 1)
	assert.True(t, received.IsPositive())
	assert.True(t, paid.IsZero())
}

func TestAccrueFunding_NegativeNetOnlyIncrementsPaid(t *testing.T) {
	// long pays more than short receives: net negative, goes to FundingPaid.
	received, paid := AccrueFunding(moneyf(0.0005), moneyf(0.0001), moneyf(100_000), 1)
	assert.True(t, received.IsZero())
	assert.True(t, paid.IsPositive())
}

func TestAccrueFunding_MultiTickAccumulatorsNeverDecrease(t *testing.T) {
	var totalReceived, totalPaid types.Money
	rates := [][2]float64{{0.0001, 0.0005}, {0.0005, 0.0001}, {0.0002, 0.0002}}
	for _, r := range rates {
		received, paid := AccrueFunding(moneyf(r[0]), moneyf(r[1]), moneyf(100_000), 1)
		prevReceived, prevPaid := totalReceived, totalPaid
		totalReceived = totalReceived.Add(received)
		totalPaid = totalPaid.Add(paid)
		assert.True(t, totalReceived.GreaterThanOrEqual(prevReceived))
		assert.True(t, totalPaid.GreaterThanOrEqual(prevPaid))
	}
	assert.True(t, totalReceived.IsPositive())
	assert.True(t, totalPaid.IsPositive())
}

func TestAccrueFunding_ScalesWithElapsedPeriods(t *testing.T) {
	oneReceived, _ := AccrueFunding(moneyf(0.0001), moneyf(0.0005), moneyf(100_000), 1)
	threeReceived, _ := AccrueFunding(moneyf(0.0001), moneyf(0.0005), moneyf(100_000), 3)
	assert.True(t, threeReceived.Equal(oneReceived.Mul(decimal.NewFromInt(3))))
}
