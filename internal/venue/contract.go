// Package venue defines the minimal capability contract every venue
// adapter (a REST/WS client, deliberately out of this core's scope per
// spec §1) must satisfy, plus the priority/fallback ranking helper used
// by any component that needs to pick a source among several venues.
//
// Grounded on the teacher's internal/data/venue/types.OrderBook shape for
// the liquidity snapshot, and internal/net/circuit for the retry-budget
// idiom applied here to the adapter's "at most twice" retry contract.
package venue

import (
	"context"
	"sort"
	"time"

	"github.com/fundingarb/core/internal/types"
)

// LiquiditySnapshot is a normalized view of a venue's order book depth for
// a symbol, independent of the venue's native book format.
type LiquiditySnapshot struct {
	Venue         string
	Symbol        string
	BidDepthUSD   types.Money
	AskDepthUSD   types.Money
	OpenInterestUSD types.Money
	Volume24hUSD  types.Money
	Timestamp     time.Time
}

// VenuePosition is the venue's own view of an open position, used during
// Capital Allocator reconciliation (spec §4.3) and Execution Coordinator's
// close protocol (spec §4.4).
type VenuePosition struct {
	Venue       string
	Symbol      string
	Side        types.OrderSide
	Quantity    float64
	EntryPrice  types.Money
	MarkPrice   *types.Money
	LiquidationPrice *types.Money
}

// PlaceOrderRequest is the normalized order placement payload.
type PlaceOrderRequest struct {
	Symbol     string
	Side       types.OrderSide
	Size       float64
	Price      *types.Money // nil for market orders
	Type       types.OrderType
	ReduceOnly bool
}

// PlaceOrderResult is the normalized response from a venue adapter.
type PlaceOrderResult struct {
	Success      bool
	OrderID      string
	Fee          *types.Money
	AverageFill  *types.Money
	Status       types.OrderState
	Error        string
}

// Adapter is the minimal capability set every venue adapter must offer.
// Per spec §6, each operation is retried at most twice with exponential
// backoff by the adapter itself; the core issues a single logical call.
type Adapter interface {
	Venue() string

	GetFundingRates(ctx context.Context) ([]types.FundingRate, error)
	GetPrices(ctx context.Context) ([]types.Quote, error)
	GetLiquidity(ctx context.Context) ([]LiquiditySnapshot, error)
	GetPositions(ctx context.Context) ([]VenuePosition, error)
	GetOrders(ctx context.Context, symbol string) ([]types.Order, error)
	GetTicker(ctx context.Context, symbol string) (last types.Money, err error)
	GetMinOrderSize(ctx context.Context, symbol string) (types.Money, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error)
}

// Ranked is a venue candidate ordered by selection priority.
type Ranked struct {
	Venue        string
	PriorityTier types.PriorityTier
	Reliability  float64
	Healthy      bool
}

// Rank orders candidates by (priority tier ascending, reliability
// descending), per spec §4.1's venue priority selection rule.
func Rank(candidates []Ranked) []Ranked {
	out := make([]Ranked, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PriorityTier != out[j].PriorityTier {
			return out[i].PriorityTier < out[j].PriorityTier
		}
		return out[i].Reliability > out[j].Reliability
	})
	return out
}

// MinFallbackReliability is the floor a secondary venue must clear to be
// used as a fallback after the primary fails.
const MinFallbackReliability = 0.5

// Fallback returns the first healthy candidate, after the primary
// (ranked[0]), whose reliability is at least MinFallbackReliability. It
// returns ("", false) when no such candidate exists. Per spec §4.1, only
// a single fallback attempt is made.
func Fallback(ranked []Ranked) (string, bool) {
	if len(ranked) < 2 {
		return "", false
	}
	for _, c := range ranked[1:] {
		if c.Healthy && c.Reliability >= MinFallbackReliability {
			return c.Venue, true
		}
	}
	return "", false
}
