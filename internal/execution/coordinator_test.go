package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/risk"
	"github.com/fundingarb/core/internal/types"
	"github.com/fundingarb/core/internal/venue"
)

func moneyf(v float64) types.Money { return decimal.NewFromFloat(v) }

// fakeAdapter is a scriptable venue.Adapter used to drive every branch of
// the Execution Coordinator's outcome matrix and partial-fill loop.
type fakeAdapter struct {
	name string

	ticker    types.Money
	tickerErr error

	minOrderSize types.Money
	minOrderErr  error

	placeResult func(req venue.PlaceOrderRequest) (venue.PlaceOrderResult, error)

	orders    []types.Order
	ordersErr error

	positions []venue.VenuePosition

	cancelled []string
}

func (f *fakeAdapter) Venue() string { return f.name }
func (f *fakeAdapter) GetFundingRates(ctx context.Context) ([]types.FundingRate, error) { return nil, nil }
func (f *fakeAdapter) GetPrices(ctx context.Context) ([]types.Quote, error)             { return nil, nil }
func (f *fakeAdapter) GetLiquidity(ctx context.Context) ([]venue.LiquiditySnapshot, error) {
	return nil, nil
}
func (f *fakeAdapter) GetPositions(ctx context.Context) ([]venue.VenuePosition, error) {
	return f.positions, nil
}
func (f *fakeAdapter) GetOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	return f.orders, f.ordersErr
}
func (f *fakeAdapter) GetTicker(ctx context.Context, symbol string) (types.Money, error) {
	return f.ticker, f.tickerErr
}
func (f *fakeAdapter) GetMinOrderSize(ctx context.Context, symbol string) (types.Money, error) {
	return f.minOrderSize, f.minOrderErr
}
func (f *fakeAdapter) PlaceOrder(ctx context.Context, req venue.PlaceOrderRequest) (venue.PlaceOrderResult, error) {
	if f.placeResult != nil {
		return f.placeResult(req)
	}
	return venue.PlaceOrderResult{Success: true, OrderID: types.NewID(), Status: types.OrderFilled, AverageFill: &f.ticker}, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error) {
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return true, nil
}

func filledResult(price types.Money) func(venue.PlaceOrderRequest) (venue.PlaceOrderResult, error) {
	return func(req venue.PlaceOrderRequest) (venue.PlaceOrderResult, error) {
		return venue.PlaceOrderResult{Success: true, OrderID: types.NewID(), Status: types.OrderFilled, AverageFill: &price}, nil
	}
}

func failedResult() func(venue.PlaceOrderRequest) (venue.PlaceOrderResult, error) {
	return func(req venue.PlaceOrderRequest) (venue.PlaceOrderResult, error) {
		return venue.PlaceOrderResult{Success: false, Error: "rejected"}, nil
	}
}

func newTestCoordinator(t *testing.T, long, short *fakeAdapter) (*Coordinator, *risk.Controller) {
	t.Helper()
	cfg := *config.DefaultExecutionConfig()
	riskCfg := *config.DefaultRiskConfig()
	riskCtl := risk.NewController(riskCfg, nil, func(ctx context.Context, ev activity.Event) {}, zerolog.Nop())
	riskCtl.SetTotalCapital(moneyf(1_000_000))

	venues := map[string]venue.Adapter{long.name: long, short.name: short}
	audit := &fakeAuditRepo{}
	c := NewCoordinator(cfg, venues, riskCtl, audit, nil, func(ctx context.Context, ev activity.Event) {}, zerolog.Nop())
	return c, riskCtl
}

type fakeAuditRepo struct {
	rows []persistence.ExecutionEventRow
}

func (f *fakeAuditRepo) Append(ctx context.Context, row persistence.ExecutionEventRow) error {
	f.rows = append(f.rows, row)
	return nil
}

func testRequest() Request {
	return Request{
		AllocationID: types.NewID(), Symbol: "BTC-PERP",
		LongVenue: "binance", ShortVenue: "okx", SizeUSD: moneyf(10_000),
	}
}

func TestSubmit_BothLegsFillOpensPosition(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, result.Failed)
	require.NotNil(t, result.Position)
	assert.Equal(t, types.PositionActive, result.Position.State)
	assert.Equal(t, "BTC-PERP", result.Position.Symbol)
}

func TestSubmit_RiskRejectionReturnsFailedNoError(t *testing.T) {
	long := &fakeAdapter{name: "binance", ticker: moneyf(100), minOrderSize: moneyf(0.001)}
	short := &fakeAdapter{name: "okx", ticker: moneyf(100), minOrderSize: moneyf(0.001)}
	c, _ := newTestCoordinator(t, long, short)

	req := testRequest()
	req.SizeUSD = moneyf(10_000_000_000) // far beyond any configured cap

	result, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Failed)
	assert.NotEmpty(t, result.Reason)
}

func TestSubmit_PriceFallsBackToShortVenue(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", tickerErr: assert.AnError, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, result.Failed)
	require.NotNil(t, result.Position)
}

func TestSubmit_BothVenuesPriceUnavailableFails(t *testing.T) {
	long := &fakeAdapter{name: "binance", tickerErr: assert.AnError, minOrderSize: moneyf(0.001)}
	short := &fakeAdapter{name: "okx", tickerErr: assert.AnError, minOrderSize: moneyf(0.001)}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, result.Failed)
}

func TestSubmit_MinOrderSizeTooLargeAborts(t *testing.T) {
	long := &fakeAdapter{name: "binance", ticker: moneyf(100), minOrderSize: moneyf(1000)}
	short := &fakeAdapter{name: "okx", ticker: moneyf(100), minOrderSize: moneyf(0.001)}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, result.Failed)
	assert.ErrorIs(t, err, ErrMinOrderSizeTooLarge)
}

func TestSubmit_LongFailsShortFillsEmergencyCloses(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001), placeResult: failedResult()}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, result.Failed)
	assert.Nil(t, result.Position)
}

func TestSubmit_BothLegsFailReturnsError(t *testing.T) {
	long := &fakeAdapter{name: "binance", ticker: moneyf(100), minOrderSize: moneyf(0.001), placeResult: failedResult()}
	short := &fakeAdapter{name: "okx", ticker: moneyf(100), minOrderSize: moneyf(0.001), placeResult: failedResult()}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.Submit(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrBothLegsFailed)
	assert.True(t, result.Failed)
}

func TestCloseRequest_ClosesBothLegsAndComputesPnL(t *testing.T) {
	entry := moneyf(100)
	exit := moneyf(110)
	long := &fakeAdapter{
		name: "binance", ticker: exit, minOrderSize: moneyf(0.001),
		positions:   []venue.VenuePosition{{Venue: "binance", Symbol: "BTC-PERP", Side: types.SideBuy, Quantity: 1, EntryPrice: entry}},
		placeResult: filledResult(exit),
	}
	short := &fakeAdapter{
		name: "okx", ticker: exit, minOrderSize: moneyf(0.001),
		positions:   []venue.VenuePosition{{Venue: "okx", Symbol: "BTC-PERP", Side: types.SideSell, Quantity: 1, EntryPrice: entry}},
		placeResult: filledResult(exit),
	}
	c, _ := newTestCoordinator(t, long, short)

	result, err := c.CloseRequest(context.Background(), CloseReq{
		PositionID: types.NewID(), Symbol: "BTC-PERP", LongVenue: "binance", ShortVenue: "okx", Reason: "stop-loss",
	})
	require.NoError(t, err)
	// long gains (110-100)=10, short loses (100-110)=-10: net flat.
	assert.True(t, result.RealizedPnL.IsZero())
}

func TestPollPair_HighFillRatioFinishesImmediately(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001)}
	c, _ := newTestCoordinator(t, long, short)

	pair := &trackedPair{
		allocationID: types.NewID(), symbol: "BTC-PERP", longVenue: "binance", shortVenue: "okx",
		long: &types.Order{ID: types.NewID(), Venue: "binance", Symbol: "BTC-PERP", Size: 1, FilledSize: 1, State: types.OrderPartial, AvgFillPrice: price},
		short: &types.Order{ID: types.NewID(), Venue: "okx", Symbol: "BTC-PERP", Size: 1, FilledSize: 0.96, State: types.OrderPartial, AvgFillPrice: price},
		startedAt: time.Now().Add(-time.Second),
	}
	c.trackPair(pair)
	c.pollPair(context.Background(), pair)

	c.mu.Lock()
	_, stillTracked := c.open[pair.long.PairedOrderID]
	c.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestPollPair_MaxAgeAbandonsAndClosesFilledLegs(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	c, _ := newTestCoordinator(t, long, short)
	c.cfg.MaxAgeSeconds = 1

	pair := &trackedPair{
		allocationID: types.NewID(), symbol: "BTC-PERP", longVenue: "binance", shortVenue: "okx",
		long: &types.Order{ID: types.NewID(), Venue: "binance", Symbol: "BTC-PERP", Size: 1, FilledSize: 0.3, State: types.OrderPartial},
		short: &types.Order{ID: types.NewID(), Venue: "okx", Symbol: "BTC-PERP", Size: 1, FilledSize: 0.1, State: types.OrderPartial},
		startedAt: time.Now().Add(-time.Hour),
	}
	c.trackPair(pair)
	c.pollPair(context.Background(), pair)

	assert.Contains(t, long.cancelled, pair.long.ID)
	assert.Contains(t, short.cancelled, pair.short.ID)
}

func TestCheckLegSync_BelowToleranceSubmitsCorrection(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	c, _ := newTestCoordinator(t, long, short)
	c.cfg.LegSyncTolerance = 0.01

	pair := &trackedPair{
		allocationID: types.NewID(), symbol: "BTC-PERP", longVenue: "binance", shortVenue: "okx",
		long:  &types.Order{ID: types.NewID(), Venue: "binance", Symbol: "BTC-PERP", Side: types.SideBuy, Size: 1, FilledSize: 1},
		short: &types.Order{ID: types.NewID(), Venue: "okx", Symbol: "BTC-PERP", Side: types.SideSell, Size: 1, FilledSize: 0.8},
	}
	c.checkLegSync(context.Background(), pair)
	assert.Equal(t, 0.8, pair.long.FilledSize)
	assert.Equal(t, 0.8, pair.short.FilledSize)
}

func TestHedgeAdjust_ResubmitsOverFilledLegAtStaleFillSize(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001), placeResult: filledResult(price)}
	c, _ := newTestCoordinator(t, long, short)
	c.cfg.HedgeAdjustRatio = 0.50
	c.cfg.FillRatioThreshold = 0.95
	c.cfg.StaleAgeSeconds = 1

	pair := &trackedPair{
		allocationID: types.NewID(), symbol: "BTC-PERP", longVenue: "binance", shortVenue: "okx",
		long:      &types.Order{ID: types.NewID(), Venue: "binance", Symbol: "BTC-PERP", Side: types.SideBuy, Size: 1, FilledSize: 1, State: types.OrderFilled},
		short:     &types.Order{ID: types.NewID(), Venue: "okx", Symbol: "BTC-PERP", Side: types.SideSell, Size: 1, FilledSize: 0.6, State: types.OrderPartial},
		startedAt: time.Now().Add(-time.Hour),
	}
	c.trackPair(pair)
	c.pollPair(context.Background(), pair)

	assert.Contains(t, short.cancelled, pair.short.ID)
	assert.Equal(t, 0.6, pair.long.FilledSize)
	assert.Equal(t, types.OrderFilled, pair.long.State)
	assert.Equal(t, types.OrderFilled, pair.short.State)

	c.mu.Lock()
	_, stillTracked := c.open[pair.long.PairedOrderID]
	c.mu.Unlock()
	assert.False(t, stillTracked)
}

func TestCheckLegSync_WithinToleranceNoop(t *testing.T) {
	price := moneyf(100)
	long := &fakeAdapter{name: "binance", ticker: price, minOrderSize: moneyf(0.001)}
	short := &fakeAdapter{name: "okx", ticker: price, minOrderSize: moneyf(0.001)}
	c, _ := newTestCoordinator(t, long, short)
	c.cfg.LegSyncTolerance = 0.10

	pair := &trackedPair{
		allocationID: types.NewID(), symbol: "BTC-PERP", longVenue: "binance", shortVenue: "okx",
		long:  &types.Order{ID: types.NewID(), Venue: "binance", Symbol: "BTC-PERP", Side: types.SideBuy, Size: 1, FilledSize: 1},
		short: &types.Order{ID: types.NewID(), Venue: "okx", Symbol: "BTC-PERP", Side: types.SideSell, Size: 1, FilledSize: 0.95},
	}
	c.checkLegSync(context.Background(), pair)
	assert.Equal(t, 0.95, pair.short.FilledSize)
	assert.Empty(t, short.cancelled)
}
