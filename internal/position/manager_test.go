package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/marketstate"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/risk"
	"github.com/fundingarb/core/internal/types"
)

type fakePositionRows struct {
	upserts    []persistence.PositionRow
	legUpserts []persistence.LegRow
}

func (f *fakePositionRows) Upsert(ctx context.Context, row persistence.PositionRow) error {
	f.upserts = append(f.upserts, row)
	return nil
}
func (f *fakePositionRows) UpsertLeg(ctx context.Context, row persistence.LegRow) error {
	f.legUpserts = append(f.legUpserts, row)
	return nil
}
func (f *fakePositionRows) Get(ctx context.Context, id string) (*persistence.PositionRow, error) {
	return nil, nil
}
func (f *fakePositionRows) ListActive(ctx context.Context) ([]persistence.PositionRow, error) {
	return nil, nil
}
func (f *fakePositionRows) ListActiveSymbols(ctx context.Context) ([]string, error) { return nil, nil }

type fakeSpreadsRepo struct{ appended []persistence.SpreadSnapshotRow }

func (f *fakeSpreadsRepo) Append(ctx context.Context, row persistence.SpreadSnapshotRow) error {
	f.appended = append(f.appended, row)
	return nil
}
func (f *fakeSpreadsRepo) ListByPosition(ctx context.Context, id string, tr persistence.TimeRange) ([]persistence.SpreadSnapshotRow, error) {
	return nil, nil
}

type fakeFundingsRepo struct{ appended []persistence.FundingPaymentRow }

func (f *fakeFundingsRepo) Append(ctx context.Context, row persistence.FundingPaymentRow) error {
	f.appended = append(f.appended, row)
	return nil
}
func (f *fakeFundingsRepo) ListByPosition(ctx context.Context, id string) ([]persistence.FundingPaymentRow, error) {
	return nil, nil
}

type fakeInteractionsRepo struct{ appended []persistence.InteractionRow }

func (f *fakeInteractionsRepo) Append(ctx context.Context, row persistence.InteractionRow) error {
	f.appended = append(f.appended, row)
	return nil
}
func (f *fakeInteractionsRepo) ListByPosition(ctx context.Context, id string, limit int) ([]persistence.InteractionRow, error) {
	return nil, nil
}

type managerHarness struct {
	mgr          *Manager
	positions    *fakePositionRows
	spreads      *fakeSpreadsRepo
	fundings     *fakeFundingsRepo
	interactions *fakeInteractionsRepo
	cache        *marketstate.Cache
	events       []activity.Event
}

func newTestManager(t *testing.T) *managerHarness {
	t.Helper()
	cache := marketstate.NewCache(marketstate.DefaultConfig(), zerolog.Nop())
	riskCfg := *config.DefaultRiskConfig()
	riskCtl := risk.NewController(riskCfg, nil, func(ctx context.Context, ev activity.Event) {}, zerolog.Nop())

	h := &managerHarness{
		positions:    &fakePositionRows{},
		spreads:      &fakeSpreadsRepo{},
		fundings:     &fakeFundingsRepo{},
		interactions: &fakeInteractionsRepo{},
		cache:        cache,
	}
	h.mgr = NewManager(*config.DefaultPositionConfig(), cache, riskCtl,
		h.positions, h.spreads, h.fundings, h.interactions, nil,
		func(ctx context.Context, ev activity.Event) { h.events = append(h.events, ev) }, zerolog.Nop())
	return h
}

func testPosition(id, symbol string) *types.Position {
	now := types.NowUTC()
	return &types.Position{
		ID: id, Symbol: symbol, LongVenue: "binance", ShortVenue: "okx",
		SizeUSD: moneyf(100_000),
		Long:    types.Leg{Venue: "binance", Side: "long", Quantity: 1, EntryPrice: moneyf(100), CurrentPrice: moneyf(100)},
		Short:   types.Leg{Venue: "okx", Side: "short", Quantity: 1, EntryPrice: moneyf(100), CurrentPrice: moneyf(100)},
		EntryPrice:  moneyf(100),
		CurrentPrice: moneyf(100),
		EntrySpread: moneyf(0.002),
		CurrentSpread: moneyf(0.002),
		State:   types.PositionActive,
		Health:  types.HealthHealthy,
		OpenedAt: now,
	}
}

func TestManager_OpenGetListClose(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	h.mgr.Open(pos, "opp-1")

	got, ok := h.mgr.Get("pos-1")
	require.True(t, ok)
	assert.Equal(t, "BTC-PERP", got.Symbol)
	assert.Len(t, h.mgr.List(), 1)

	h.mgr.Close("pos-1")
	_, ok = h.mgr.Get("pos-1")
	assert.False(t, ok)
}

func TestEvaluateHealth_SpreadFlipTriggersCriticalCloseAndEvents(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	pos.CurrentSpread = moneyf(-0.001)
	h.mgr.Open(pos, "opp-1")

	h.mgr.evaluateHealth(context.Background(), h.mgr.snapshotTracked()[0], types.NowUTC())

	updated, ok := h.mgr.Get("pos-1")
	require.True(t, ok)
	assert.Equal(t, types.HealthCritical, updated.Health)
	assert.Equal(t, types.ExitSpreadFlipped, updated.ExitReason)
	require.Len(t, h.spreads.appended, 1)
	require.Len(t, h.interactions.appended, 2, "expects a health_transition and an exit_triggered interaction")

	foundExit := false
	for _, ev := range h.events {
		if pe, ok := ev.(activity.PositionEvent); ok && pe.SuggestedAction == string(types.ExitSpreadFlipped) {
			foundExit = true
		}
	}
	assert.True(t, foundExit)
}

func TestEvaluateHealth_HealthyStaysHealthyNoTransitionEvent(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	h.mgr.Open(pos, "opp-1")

	h.mgr.evaluateHealth(context.Background(), h.mgr.snapshotTracked()[0], types.NowUTC())

	updated, _ := h.mgr.Get("pos-1")
	assert.Equal(t, types.HealthHealthy, updated.Health)
	assert.Empty(t, h.interactions.appended)
	assert.Empty(t, h.events)
}

func TestAccrueFundingFor_UpdatesAccumulatorsAndWatermark(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	pos.OpenedAt = types.NowUTC().Add(-2 * time.Hour)
	h.mgr.Open(pos, "opp-1")

	require.NoError(t, h.cache.UpdateFundingRate(types.FundingRate{
		Venue: "binance", Symbol: "BTC-PERP", CurrentRate: moneyf(0.0001),
		FundingIntervalHrs: 1, NextFundingTime: types.NowUTC().Add(time.Hour), LastUpdate: types.NowUTC(),
	}))
	require.NoError(t, h.cache.UpdateFundingRate(types.FundingRate{
		Venue: "okx", Symbol: "BTC-PERP", CurrentRate: moneyf(0.0005),
		FundingIntervalHrs: 1, NextFundingTime: types.NowUTC().Add(time.Hour), LastUpdate: types.NowUTC(),
	}))

	tp := h.mgr.snapshotTracked()[0]
	h.mgr.accrueFundingFor(context.Background(), tp, types.NowUTC())

	updated, _ := h.mgr.Get("pos-1")
	assert.True(t, updated.FundingReceived.IsPositive())
	assert.True(t, updated.FundingPaid.IsZero())
	assert.Equal(t, int64(2), updated.FundingPeriods)
	require.Len(t, h.fundings.appended, 1)
	require.Len(t, h.interactions.appended, 1)
}

func TestAccrueFundingFor_MissingQuotesIsNoop(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	h.mgr.Open(pos, "opp-1")

	tp := h.mgr.snapshotTracked()[0]
	h.mgr.accrueFundingFor(context.Background(), tp, types.NowUTC())

	updated, _ := h.mgr.Get("pos-1")
	assert.True(t, updated.FundingReceived.IsZero())
	assert.Empty(t, h.fundings.appended)
}

func TestUpdatePrices_RecomputesNotionalAndUnrealizedPnL(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	h.mgr.Open(pos, "opp-1")

	h.cache.UpdateQuote(types.Quote{Venue: "binance", Symbol: "BTC-PERP", Bid: moneyf(109), Ask: moneyf(111), LastUpdate: types.NowUTC()})
	h.cache.UpdateQuote(types.Quote{Venue: "okx", Symbol: "BTC-PERP", Bid: moneyf(99), Ask: moneyf(101), LastUpdate: types.NowUTC()})

	tp := h.mgr.snapshotTracked()[0]
	h.mgr.updatePrices(context.Background(), tp)

	updated, _ := h.mgr.Get("pos-1")
	assert.True(t, updated.Long.NotionalUSD.Equal(moneyf(110)))
	assert.True(t, updated.Long.UnrealizedPnL.Equal(moneyf(10)))
	assert.True(t, updated.Short.UnrealizedPnL.IsZero(), "short mid equals entry price, so short leg PnL is flat")
	require.Len(t, h.positions.upserts, 1)
	require.Len(t, h.positions.legUpserts, 2)
}

func TestEvaluateRebalance_DriftTriggersExecutionRequest(t *testing.T) {
	stub := bus.NewStubBus()
	require.NoError(t, stub.Start(context.Background()))

	cache := marketstate.NewCache(marketstate.DefaultConfig(), zerolog.Nop())
	riskCfg := *config.DefaultRiskConfig()
	riskCtl := risk.NewController(riskCfg, nil, func(ctx context.Context, ev activity.Event) {}, zerolog.Nop())
	var events []activity.Event
	mgr := NewManager(*config.DefaultPositionConfig(), cache, riskCtl, nil, nil, nil, nil, stub,
		func(ctx context.Context, ev activity.Event) { events = append(events, ev) }, zerolog.Nop())

	pos := testPosition("pos-1", "BTC-PERP")
	pos.Long.Quantity = 1.2
	pos.Short.Quantity = 1.0
	pos.OpenedAt = types.NowUTC().Add(-time.Hour)
	pos.TimeToNextFundingSeconds = 3600
	mgr.Open(pos, "opp-1")

	var requested bool
	require.NoError(t, stub.Subscribe(context.Background(), bus.TopicExecutionRequest, "test", func(ctx context.Context, msg bus.Message) error {
		requested = true
		return nil
	}))

	mgr.evaluateRebalance(context.Background(), mgr.snapshotTracked()[0], types.NowUTC())

	assert.True(t, requested)
	updated, _ := mgr.Get("pos-1")
	assert.Equal(t, 1, updated.RebalanceCount)
	assert.NotNil(t, updated.LastRebalance)
}

func TestEvaluateRebalance_NoDriftDoesNothing(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	h.mgr.Open(pos, "opp-1")

	h.mgr.evaluateRebalance(context.Background(), h.mgr.snapshotTracked()[0], types.NowUTC())

	updated, _ := h.mgr.Get("pos-1")
	assert.Equal(t, 0, updated.RebalanceCount)
}

func TestForecastPassthroughs_ReturnAdvisoryResults(t *testing.T) {
	h := newTestManager(t)
	pos := testPosition("pos-1", "BTC-PERP")
	h.mgr.Open(pos, "opp-1")

	tp := h.mgr.snapshotTracked()[0]
	h.cache.UpdateQuote(types.Quote{Venue: "binance", Symbol: "BTC-PERP", Bid: moneyf(100), Ask: moneyf(100), LastUpdate: types.NowUTC()})
	h.cache.UpdateQuote(types.Quote{Venue: "okx", Symbol: "BTC-PERP", Bid: moneyf(100), Ask: moneyf(100), LastUpdate: types.NowUTC()})
	for i := 0; i < 5; i++ {
		h.mgr.updatePrices(context.Background(), tp)
	}

	_, err := h.mgr.Forecast("BTC-PERP", "binance", "okx", 1)
	assert.NoError(t, err)

	seasonality := h.mgr.Seasonality("BTC-PERP", "binance", "okx")
	assert.False(t, seasonality.Detected)

	signal := h.mgr.MeanReversionSignal("BTC-PERP", "binance", "okx")
	assert.False(t, signal.Signaled)
}
