package capital

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/risk"
	"github.com/fundingarb/core/internal/types"
)

type fakePositionsRepo struct {
	persistence.PositionsRepo
	active []persistence.PositionRow
}

func (f *fakePositionsRepo) ListActive(ctx context.Context) ([]persistence.PositionRow, error) {
	return f.active, nil
}

type fakeUnwindsRepo struct {
	appended []persistence.AutoUnwindEventRow
}

func (f *fakeUnwindsRepo) Append(ctx context.Context, row persistence.AutoUnwindEventRow) error {
	f.appended = append(f.appended, row)
	return nil
}

func newTestAllocator(t *testing.T, cfg config.AllocationConfig, positions persistence.PositionsRepo, unwinds persistence.AutoUnwindRepo) (*Allocator, *[]activity.Event) {
	t.Helper()
	captured := &[]activity.Event{}
	riskCfg := *config.DefaultRiskConfig()
	riskCtl := risk.NewController(riskCfg, nil, func(ctx context.Context, ev activity.Event) {}, zerolog.Nop())
	riskCtl.SetTotalCapital(moneyf(1_000_000))

	a := NewAllocator(cfg, riskCtl, positions, unwinds, NewEdgeTracker(), nil, nil,
		func(ctx context.Context, ev activity.Event) { *captured = append(*captured, ev) }, zerolog.Nop())
	return a, captured
}

func testOpportunity(symbol string, uos float64) types.Opportunity {
	return types.Opportunity{
		ID:         types.NewID(),
		Symbol:     symbol,
		LongVenue:  "binance",
		ShortVenue: "okx",
		UOSTotal:   uos,
		DetectedAt: types.NowUTC(),
	}
}

func TestAllocate_ApprovedCreatesPendingAllocation(t *testing.T) {
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), nil, nil)

	alloc, approval, err := a.Allocate(context.Background(), testOpportunity("BTC-PERP", 80), moneyf(100_000), CorrelationInput{})
	require.NoError(t, err)
	assert.True(t, approval.Approved)
	require.NotNil(t, alloc)
	assert.Equal(t, types.AllocPending, alloc.State)
	assert.Equal(t, "BTC-PERP", alloc.Symbol)
	assert.Equal(t, 1, a.ActiveCount())
}

func TestAllocate_RiskRejectionReturnsNilAllocationNoError(t *testing.T) {
	cfg := *config.DefaultAllocationConfig()
	a, captured := newTestAllocator(t, cfg, nil, nil)

	riskCfg := *config.DefaultRiskConfig()
	riskCfg.MaxPositionSizeUSD = 0
	riskCtl := risk.NewController(riskCfg, nil, func(ctx context.Context, ev activity.Event) {}, zerolog.Nop())
	riskCtl.SetTotalCapital(moneyf(1_000_000))
	a.risk = riskCtl

	alloc, approval, err := a.Allocate(context.Background(), testOpportunity("ETH-PERP", 80), moneyf(100_000), CorrelationInput{})
	require.NoError(t, err)
	assert.False(t, approval.Approved)
	assert.Nil(t, alloc)
	assert.Equal(t, 0, a.ActiveCount())
	require.Len(t, *captured, 1)
}

func TestQueueThenApprove_AddsToActiveIndex(t *testing.T) {
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), nil, nil)

	alloc, err := a.Queue(context.Background(), testOpportunity("SOL-PERP", 70), moneyf(100_000), CorrelationInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, a.ActiveCount(), "queued allocation not yet active")

	err = a.Approve(context.Background(), alloc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.ActiveCount())
}

func TestApprove_UnknownIDReturnsNotFound(t *testing.T) {
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), nil, nil)
	err := a.Approve(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrAllocationNotFound)
}

func TestTransition_LegalAndIllegalEdges(t *testing.T) {
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), nil, nil)
	alloc, _, err := a.Allocate(context.Background(), testOpportunity("BTC-PERP", 80), moneyf(100_000), CorrelationInput{})
	require.NoError(t, err)

	require.NoError(t, a.Transition(alloc.ID, types.AllocExecuting))
	require.NoError(t, a.Transition(alloc.ID, types.AllocActive))
	assert.Equal(t, 1, a.ActiveCount())

	err = a.Transition(alloc.ID, types.AllocPending)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	require.NoError(t, a.Transition(alloc.ID, types.AllocClosing))
	require.NoError(t, a.Transition(alloc.ID, types.AllocClosed))
	assert.Equal(t, 0, a.ActiveCount(), "terminal state drops from active index")
}

func TestEnforceConcurrentCap_ClosesWeakestExcess(t *testing.T) {
	cfg := *config.DefaultAllocationConfig()
	cfg.MaxConcurrentCoins = 1
	unwinds := &fakeUnwindsRepo{}
	a, captured := newTestAllocator(t, cfg, nil, unwinds)

	strong, _, err := a.Allocate(context.Background(), testOpportunity("BTC-PERP", 90), moneyf(1_000_000), CorrelationInput{})
	require.NoError(t, err)
	weak, _, err := a.Allocate(context.Background(), testOpportunity("DOGE-PERP", 60), moneyf(1_000_000), CorrelationInput{})
	require.NoError(t, err)
	require.Equal(t, 2, a.ActiveCount())

	weakness := []WeaknessInput{
		{AllocationID: strong.ID, FundingPnL: 50, UnrealizedPnL: 50, TotalPnL: 100},
		{AllocationID: weak.ID, FundingPnL: -50, UnrealizedPnL: -50, TotalPnL: -100},
	}

	victims, err := a.EnforceConcurrentCap(context.Background(), weakness)
	require.NoError(t, err)
	require.Equal(t, []string{weak.ID}, victims)
	require.Len(t, unwinds.appended, 1)
	assert.Equal(t, weak.Symbol, unwinds.appended[0].Symbol)
	assert.Equal(t, "concurrent-coin-cap", unwinds.appended[0].Reason)

	found := false
	for _, ev := range *captured {
		if ce, ok := ev.(activity.CapitalEvent); ok && ce.AllocationID == weak.ID {
			found = true
		}
	}
	assert.True(t, found, "expected a capital event for the unwound allocation")
}

func TestEnforceConcurrentCap_NoExcessIsNoop(t *testing.T) {
	cfg := *config.DefaultAllocationConfig()
	cfg.MaxConcurrentCoins = 10
	a, _ := newTestAllocator(t, cfg, nil, nil)

	_, _, err := a.Allocate(context.Background(), testOpportunity("BTC-PERP", 90), moneyf(1_000_000), CorrelationInput{})
	require.NoError(t, err)

	victims, err := a.EnforceConcurrentCap(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, victims)
}

func TestReconcileOnStartup_SynthesizesUnmanagedPosition(t *testing.T) {
	positions := &fakePositionsRepo{active: []persistence.PositionRow{
		{ID: "pos-1", Symbol: "BTC-PERP", Status: "open", OpenedAt: time.Now().UTC()},
	}}
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), positions, nil)

	err := a.ReconcileOnStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, a.ActiveCount())
	assert.Contains(t, a.ActiveSymbols(), "BTC-PERP")
}

func TestReconcileOnStartup_ClosesOrphanedAllocation(t *testing.T) {
	positions := &fakePositionsRepo{active: []persistence.PositionRow{
		{ID: "pos-1", Symbol: "BTC-PERP", Status: "open", OpenedAt: time.Now().UTC()},
	}}
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), positions, nil)

	require.NoError(t, a.ReconcileOnStartup(context.Background()))
	require.Equal(t, 1, a.ActiveCount())

	positions.active = nil
	require.NoError(t, a.ReconcileOnStartup(context.Background()))
	assert.Equal(t, 0, a.ActiveCount())
}

func TestReconcileOnStartup_NilPositionsRepoIsNoop(t *testing.T) {
	a, _ := newTestAllocator(t, *config.DefaultAllocationConfig(), nil, nil)
	assert.NoError(t, a.ReconcileOnStartup(context.Background()))
}
