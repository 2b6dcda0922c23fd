package capital

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/metrics"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/risk"
	"github.com/fundingarb/core/internal/types"
)

const (
	reconcileLockKey   = "fundingarb:capital:reconcile-lock"
	enforcementLockKey = "fundingarb:capital:enforce-lock"
	distributedLockTTL = 30 * time.Second
	redisAllocationKey = "fundingarb:capital:allocations"
)

// ActivityPublisher mirrors risk.ActivityPublisher's shape so every
// component records audit narratives the same way.
type ActivityPublisher func(ctx context.Context, ev activity.Event)

// Allocator is the Capital Allocator (spec §4.3). It owns the in-memory
// set of non-terminal allocations, sizes new ones, enforces the
// concurrent-coin cap, and reconciles against the persistent store on
// startup.
//
// Grounded on the teacher's single-RWMutex map-of-structs cache shape
// (also used by internal/marketstate.Cache) for the allocation set, and
// the teacher's upsert-on-conflict persistence idiom for reconciliation.
type Allocator struct {
	cfg       config.AllocationConfig
	risk      *risk.Controller
	positions persistence.PositionsRepo
	unwinds   persistence.AutoUnwindRepo
	edges     *EdgeTracker
	redis     *redis.Client
	eventBus  bus.EventBus
	onEvent   ActivityPublisher
	log       zerolog.Logger
	metrics   *metrics.Registry

	mu          sync.RWMutex
	allocations map[string]*types.Allocation
	symbolIndex map[string]string // symbol -> allocation ID, active allocations only
}

// SetMetrics attaches a metrics registry; nil-safe if never called.
func (a *Allocator) SetMetrics(m *metrics.Registry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = m
}

// NewAllocator constructs an Allocator. redisClient and eventBus/onEvent
// may be nil (single-instance / test mode); positions/unwinds must be
// non-nil for Allocate/Reconcile/EnforceConcurrentCap to do anything
// useful, but a nil positions repo degrades ReconcileOnStartup to a
// no-op rather than panicking.
func NewAllocator(cfg config.AllocationConfig, riskCtl *risk.Controller, positions persistence.PositionsRepo, unwinds persistence.AutoUnwindRepo, edges *EdgeTracker, redisClient *redis.Client, eventBus bus.EventBus, onEvent ActivityPublisher, log zerolog.Logger) *Allocator {
	if edges == nil {
		edges = NewEdgeTracker()
	}
	return &Allocator{
		cfg:         cfg,
		risk:        riskCtl,
		positions:   positions,
		unwinds:     unwinds,
		edges:       edges,
		redis:       redisClient,
		eventBus:    eventBus,
		onEvent:     onEvent,
		log:         log.With().Str("component", "capital").Logger(),
		allocations: make(map[string]*types.Allocation),
		symbolIndex: make(map[string]string),
	}
}

func (a *Allocator) sizingConfig() SizingConfig {
	return SizingConfig{
		UseKellyCriterion:       a.cfg.UseKellyCriterion,
		KellyFraction:           a.cfg.KellyFraction,
		MinKellyEdge:            a.cfg.MinKellyEdge,
		ScoreWeightFactor:       a.cfg.ScoreWeightFactor,
		BaseAllocationPct:       a.cfg.BaseAllocationPct,
		MaxPortfolioCorrelation: a.cfg.MaxPortfolioCorrelation,
		CorrelationSizePenalty:  a.cfg.CorrelationSizePenalty,
		MinAllocationUSD:        decimal.NewFromFloat(a.cfg.MinAllocationUSD),
		MaxAllocationUSD:        decimal.NewFromFloat(a.cfg.MaxAllocationUSD),
	}
}

// ActiveSymbols returns the symbols with a non-terminal allocation.
func (a *Allocator) ActiveSymbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.symbolIndex))
	for s := range a.symbolIndex {
		out = append(out, s)
	}
	return out
}

// ActiveCount returns the number of distinct symbols currently allocated.
func (a *Allocator) ActiveCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.symbolIndex)
}

// Allocate runs the full sizing pipeline for an AUTO_TRADE or
// manually-approved opportunity, submits it to the Risk Controller for a
// final cap check, and on approval records a new PENDING allocation.
// Per spec §4.3 step 4, a risk rejection is not an error: the caller
// receives the (possibly downsized) approval and decides whether to
// proceed at MaxAllowedSize.
func (a *Allocator) Allocate(ctx context.Context, opp types.Opportunity, availableCapital types.Money, corr CorrelationInput) (*types.Allocation, types.TradeApproval, error) {
	edge, hasEdge := a.edges.EdgeFor(opp.Symbol)

	sized, err := SizeOpportunity(a.sizingConfig(), edge, hasEdge, opp.UOSTotal, availableCapital, corr)
	if err != nil {
		return nil, types.TradeApproval{}, err
	}

	approval := a.risk.ValidateTrade(opp.Symbol, opp.LongVenue, opp.ShortVenue, sized)
	if !approval.Approved {
		a.publish(ctx, activity.CapitalEvent{
			base:   activity.New("risk rejected: "+approval.Reason, activity.SeverityWarn),
			Symbol: opp.Symbol,
			Reason: "risk rejected: " + approval.Reason,
		})
		return nil, approval, nil
	}

	finalSize := sized
	if approval.MaxAllowedSize.LessThan(finalSize) {
		finalSize = approval.MaxAllowedSize
	}

	alloc := &types.Allocation{
		ID:            types.NewID(),
		OpportunityID: opp.ID,
		Symbol:        opp.Symbol,
		LongVenue:     opp.LongVenue,
		ShortVenue:    opp.ShortVenue,
		SizeUSD:       finalSize,
		UOSAtEntry:    opp.UOSTotal,
		State:         types.AllocPending,
		CreatedAt:     types.NowUTC(),
	}

	a.mu.Lock()
	a.allocations[alloc.ID] = alloc
	a.symbolIndex[alloc.Symbol] = alloc.ID
	activeCount := len(a.symbolIndex)
	a.mu.Unlock()

	if a.metrics != nil {
		sizeF, _ := finalSize.Float64()
		a.metrics.AllocationSizeUSD.WithLabelValues(alloc.Symbol).Observe(sizeF)
		a.metrics.ActiveAllocations.Set(float64(activeCount))
	}

	a.mirrorToRedis(ctx)
	a.publish(ctx, activity.CapitalEvent{
		base:         activity.New(fmt.Sprintf("allocation sized: %s %s", alloc.Symbol, finalSize.String()), activity.SeverityInfo),
		AllocationID: alloc.ID,
		Symbol:       alloc.Symbol,
		SizeUSD:      finalSize.String(),
		Reason:       "sized",
	})
	a.publishBus(ctx, bus.TopicCapitalAllocated, alloc)

	return alloc, approval, nil
}

// Queue records a below-threshold opportunity for manual approval with a
// suggested size from the same sizing pipeline, per spec §4.3's
// "Approval queueing". The allocation is created in PENDING state but is
// not counted toward the concurrent-coin cap until a human approves it
// via Approve.
func (a *Allocator) Queue(ctx context.Context, opp types.Opportunity, availableCapital types.Money, corr CorrelationInput) (*types.Allocation, error) {
	edge, hasEdge := a.edges.EdgeFor(opp.Symbol)
	suggested, err := SizeOpportunity(a.sizingConfig(), edge, hasEdge, opp.UOSTotal, availableCapital, corr)
	if err != nil {
		return nil, err
	}

	alloc := &types.Allocation{
		ID:            types.NewID(),
		OpportunityID: opp.ID,
		Symbol:        opp.Symbol,
		LongVenue:     opp.LongVenue,
		ShortVenue:    opp.ShortVenue,
		SizeUSD:       suggested,
		UOSAtEntry:    opp.UOSTotal,
		State:         types.AllocPending,
		CreatedAt:     types.NowUTC(),
	}

	a.mu.Lock()
	a.allocations[alloc.ID] = alloc
	a.mu.Unlock()

	a.publish(ctx, activity.CapitalEvent{
		base:         activity.New(fmt.Sprintf("queued for manual approval: %s %s", alloc.Symbol, suggested.String()), activity.SeverityInfo),
		AllocationID: alloc.ID,
		Symbol:       alloc.Symbol,
		SizeUSD:      suggested.String(),
		Reason:       "queued for manual approval",
	})
	return alloc, nil
}

// Approve promotes a queued allocation into the active symbol index,
// counting it against the concurrent-coin cap from this point on.
func (a *Allocator) Approve(ctx context.Context, allocationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	alloc, ok := a.allocations[allocationID]
	if !ok {
		return ErrAllocationNotFound
	}
	a.symbolIndex[alloc.Symbol] = alloc.ID
	a.publish(ctx, activity.CapitalEvent{
		base:         activity.New("manually approved: "+alloc.Symbol, activity.SeverityInfo),
		AllocationID: alloc.ID,
		Symbol:       alloc.Symbol,
		Reason:       "manually approved",
	})
	return nil
}

// Transition advances an allocation's lifecycle state, enforcing the
// legal-edge rule in types.Allocation.TransitionTo, and drops it from the
// active symbol index once terminal.
func (a *Allocator) Transition(allocationID string, next types.AllocationState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	alloc, ok := a.allocations[allocationID]
	if !ok {
		return ErrAllocationNotFound
	}
	if !alloc.TransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, alloc.State, next)
	}
	if next.Terminal() {
		if a.symbolIndex[alloc.Symbol] == alloc.ID {
			delete(a.symbolIndex, alloc.Symbol)
		}
	}
	return nil
}

// EnforceConcurrentCap implements spec §4.3's coin-cap rule: if the
// active-symbol count exceeds max-concurrent-coins, close the |excess|
// weakest positions by WeaknessScore. Runs under the enforcement fenced
// lock so two instances never pick overlapping victims.
func (a *Allocator) EnforceConcurrentCap(ctx context.Context, weakness []WeaknessInput) ([]string, error) {
	lock := newFencedLock(a.redis, enforcementLockKey, distributedLockTTL)
	if err := lock.acquire(ctx); err != nil {
		return nil, err
	}
	defer lock.release(ctx)

	a.mu.RLock()
	activeCount := len(a.symbolIndex)
	maxCoins := a.cfg.MaxConcurrentCoins
	a.mu.RUnlock()

	excess := activeCount - maxCoins
	if excess <= 0 {
		return nil, nil
	}

	victims := RankWeakest(weakness, excess)
	for _, allocID := range victims {
		a.mu.RLock()
		alloc, ok := a.allocations[allocID]
		a.mu.RUnlock()
		if !ok {
			continue
		}
		if a.unwinds != nil {
			var score float64
			for _, w := range weakness {
				if w.AllocationID == allocID {
					score = WeaknessScore(w)
					break
				}
			}
			_ = a.unwinds.Append(ctx, persistence.AutoUnwindEventRow{
				AllocationID:  allocID,
				PositionID:    alloc.PositionID,
				Symbol:        alloc.Symbol,
				Reason:        "concurrent-coin-cap",
				WeaknessScore: score,
				CoinsBefore:   activeCount,
				MaxCoins:      maxCoins,
			})
		}
		if a.metrics != nil {
			a.metrics.AutoUnwinds.WithLabelValues(alloc.Symbol, "concurrent-coin-cap").Inc()
		}
		a.publish(ctx, activity.CapitalEvent{
			base:         activity.New("auto-unwind: concurrent coin cap: "+alloc.Symbol, activity.SeverityWarn),
			AllocationID: allocID,
			Symbol:       alloc.Symbol,
			Reason:       "auto-unwind: concurrent coin cap",
		})
		a.publishBus(ctx, bus.TopicExecutionClose, alloc)
	}
	return victims, nil
}

// ReconcileOnStartup implements spec §4.3's recovery rule: rebuild the
// in-memory allocation set from open positions in the persistent store,
// synthesizing a record for any position that lacks one, and mark any
// in-memory allocation whose position no longer exists as CLOSED. The
// database is authoritative for coin count.
func (a *Allocator) ReconcileOnStartup(ctx context.Context) error {
	if a.positions == nil {
		return nil
	}
	lock := newFencedLock(a.redis, reconcileLockKey, distributedLockTTL)
	if err := lock.acquire(ctx); err != nil {
		return err
	}
	defer lock.release(ctx)

	rows, err := a.positions.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("capital: reconcile: list active positions: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	knownByPosition := make(map[string]*types.Allocation, len(a.allocations))
	for _, alloc := range a.allocations {
		if alloc.PositionID != "" {
			knownByPosition[alloc.PositionID] = alloc
		}
	}

	liveSymbols := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		liveSymbols[row.Symbol] = struct{}{}
		if _, ok := knownByPosition[row.ID]; ok {
			continue
		}
		synthetic := &types.Allocation{
			ID:         types.NewID(),
			Symbol:     row.Symbol,
			PositionID: row.ID,
			State:      types.AllocActive,
			CreatedAt:  row.OpenedAt,
		}
		a.allocations[synthetic.ID] = synthetic
		a.symbolIndex[synthetic.Symbol] = synthetic.ID
		a.log.Warn().Str("position_id", row.ID).Str("symbol", row.Symbol).Msg("synthesized allocation for unmanaged open position")
	}

	for _, alloc := range a.allocations {
		if alloc.State.Terminal() || alloc.PositionID == "" {
			continue
		}
		if _, stillOpen := liveSymbols[alloc.Symbol]; !stillOpen {
			alloc.TransitionTo(types.AllocClosing)
			alloc.TransitionTo(types.AllocClosed)
			delete(a.symbolIndex, alloc.Symbol)
			a.log.Warn().Str("allocation_id", alloc.ID).Str("symbol", alloc.Symbol).Msg("closed orphaned allocation: position no longer exists")
		}
	}

	return nil
}

func (a *Allocator) mirrorToRedis(ctx context.Context) {
	if a.redis == nil {
		return
	}
	a.mu.RLock()
	snapshot := make([]*types.Allocation, 0, len(a.allocations))
	for _, alloc := range a.allocations {
		snapshot = append(snapshot, alloc)
	}
	a.mu.RUnlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		a.log.Error().Err(err).Msg("marshal allocation mirror")
		return
	}
	if err := a.redis.Set(ctx, redisAllocationKey, data, 0).Err(); err != nil {
		a.log.Warn().Err(err).Msg("mirror allocations to redis failed")
	}
}

func (a *Allocator) publish(ctx context.Context, ev activity.CapitalEvent) {
	if a.onEvent == nil {
		return
	}
	a.onEvent(ctx, ev)
}

func (a *Allocator) publishBus(ctx context.Context, topic string, payload interface{}) {
	if a.eventBus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		a.log.Error().Err(err).Str("topic", topic).Msg("marshal bus payload")
		return
	}
	if err := a.eventBus.Publish(ctx, topic, types.NewID(), data); err != nil {
		a.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}
