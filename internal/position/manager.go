package position

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/marketstate"
	"github.com/fundingarb/core/internal/metrics"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/risk"
	"github.com/fundingarb/core/internal/types"
)

// Periods match spec §4.5's five cooperating loop cadences exactly.
const (
	HealthMonitorInterval  = 30 * time.Second
	FundingTrackerInterval = 60 * time.Second
	PriceUpdaterInterval   = 10 * time.Second
	StatePublisherInterval = 30 * time.Second
	CorrelationInterval    = 30 * time.Second

	maxCorrelationSamples = 30
)

// ActivityPublisher mirrors risk.ActivityPublisher's shape and the
// identically-named type in internal/capital.
type ActivityPublisher func(ctx context.Context, ev activity.Event)

// trackedPosition bundles a live Position with the manager-internal state
// the five loops need but that isn't itself part of the persisted domain
// record: the degraded-timeout clock, the funding accrual watermark, the
// rebalance cooldown clock, and the rolling price pair for correlation.
type trackedPosition struct {
	pos           *types.Position
	opportunityID string
	degradedSince *time.Time
	lastFundingAt time.Time
	lastRebalance *time.Time
	longPrices    []float64
	shortPrices   []float64
}

// Manager is the Position Manager (spec §4.5): it owns every open
// Position record exclusively (except the order-linkage fields the
// Execution Coordinator writes, per spec §3's ownership rule) and runs
// the five periodic loops that keep health, funding, prices, the
// published snapshot and the rebalance decision current.
//
// Grounded on the teacher's internal/exits/logic.go precedence-table
// shape for per-tick rule evaluation (see health.go), and the teacher's
// Controller.Run single-ticker-per-concern loop shape
// (internal/risk/controller.go), generalized here to five independent
// tickers instead of one.
type Manager struct {
	cfg          config.PositionConfig
	cache        *marketstate.Cache
	risk         *risk.Controller
	positions    persistence.PositionsRepo
	spreads      persistence.SpreadSnapshotsRepo
	fundings     persistence.FundingPaymentsRepo
	interactions persistence.InteractionsRepo
	eventBus     bus.EventBus
	onEvent      ActivityPublisher
	forecaster   *Forecaster
	log          zerolog.Logger
	metrics      *metrics.Registry

	mu   sync.RWMutex
	open map[string]*trackedPosition
}

// SetMetrics attaches a metrics registry; nil-safe if never called.
func (m *Manager) SetMetrics(reg *metrics.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = reg
}

func NewManager(
	cfg config.PositionConfig,
	cache *marketstate.Cache,
	riskCtl *risk.Controller,
	positions persistence.PositionsRepo,
	spreads persistence.SpreadSnapshotsRepo,
	fundings persistence.FundingPaymentsRepo,
	interactions persistence.InteractionsRepo,
	eventBus bus.EventBus,
	onEvent ActivityPublisher,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		cfg:          cfg,
		cache:        cache,
		risk:         riskCtl,
		positions:    positions,
		spreads:      spreads,
		fundings:     fundings,
		interactions: interactions,
		eventBus:     eventBus,
		onEvent:      onEvent,
		forecaster:   NewForecaster(),
		log:          log.With().Str("component", "position").Logger(),
		open:         make(map[string]*trackedPosition),
	}
}

// Open registers a newly-opened position for monitoring. Per spec §5's
// ordering guarantee ("opened precedes all updated/health-changed"),
// callers must invoke this before any other component publishes an
// update referencing the position.
func (m *Manager) Open(pos *types.Position, opportunityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[pos.ID] = &trackedPosition{
		pos:           pos,
		opportunityID: opportunityID,
		lastFundingAt: pos.OpenedAt,
	}
	if m.metrics != nil {
		m.metrics.ActivePositions.Set(float64(len(m.open)))
	}
}

// Get returns a snapshot copy of a tracked position.
func (m *Manager) Get(id string) (types.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tp, ok := m.open[id]
	if !ok {
		return types.Position{}, false
	}
	return *tp.pos, true
}

// List returns a snapshot of every currently tracked position.
func (m *Manager) List() []types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Position, 0, len(m.open))
	for _, tp := range m.open {
		out = append(out, *tp.pos)
	}
	return out
}

// Close stops tracking a position once it has reached positions.closed.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, id)
	if m.metrics != nil {
		m.metrics.ActivePositions.Set(float64(len(m.open)))
	}
}

// Run starts the five periodic loops and blocks until ctx is cancelled,
// at which point all five stop. Each iteration survives its own errors:
// a failed persistence write or missing cache entry logs/skips rather
// than aborting the loop, per spec §5's "periodic loops must survive
// individual iteration failures".
func (m *Manager) Run(ctx context.Context) {
	loops := []struct {
		interval time.Duration
		tick     func(context.Context)
	}{
		{HealthMonitorInterval, m.healthTick},
		{FundingTrackerInterval, m.fundingTick},
		{PriceUpdaterInterval, m.priceTick},
		{StatePublisherInterval, m.statePublishTick},
		{CorrelationInterval, m.correlationTick},
	}
	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(interval time.Duration, tick func(context.Context)) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tick(ctx)
				}
			}
		}(l.interval, l.tick)
	}
	wg.Wait()
}

func (m *Manager) snapshotTracked() []*trackedPosition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*trackedPosition, 0, len(m.open))
	for _, tp := range m.open {
		out = append(out, tp)
	}
	return out
}

// healthTick is the 30s health-monitor loop: recompute health, append a
// spread snapshot, and close on a CRITICAL transition.
func (m *Manager) healthTick(ctx context.Context) {
	for _, tp := range m.snapshotTracked() {
		m.evaluateHealth(ctx, tp, types.NowUTC())
	}
}

func (m *Manager) evaluateHealth(ctx context.Context, tp *trackedPosition, now time.Time) {
	m.mu.Lock()
	pos := tp.pos
	in := buildHealthInputs(pos)
	prevHealth := pos.Health
	health, reason, shouldClose, nextDegradedSince := AdvanceHealth(m.cfg, in, prevHealth, tp.degradedSince, now)

	pos.Health = health
	pos.SpreadDrawdownPct = in.SpreadDrawdownPct
	pos.SpreadTrend = ComputeTrend(pos.SpreadHistory)
	tp.degradedSince = nextDegradedSince
	pos.DegradedSince = nextDegradedSince
	if shouldClose {
		pos.ExitReason = reason
	}

	sample := types.SpreadSample{
		PositionID: pos.ID,
		Spread:     pos.CurrentSpread,
		LongRate:   pos.LongFundingRate,
		ShortRate:  pos.ShortFundingRate,
		Price:      pos.CurrentPrice,
		Timestamp:  now,
	}
	pos.AppendSpreadSample(sample)

	positionID, symbol, opportunityID := pos.ID, pos.Symbol, tp.opportunityID
	posCopy := *pos
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PositionHealth.WithLabelValues(symbol).Set(metrics.HealthValue(string(health)))
	}

	if m.spreads != nil {
		_ = m.spreads.Append(ctx, persistence.SpreadSnapshotRow{
			PositionID: positionID,
			Spread:     sample.Spread.String(),
			LongRate:   sample.LongRate.String(),
			ShortRate:  sample.ShortRate.String(),
			Price:      sample.Price.String(),
			Timestamp:  now,
		})
	}

	if prevHealth != health {
		m.recordInteraction(ctx, positionID, opportunityID, symbol, "health_transition", string(health),
			fmt.Sprintf("%s: %s -> %s (%s)", symbol, prevHealth, health, reason),
			map[string]interface{}{"reason": string(reason)})
		m.publish(ctx, activity.PositionEvent{
			base:            activity.New(fmt.Sprintf("%s health %s -> %s (%s)", symbol, prevHealth, health, reason), severityForHealth(health)),
			PositionID:      positionID,
			Symbol:          symbol,
			Health:          string(health),
			SuggestedAction: string(reason),
		})
		m.publishBus(ctx, bus.TopicPositionHealth, posCopy)
	}

	if shouldClose {
		m.recordInteraction(ctx, positionID, opportunityID, symbol, "exit_triggered", string(reason),
			fmt.Sprintf("%s: exit triggered (%s)", symbol, reason), nil)
		m.publish(ctx, activity.PositionEvent{
			base:            activity.New(fmt.Sprintf("%s exit triggered: %s", symbol, reason), activity.SeverityWarn),
			PositionID:      positionID,
			Symbol:          symbol,
			Health:          string(health),
			SuggestedAction: string(reason),
		})
		m.publishBus(ctx, bus.TopicPositionExit, posCopy)
		m.publishBus(ctx, bus.TopicExecutionClose, posCopy)
	}
}

func buildHealthInputs(pos *types.Position) HealthInputs {
	spread := mustFloat(pos.CurrentSpread)
	entrySpread := mustFloat(pos.EntrySpread)
	unrealized := mustFloat(pos.UnrealizedPnL)
	size := mustFloat(pos.SizeUSD)

	longDist, longOK := pos.Long.LiquidationDistancePct()
	shortDist, shortOK := pos.Short.LiquidationDistancePct()

	return HealthInputs{
		CurrentSpread:        spread,
		EntrySpread:          entrySpread,
		UnrealizedPnLPct:     types.SafeDiv(unrealized, size),
		DeltaExposurePct:     pos.DeltaExposurePct,
		LongLiqDist:          longDist,
		LongLiqEvaluable:     longOK,
		ShortLiqDist:         shortDist,
		ShortLiqEvaluable:    shortOK,
		SpreadDrawdownPct:    SpreadDrawdownPct(entrySpread, spread),
		TimeToNextFundingSec: pos.TimeToNextFundingSeconds,
		FundingPeriods:       pos.FundingPeriods,
	}
}

func severityForHealth(h types.HealthState) activity.Severity {
	switch h {
	case types.HealthCritical:
		return activity.SeverityError
	case types.HealthDegraded:
		return activity.SeverityWarn
	default:
		return activity.SeverityInfo
	}
}

// fundingTick is the 60s funding-tracker loop: accrue funding per
// elapsed interval since the last tick.
func (m *Manager) fundingTick(ctx context.Context) {
	now := types.NowUTC()
	for _, tp := range m.snapshotTracked() {
		m.accrueFundingFor(ctx, tp, now)
	}
}

func (m *Manager) accrueFundingFor(ctx context.Context, tp *trackedPosition, now time.Time) {
	m.mu.Lock()
	pos := tp.pos
	longRate, okL := m.cache.FundingRate(pos.LongVenue, pos.Symbol)
	shortRate, okS := m.cache.FundingRate(pos.ShortVenue, pos.Symbol)
	if !okL || !okS {
		m.mu.Unlock()
		return
	}

	intervalHrs := longRate.FundingIntervalHrs
	if intervalHrs <= 0 {
		intervalHrs = 8
	}
	interval := time.Duration(intervalHrs) * time.Hour
	elapsed := now.Sub(tp.lastFundingAt)
	periods := int64(elapsed / interval)
	if periods <= 0 {
		m.mu.Unlock()
		return
	}

	pos.LongFundingRate = longRate.CurrentRate
	pos.ShortFundingRate = shortRate.CurrentRate
	receivedDelta, paidDelta := AccrueFunding(longRate.CurrentRate, shortRate.CurrentRate, pos.SizeUSD, periods)
	pos.FundingReceived = pos.FundingReceived.Add(receivedDelta)
	pos.FundingPaid = pos.FundingPaid.Add(paidDelta)
	pos.FundingPeriods += periods
	pos.TimeToNextFundingSeconds = int64(longRate.NextFundingTime.Sub(now).Seconds())
	tp.lastFundingAt = tp.lastFundingAt.Add(time.Duration(periods) * interval)

	positionID, symbol, opportunityID := pos.ID, pos.Symbol, tp.opportunityID
	sizeStr := pos.SizeUSD.String()
	netDelta := receivedDelta.Sub(paidDelta)
	shortVenue, shortRateStr := pos.ShortVenue, shortRate.CurrentRate.String()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.FundingAccrued.WithLabelValues(symbol, "received").Add(mustFloat(receivedDelta))
		m.metrics.FundingAccrued.WithLabelValues(symbol, "paid").Add(mustFloat(paidDelta))
	}

	if m.fundings != nil {
		_ = m.fundings.Append(ctx, persistence.FundingPaymentRow{
			PositionID:    positionID,
			Exchange:      shortVenue,
			Symbol:        symbol,
			FundingRate:   shortRateStr,
			PaymentAmount: netDelta.String(),
			PositionSize:  sizeStr,
			Timestamp:     now,
		})
	}
	m.recordInteraction(ctx, positionID, opportunityID, symbol, "funding_payment", "accrued",
		fmt.Sprintf("%s: funding accrued over %d period(s), net %s", symbol, periods, netDelta.String()),
		map[string]interface{}{"periods": periods, "net": netDelta.String()})
	m.publish(ctx, activity.PositionEvent{
		base:       activity.New(fmt.Sprintf("%s funding accrued: %s", symbol, netDelta.String()), activity.SeverityInfo),
		PositionID: positionID,
		Symbol:     symbol,
		Metric:     "funding_net",
		Observed:   mustFloat(netDelta),
	})
}

// priceTick is the 10s price-updater loop: refresh marks, recompute
// per-leg unrealized P&L, and persist.
func (m *Manager) priceTick(ctx context.Context) {
	for _, tp := range m.snapshotTracked() {
		m.updatePrices(ctx, tp)
	}
}

func (m *Manager) updatePrices(ctx context.Context, tp *trackedPosition) {
	m.mu.Lock()
	pos := tp.pos
	longQuote, okL := m.cache.Quote(pos.LongVenue, pos.Symbol)
	shortQuote, okS := m.cache.Quote(pos.ShortVenue, pos.Symbol)
	if !okL || !okS {
		m.mu.Unlock()
		return
	}

	pos.Long.CurrentPrice = longQuote.Mid()
	pos.Short.CurrentPrice = shortQuote.Mid()
	if longQuote.Mark != nil {
		pos.Long.MarkPrice = longQuote.Mark
	}
	if shortQuote.Mark != nil {
		pos.Short.MarkPrice = shortQuote.Mark
	}

	pos.Long.NotionalUSD = pos.Long.CurrentPrice.Mul(decimal.NewFromFloat(pos.Long.Quantity))
	pos.Short.NotionalUSD = pos.Short.CurrentPrice.Mul(decimal.NewFromFloat(pos.Short.Quantity))
	pos.Long.UnrealizedPnL = unrealizedLegPnL(pos.Long)
	pos.Short.UnrealizedPnL = unrealizedLegPnL(pos.Short)
	pos.UnrealizedPnL = pos.Long.UnrealizedPnL.Add(pos.Short.UnrealizedPnL)
	pos.CurrentPrice = pos.Long.CurrentPrice.Add(pos.Short.CurrentPrice).Div(decimal.NewFromInt(2))
	if !longQuote.Mid().IsZero() {
		pos.CurrentSpread = shortQuote.Mid().Sub(longQuote.Mid()).Div(longQuote.Mid())
	}

	longPrice, shortPrice := mustFloat(pos.Long.CurrentPrice), mustFloat(pos.Short.CurrentPrice)
	tp.longPrices = appendBounded(tp.longPrices, longPrice, maxCorrelationSamples)
	tp.shortPrices = appendBounded(tp.shortPrices, shortPrice, maxCorrelationSamples)
	m.forecaster.Record(pairKey(pos.Symbol, pos.LongVenue, pos.ShortVenue), types.NowUTC(), mustFloat(pos.CurrentSpread))

	row := toPositionRow(pos, tp.opportunityID)
	longLeg := toLegRow(pos.ID, pos.Symbol, "long", pos.Long, pos.LongVenue)
	shortLeg := toLegRow(pos.ID, pos.Symbol, "short", pos.Short, pos.ShortVenue)
	m.mu.Unlock()

	if m.positions != nil {
		_ = m.positions.Upsert(ctx, row)
		_ = m.positions.UpsertLeg(ctx, longLeg)
		_ = m.positions.UpsertLeg(ctx, shortLeg)
	}
}

func unrealizedLegPnL(l types.Leg) types.Money {
	diff := l.CurrentPrice.Sub(l.EntryPrice)
	pnl := diff.Mul(decimal.NewFromFloat(l.Quantity))
	if l.Side == "short" {
		pnl = pnl.Neg()
	}
	return pnl
}

func appendBounded(series []float64, v float64, max int) []float64 {
	series = append(series, v)
	if len(series) > max {
		series = series[len(series)-max:]
	}
	return series
}

func pairKey(symbol, longVenue, shortVenue string) string {
	return symbol + "|" + longVenue + "|" + shortVenue
}

// statePublishTick is the 30s state-publisher loop: broadcast the
// current position record.
func (m *Manager) statePublishTick(ctx context.Context) {
	for _, tp := range m.snapshotTracked() {
		m.mu.RLock()
		posCopy := *tp.pos
		m.mu.RUnlock()
		m.publishBus(ctx, bus.TopicPositionUpdated, posCopy)
	}
}

// correlationTick is the 30s correlation/rebalance loop: update rolling
// price correlation and leg drift, and trigger a rebalance request when
// spec §4.5's conditions hold.
func (m *Manager) correlationTick(ctx context.Context) {
	now := types.NowUTC()
	for _, tp := range m.snapshotTracked() {
		m.evaluateRebalance(ctx, tp, now)
	}
}

func (m *Manager) evaluateRebalance(ctx context.Context, tp *trackedPosition, now time.Time) {
	m.mu.Lock()
	pos := tp.pos
	pos.LegDriftPct = legDriftPct(pos.Long.Quantity, pos.Short.Quantity)
	pos.PriceCorrelation = correlation(tp.longPrices, tp.shortPrices)

	sinceLast := now.Sub(pos.OpenedAt)
	if tp.lastRebalance != nil {
		sinceLast = now.Sub(*tp.lastRebalance)
	}
	in := RebalanceInputs{
		LegDriftPct:            pos.LegDriftPct,
		SizeUSD:                mustFloat(pos.SizeUSD),
		TimeSinceLastRebalance: sinceLast,
		TimeToNextFundingSec:   pos.TimeToNextFundingSeconds,
	}
	trigger := ShouldRebalance(m.cfg, in)

	var positionID, symbol, opportunityID string
	var driftPct float64
	var rebalanceCount int
	if trigger {
		started := now
		tp.lastRebalance = &started
		pos.LastRebalance = &started
		pos.RebalanceCount++
		positionID, symbol, opportunityID = pos.ID, pos.Symbol, tp.opportunityID
		driftPct, rebalanceCount = pos.LegDriftPct, pos.RebalanceCount
	}
	m.mu.Unlock()

	if !trigger {
		return
	}

	if m.metrics != nil {
		m.metrics.Rebalances.WithLabelValues(symbol).Inc()
	}
	m.recordInteraction(ctx, positionID, opportunityID, symbol, "rebalance", "triggered",
		fmt.Sprintf("%s: leg drift %.2f%% triggered rebalance #%d", symbol, driftPct, rebalanceCount),
		map[string]interface{}{"leg_drift_pct": driftPct})
	m.publish(ctx, activity.PositionEvent{
		base:            activity.New(fmt.Sprintf("%s rebalance requested: drift %.2f%%", symbol, driftPct), activity.SeverityWarn),
		PositionID:      positionID,
		Symbol:          symbol,
		Metric:          "leg_drift_pct",
		Observed:        driftPct,
		Threshold:       m.cfg.MaxLegDriftThreshold,
		SuggestedAction: "rebalance",
	})
	m.publishBus(ctx, bus.TopicExecutionRequest, map[string]string{
		"position_id": positionID,
		"symbol":      symbol,
		"action":      "rebalance",
	})
}

func legDriftPct(longQty, shortQty float64) float64 {
	denom := longQty
	if shortQty > denom {
		denom = shortQty
	}
	diff := longQty - shortQty
	if diff < 0 {
		diff = -diff
	}
	return types.SafeDiv(diff, denom) * 100
}

// correlation is spec §4.5's "rolling price correlation", a plain
// Pearson coefficient over the two legs' recent mid-price series.
func correlation(longPrices, shortPrices []float64) float64 {
	n := len(longPrices)
	if len(shortPrices) < n {
		n = len(shortPrices)
	}
	if n < 2 {
		return 0
	}
	return stat.Correlation(longPrices[len(longPrices)-n:], shortPrices[len(shortPrices)-n:], nil)
}

func mustFloat(m types.Money) float64 {
	f, _ := m.Float64()
	return f
}

func toPositionRow(pos *types.Position, opportunityID string) persistence.PositionRow {
	return persistence.PositionRow{
		ID:                   pos.ID,
		OpportunityID:        opportunityID,
		Symbol:               pos.Symbol,
		Status:               string(pos.State),
		HealthStatus:         string(pos.Health),
		TotalCapitalDeployed: pos.SizeUSD.String(),
		FundingReceived:      pos.FundingReceived.String(),
		FundingPaid:          pos.FundingPaid.String(),
		UnrealizedPnL:        pos.UnrealizedPnL.String(),
		RealizedPnLFunding:   pos.FundingReceived.Sub(pos.FundingPaid).String(),
		RealizedPnLPrice:     types.Zero.String(),
		EntryCosts:           types.Zero.String(),
		OpenedAt:             pos.OpenedAt,
		ClosedAt:             pos.ClosedAt,
		ExitReason:           string(pos.ExitReason),
	}
}

func toLegRow(positionID, symbol, legType string, l types.Leg, exchange string) persistence.LegRow {
	return persistence.LegRow{
		PositionID:    positionID,
		LegType:       legType,
		Exchange:      exchange,
		Symbol:        symbol,
		Side:          l.Side,
		Quantity:      l.Quantity,
		EntryPrice:    l.EntryPrice.String(),
		CurrentPrice:  l.CurrentPrice.String(),
		NotionalUSD:   l.NotionalUSD.String(),
		UnrealizedPnL: l.UnrealizedPnL.String(),
	}
}

func (m *Manager) recordInteraction(ctx context.Context, positionID, opportunityID, symbol, interactionType, decision, narrative string, metrics map[string]interface{}) {
	if m.interactions == nil {
		return
	}
	_ = m.interactions.Append(ctx, persistence.InteractionRow{
		PositionID:      positionID,
		OpportunityID:   opportunityID,
		Symbol:          symbol,
		Timestamp:       types.NowUTC(),
		InteractionType: interactionType,
		Decision:        decision,
		Narrative:       narrative,
		Metrics:         metrics,
	})
}

// Forecast exposes the advisory spread forecast for an already-tracked
// pair, per spec §4.5: "Forecasting and mean-reversion (advisory, not
// gating)". Callers (the CLI, a future dashboard) must not use this to
// gate a trade or close decision.
func (m *Manager) Forecast(symbol, longVenue, shortVenue string, horizonHours float64) (ForecastResult, error) {
	return m.forecaster.Forecast(pairKey(symbol, longVenue, shortVenue), horizonHours)
}

// Seasonality exposes the advisory seasonality detector for a pair.
func (m *Manager) Seasonality(symbol, longVenue, shortVenue string) SeasonalityResult {
	return m.forecaster.DetectSeasonality(pairKey(symbol, longVenue, shortVenue))
}

// MeanReversionSignal exposes the advisory mean-reversion z-score for a pair.
func (m *Manager) MeanReversionSignal(symbol, longVenue, shortVenue string) MeanReversionSignal {
	return m.forecaster.MeanReversion(pairKey(symbol, longVenue, shortVenue))
}

func (m *Manager) publish(ctx context.Context, ev activity.Event) {
	if m.onEvent == nil {
		return
	}
	m.onEvent(ctx, ev)
}

func (m *Manager) publishBus(ctx context.Context, topic string, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		m.log.Error().Err(err).Str("topic", topic).Msg("marshal bus payload")
		return
	}
	if err := m.eventBus.Publish(ctx, topic, types.NewID(), data); err != nil {
		m.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}
