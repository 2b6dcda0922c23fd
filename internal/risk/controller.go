// Package risk implements the Risk Controller (spec §4.6): the
// system-wide exposure ledger, trade gate and circuit breaker that every
// other component defers to before committing capital. Grounded on the
// teacher's infra/breakers (circuit breaker shape) and the pack's
// aristath-sentinel/trader risk formulas (VaR/CVaR, volatility regime).
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/metrics"
	"github.com/fundingarb/core/internal/types"
)

// ActivityPublisher receives activity events. A thin indirection in
// front of the bus so the controller never needs to know the wire
// encoding, matching the pattern activity.Event sits behind elsewhere.
type ActivityPublisher func(ctx context.Context, ev activity.Event)

// PnLSampleInterval and VaRWindow match spec §4.6: "Record P&L snapshots
// every 5 min (up to 252)" — 252 samples at 5-minute spacing is 21 hours
// of history; the count mirrors the 252-trading-day
// convention the pack's formulas packages use for annualization.
const (
	PnLSampleInterval = 5 * time.Minute
	VaRWindow         = 252
	SnapshotInterval  = 10 * time.Second
)

// Controller owns the live RiskSnapshot and gates every trade.
type Controller struct {
	mu  sync.RWMutex
	cfg config.RiskConfig
	log zerolog.Logger

	snap types.RiskSnapshot

	returns       []float64 // trailing P&L snapshots, newest last, capped at VaRWindow
	baseLimits    config.RiskConfig
	baseCaptured  bool
	breaker       manualBreaker

	bus       bus.EventBus
	publishFn ActivityPublisher
	metrics   *metrics.Registry
}

// SetMetrics attaches a metrics registry; nil-safe if never called.
func (c *Controller) SetMetrics(m *metrics.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

func (c *Controller) recordExposureLocked() {
	if c.metrics == nil {
		return
	}
	capitalF, _ := c.snap.TotalCapital.Float64()
	exposureF, _ := c.snap.TotalExposure.Float64()
	gross := types.SafeDiv(exposureF, capitalF)
	c.metrics.GrossExposurePct.Set(gross)
	c.metrics.NetExposurePct.Set(gross)
	for venueName, exp := range c.snap.VenueExposure {
		f, _ := exp.Float64()
		c.metrics.VenueExposureUSD.WithLabelValues(venueName).Set(f)
	}
	if c.breaker.active {
		c.metrics.CircuitBreakerOpen.Set(1)
	} else {
		c.metrics.CircuitBreakerOpen.Set(0)
	}
	c.metrics.RiskMode.Set(metrics.RiskModeValue(string(c.snap.Mode)))
}

// NewController constructs a Risk Controller with zero exposure and
// RegimeNormal, deferring base-limit capture to the first RecordPnLSnapshot call.
func NewController(cfg config.RiskConfig, eventBus bus.EventBus, publish ActivityPublisher, log zerolog.Logger) *Controller {
	return &Controller{
		cfg: cfg,
		log: log.With().Str("component", "risk").Logger(),
		snap: types.RiskSnapshot{
			VenueExposure:  make(map[string]types.Money),
			SymbolExposure: make(map[string]types.Money),
			Mode:           types.ModeStandard,
			VolatilityRegime: types.RegimeNormal,
			UpdatedAt:      types.NowUTC(),
		},
		bus:       eventBus,
		publishFn: publish,
	}
}

// SetTotalCapital updates available trading capital, the denominator for
// every percentage-based cap.
func (c *Controller) SetTotalCapital(capital types.Money) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.TotalCapital = capital
}

// Snapshot returns a copy of the current RiskSnapshot.
func (c *Controller) Snapshot() types.RiskSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.snap
	out.VenueExposure = cloneMoneyMap(c.snap.VenueExposure)
	out.SymbolExposure = cloneMoneyMap(c.snap.SymbolExposure)
	return out
}

func cloneMoneyMap(in map[string]types.Money) map[string]types.Money {
	out := make(map[string]types.Money, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RecomputeExposure rebuilds total/venue/symbol exposure from the
// currently active positions. Called on every position event per
// spec §4.6.
func (c *Controller) RecomputeExposure(positions []types.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := types.Zero
	venueExp := make(map[string]types.Money)
	symbolExp := make(map[string]types.Money)

	for _, p := range positions {
		if p.State == types.PositionClosed {
			continue
		}
		total = total.Add(p.SizeUSD)
		venueExp[p.LongVenue] = venueExp[p.LongVenue].Add(p.SizeUSD)
		venueExp[p.ShortVenue] = venueExp[p.ShortVenue].Add(p.SizeUSD)
		symbolExp[p.Symbol] = symbolExp[p.Symbol].Add(p.SizeUSD)
	}

	defer c.recordExposureLocked()

	c.snap.TotalExposure = total
	c.snap.VenueExposure = venueExp
	c.snap.SymbolExposure = symbolExp
	c.snap.UpdatedAt = types.NowUTC()
}

// ValidateTrade implements spec §4.6's validate_trade, evaluating checks
// in order and returning the first hard rejection. max-allowed-size is
// the minimum of every applicable cap minus current utilization; the
// per-symbol cap is a warning only and never reduces it.
func (c *Controller) ValidateTrade(symbol, longVenue, shortVenue string, size types.Money) types.TradeApproval {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.breaker.active {
		return types.TradeApproval{Approved: false, MaxAllowedSize: types.Zero, Reason: "circuit breaker active"}
	}
	if c.snap.Mode == types.ModeEmergency {
		return types.TradeApproval{Approved: false, MaxAllowedSize: types.Zero, Reason: "risk mode is emergency"}
	}

	capital := c.snap.TotalCapital
	maxPositionUSD := decimal.NewFromFloat(c.cfg.MaxPositionSizeUSD)
	maxPositionPct := capital.Mul(decimal.NewFromFloat(c.cfg.MaxPositionPct))

	grossCapUSD := capital.Mul(decimal.NewFromFloat(c.cfg.MaxGrossExposurePct))
	grossRoom := grossCapUSD.Sub(c.snap.TotalExposure)

	venueCapUSD := capital.Mul(decimal.NewFromFloat(c.cfg.MaxVenueExposurePct))
	longRoom := venueCapUSD.Sub(c.snap.VenueExposure[longVenue])
	shortRoom := venueCapUSD.Sub(c.snap.VenueExposure[shortVenue])

	maxAllowed := minMoney(maxPositionUSD, maxPositionPct, grossRoom, longRoom, shortRoom)
	if maxAllowed.IsNegative() {
		maxAllowed = types.Zero
	}

	var warnings []string
	assetCapUSD := capital.Mul(decimal.NewFromFloat(c.cfg.MaxAssetExposurePct))
	projectedAsset := c.snap.SymbolExposure[symbol].Add(size)
	if projectedAsset.GreaterThan(assetCapUSD) {
		warnings = append(warnings, fmt.Sprintf("symbol exposure %s would exceed max-asset-pct cap", symbol))
	}

	if size.GreaterThan(maxAllowed) {
		return types.TradeApproval{
			Approved:       false,
			MaxAllowedSize: maxAllowed,
			Reason:         "requested size exceeds available risk capacity",
			Warnings:       warnings,
		}
	}

	return types.TradeApproval{
		Approved:       true,
		MaxAllowedSize: maxAllowed,
		Warnings:       warnings,
	}
}

func minMoney(values ...types.Money) types.Money {
	m := values[0]
	for _, v := range values[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}

// RecordEquity updates the peak-equity high-water-mark and drawdown.
// Warnings fire at 75% of max-drawdown; at max-drawdown the circuit
// breaker activates.
func (c *Controller) RecordEquity(ctx context.Context, currentEquity types.Money) {
	c.mu.Lock()

	if c.snap.PeakEquity.IsZero() || currentEquity.GreaterThan(c.snap.PeakEquity) {
		c.snap.PeakEquity = currentEquity
	}

	var drawdown float64
	if !c.snap.PeakEquity.IsZero() {
		dd := c.snap.PeakEquity.Sub(currentEquity).Div(c.snap.PeakEquity)
		drawdown, _ = dd.Float64()
	}
	c.snap.DrawdownPct = drawdown
	c.snap.UpdatedAt = types.NowUTC()

	warnThreshold := c.cfg.MaxDrawdownPct * 0.75
	shouldTrip := drawdown >= c.cfg.MaxDrawdownPct
	shouldWarn := drawdown >= warnThreshold && !shouldTrip
	priorMode := string(c.snap.Mode)

	if shouldTrip {
		c.tripLocked("max drawdown breached", priorMode)
	}
	c.mu.Unlock()

	if shouldTrip {
		c.publish(ctx, activity.RiskEvent{
			base:      activity.New(fmt.Sprintf("circuit breaker tripped: drawdown %.2f%% >= max %.2f%%", drawdown*100, c.cfg.MaxDrawdownPct*100), activity.SeverityError),
			Rule:      "max_drawdown",
			Observed:  drawdown,
			Threshold: c.cfg.MaxDrawdownPct,
			ModeAfter: string(types.ModeEmergency),
		})
		c.publishSnapshot(ctx, bus.TopicRiskCircuitBreaker)
	} else if shouldWarn {
		c.publish(ctx, activity.RiskEvent{
			base:      activity.New(fmt.Sprintf("drawdown warning: %.2f%% >= 75%% of max %.2f%%", drawdown*100, c.cfg.MaxDrawdownPct*100), activity.SeverityWarn),
			Rule:      "drawdown_warning",
			Observed:  drawdown,
			Threshold: warnThreshold,
			ModeAfter: string(c.snap.Mode),
		})
	}
}

func (c *Controller) tripLocked(reason, priorMode string) {
	if c.breaker.active {
		return
	}
	c.breaker.trip(reason, priorMode)
	c.snap.CircuitBreakerActive = true
	c.snap.Mode = types.ModeEmergency
	c.recordExposureLocked()
}

// TripCircuitBreaker allows a caller outside the drawdown path (e.g. a
// fatal-infra detector per spec §7) to force the breaker open.
func (c *Controller) TripCircuitBreaker(ctx context.Context, reason string) {
	c.mu.Lock()
	priorMode := string(c.snap.Mode)
	c.tripLocked(reason, priorMode)
	c.mu.Unlock()
	c.publish(ctx, activity.RiskEvent{
		base:      activity.New("circuit breaker tripped: "+reason, activity.SeverityError),
		Rule:      "manual_or_infra_trip",
		ModeAfter: string(types.ModeEmergency),
	})
	c.publishSnapshot(ctx, bus.TopicRiskCircuitBreaker)
}

// ResetCircuitBreaker clears the breaker and restores the mode that was
// active before it tripped. Returns ErrNotTripped if it was not active.
func (c *Controller) ResetCircuitBreaker(ctx context.Context) error {
	c.mu.Lock()
	priorMode, ok := c.breaker.reset()
	if !ok {
		c.mu.Unlock()
		return ErrNotTripped
	}
	c.snap.CircuitBreakerActive = false
	if priorMode != "" {
		c.snap.Mode = types.RiskMode(priorMode)
	} else {
		c.snap.Mode = types.ModeStandard
	}
	mode := c.snap.Mode
	c.recordExposureLocked()
	c.mu.Unlock()

	c.publish(ctx, activity.RiskEvent{
		base:      activity.New("circuit breaker reset by operator", activity.SeverityInfo),
		Rule:      "manual_reset",
		ModeAfter: string(mode),
	})
	c.publishSnapshot(ctx, bus.TopicRiskStateUpdated)
	return nil
}

// RecordPnLSnapshot appends a return observation (fractional, relative
// to capital) to the trailing VaR/CVaR window, recomputes VaR/CVaR and
// the volatility regime, and rescales limits accordingly. Called every
// PnLSampleInterval by the owning loop.
func (c *Controller) RecordPnLSnapshot(ctx context.Context, fractionalReturn float64) {
	c.mu.Lock()

	c.returns = append(c.returns, fractionalReturn)
	if len(c.returns) > VaRWindow {
		c.returns = c.returns[len(c.returns)-VaRWindow:]
	}

	if !c.baseCaptured {
		c.baseLimits = c.cfg
		c.baseCaptured = true
	}

	var95, cvar95 := historicalVaRCVaR(c.returns, 0.95)
	var99, cvar99 := historicalVaRCVaR(c.returns, 0.99)
	exposure := c.snap.TotalExposure
	c.snap.VaR95 = exposure.Mul(decimal.NewFromFloat(var95))
	c.snap.VaR99 = exposure.Mul(decimal.NewFromFloat(var99))
	c.snap.CVaR95 = exposure.Mul(decimal.NewFromFloat(cvar95))
	c.snap.CVaR99 = exposure.Mul(decimal.NewFromFloat(cvar99))
	if c.metrics != nil {
		c.metrics.VaRPct.Set(var99)
		c.metrics.CVaRPct.Set(cvar99)
	}

	vol := sampleVolatility(c.returns)
	c.snap.VolatilityEstimate = vol

	regime := types.RegimeNormal
	switch {
	case vol >= c.cfg.HighVolThreshold:
		regime = types.RegimeHigh
	case vol <= c.cfg.LowVolThreshold:
		regime = types.RegimeLow
	}
	regimeChanged := regime != c.snap.VolatilityRegime
	c.snap.VolatilityRegime = regime
	c.applyRegimeScalingLocked(regime)
	c.snap.UpdatedAt = types.NowUTC()
	c.mu.Unlock()

	if regimeChanged {
		c.publish(ctx, activity.RiskEvent{
			base:      activity.New(fmt.Sprintf("volatility regime changed to %s (stddev=%.4f)", regime, vol), activity.SeverityInfo),
			Rule:      "volatility_regime",
			Observed:  vol,
			ModeAfter: string(c.snap.Mode),
		})
	}
}

// applyRegimeScalingLocked scales the live RiskConfig limits from the
// captured base limits per spec §4.6: high regime scales
// max-position-USD/pct by 0.5 and max-gross-pct by 0.6; low regime
// scales by 1.2/1.1/1.0; normal restores base limits. Caller holds c.mu.
func (c *Controller) applyRegimeScalingLocked(regime types.VolatilityRegime) {
	base := c.baseLimits
	switch regime {
	case types.RegimeHigh:
		c.cfg.MaxPositionSizeUSD = base.MaxPositionSizeUSD * 0.5
		c.cfg.MaxPositionPct = base.MaxPositionPct * 0.5
		c.cfg.MaxGrossExposurePct = base.MaxGrossExposurePct * 0.6
	case types.RegimeLow:
		c.cfg.MaxPositionSizeUSD = base.MaxPositionSizeUSD * 1.2
		c.cfg.MaxPositionPct = base.MaxPositionPct * 1.1
		c.cfg.MaxGrossExposurePct = base.MaxGrossExposurePct * 1.0
	default:
		c.cfg.MaxPositionSizeUSD = base.MaxPositionSizeUSD
		c.cfg.MaxPositionPct = base.MaxPositionPct
		c.cfg.MaxGrossExposurePct = base.MaxGrossExposurePct
	}
}

// Run periodically publishes the live RiskSnapshot to risk.state_updated,
// per spec §4.6's "Periodically (>=10s) publish the snapshot." It exits
// when ctx is cancelled. An uncaught panic recovery is deliberately not
// installed here: the loop body cannot panic (map/decimal reads only),
// matching spec §7's "an uncaught exception ... must not kill the loop"
// guidance applying to handlers that call into adapter code, not this one.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Snapshot()
			payload, err := json.Marshal(snap)
			if err != nil {
				c.log.Error().Err(err).Msg("marshal risk snapshot")
				continue
			}
			c.publishBus(ctx, bus.TopicRiskStateUpdated, payload)
		}
	}
}

func (c *Controller) publish(ctx context.Context, ev activity.Event) {
	if c.publishFn == nil {
		return
	}
	c.publishFn(ctx, ev)
}

func (c *Controller) publishSnapshot(ctx context.Context, topic string) {
	snap := c.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		c.log.Error().Err(err).Msg("marshal risk snapshot")
		return
	}
	c.publishBus(ctx, topic, payload)
}

func (c *Controller) publishBus(ctx context.Context, topic string, payload []byte) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, topic, types.NewID(), payload); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("risk snapshot publish failed")
	}
}
