package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/metrics"
	"github.com/fundingarb/core/internal/persistence"
	"github.com/fundingarb/core/internal/risk"
	"github.com/fundingarb/core/internal/types"
	"github.com/fundingarb/core/internal/venue"
)

// ActivityPublisher mirrors the identically-shaped type in every other
// component package.
type ActivityPublisher func(ctx context.Context, ev activity.Event)

// trackedPair is a paired order set still being monitored for fills,
// keyed by its shared PairedOrderID. Per DESIGN.md's Open Question
// decision, only pollPair (driven by the single 5s pollTick loop in
// run.go) is allowed to transition either order out of PARTIAL.
type trackedPair struct {
	mu sync.Mutex

	allocationID string
	symbol       string
	longVenue    string
	shortVenue   string
	long         *types.Order
	short        *types.Order
	startedAt    time.Time
	synced       bool
}

// Coordinator is the Execution Coordinator (spec §4.4).
type Coordinator struct {
	cfg      config.ExecutionConfig
	venues   map[string]venue.Adapter
	breakers map[string]*risk.CircuitBreaker
	limiters map[string]*rate.Limiter
	risk     *risk.Controller
	audit    persistence.ExecutionAuditRepo
	eventBus bus.EventBus
	onEvent  ActivityPublisher
	metrics  *metrics.Registry
	log      zerolog.Logger

	running atomic.Bool

	mu   sync.Mutex
	open map[string]*trackedPair
}

// SetMetrics attaches a metrics registry; nil-safe if never called.
func (c *Coordinator) SetMetrics(m *metrics.Registry) {
	c.metrics = m
}

func (c *Coordinator) recordOutcome(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ExecutionOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Coordinator) recordFill(o *types.Order) {
	if c.metrics == nil {
		return
	}
	c.metrics.FillLatencyMs.WithLabelValues(o.Venue).Observe(float64(o.UpdatedAt.Sub(o.SubmittedAt).Milliseconds()))
	c.metrics.SlippagePct.WithLabelValues(o.Venue, string(o.Side)).Observe(o.SlippagePct)
}

// NewCoordinator wires one rate limiter and one circuit breaker per venue
// adapter, grounded on internal/risk.CircuitBreaker (itself grounded on
// infra/breakers) reused here to protect RPC calls instead of gating
// trade approval.
func NewCoordinator(
	cfg config.ExecutionConfig,
	venues map[string]venue.Adapter,
	riskCtl *risk.Controller,
	audit persistence.ExecutionAuditRepo,
	eventBus bus.EventBus,
	onEvent ActivityPublisher,
	log zerolog.Logger,
) *Coordinator {
	limiters := make(map[string]*rate.Limiter, len(venues))
	breakers := make(map[string]*risk.CircuitBreaker, len(venues))
	for name := range venues {
		limiters[name] = rate.NewLimiter(rate.Limit(cfg.VenueRequestsPerSecond), cfg.VenueRequestBurst)
		breakers[name] = risk.NewCircuitBreaker("venue:"+name, 3, time.Minute, 30*time.Second)
	}
	c := &Coordinator{
		cfg:      cfg,
		venues:   venues,
		breakers: breakers,
		limiters: limiters,
		risk:     riskCtl,
		audit:    audit,
		eventBus: eventBus,
		onEvent:  onEvent,
		log:      log.With().Str("component", "execution").Logger(),
		open:     make(map[string]*trackedPair),
	}
	c.running.Store(true)
	return c
}

// Shutdown stops Submit from accepting new requests; in-flight polling
// continues until Run's context is cancelled.
func (c *Coordinator) Shutdown() {
	c.running.Store(false)
}

// Submit implements spec §4.4's full request→outcome-matrix pipeline.
func (c *Coordinator) Submit(ctx context.Context, req Request) (Result, error) {
	if !c.running.Load() {
		return Result{Failed: true, Reason: "not running"}, ErrNotRunning
	}

	approval := c.risk.ValidateTrade(req.Symbol, req.LongVenue, req.ShortVenue, req.SizeUSD)
	if !approval.Approved {
		c.publish(ctx, activity.ExecutionEvent{
			base:         activity.New(fmt.Sprintf("%s execution pre-trade check rejected: %s", req.Symbol, approval.Reason), activity.SeverityWarn),
			AllocationID: req.AllocationID,
			Symbol:       req.Symbol,
		})
		return Result{Failed: true, Reason: approval.Reason}, nil
	}

	price, err := c.resolvePrice(ctx, req)
	if err != nil {
		return Result{Failed: true, Reason: err.Error()}, err
	}
	baseSize, err := c.resolveBaseSize(ctx, req, price)
	if err != nil {
		return Result{Failed: true, Reason: err.Error()}, err
	}

	pairedID := types.NewID()
	longOrder := &types.Order{
		ID: types.NewID(), Venue: req.LongVenue, Symbol: req.Symbol,
		Side: types.SideBuy, Type: types.OrderTypeMarket, Size: baseSize,
		ExpectedPrice: price, PairedOrderID: pairedID,
		State: types.OrderPending, SubmittedAt: types.NowUTC(),
	}
	shortOrder := &types.Order{
		ID: types.NewID(), Venue: req.ShortVenue, Symbol: req.Symbol,
		Side: types.SideSell, Type: types.OrderTypeMarket, Size: baseSize,
		ExpectedPrice: price, PairedOrderID: pairedID,
		State: types.OrderPending, SubmittedAt: types.NowUTC(),
	}

	c.submitLegs(ctx, longOrder, shortOrder)

	pair := &trackedPair{
		allocationID: req.AllocationID, symbol: req.Symbol,
		longVenue: req.LongVenue, shortVenue: req.ShortVenue,
		long: longOrder, short: shortOrder, startedAt: types.NowUTC(),
	}
	return c.resolveOutcome(ctx, pair)
}

// submitLegs fans the two leg submissions out concurrently, grounded on
// the teacher's circuit.Breaker.Call buffered-channel pattern, each leg
// wrapped in its own goroutine so a slow venue never blocks the other.
func (c *Coordinator) submitLegs(ctx context.Context, long, short *types.Order) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.submitOne(ctx, long) }()
	go func() { defer wg.Done(); c.submitOne(ctx, short) }()
	wg.Wait()
}

func (c *Coordinator) submitOne(ctx context.Context, o *types.Order) {
	side := o.Side
	result, err := c.placeOrder(ctx, o.Venue, venue.PlaceOrderRequest{
		Symbol: o.Symbol, Side: side, Size: o.Size, Type: o.Type, ReduceOnly: o.ReduceOnly,
	})
	o.UpdatedAt = types.NowUTC()
	if err != nil || !result.Success {
		o.State = types.OrderFailed
		if err != nil {
			o.Error = err.Error()
		} else {
			o.Error = result.Error
		}
		return
	}
	applyFill(o, result)
}

func applyFill(o *types.Order, result venue.PlaceOrderResult) {
	if result.AverageFill != nil {
		o.AvgFillPrice = *result.AverageFill
		o.SlippagePct = types.Slippage(o.Side, o.ExpectedPrice, o.AvgFillPrice)
	}
	if result.Fee != nil {
		o.Fee = *result.Fee
	}
	switch result.Status {
	case types.OrderFilled:
		o.State = types.OrderFilled
		o.FilledSize = o.Size
	case types.OrderPartial:
		o.State = types.OrderPartial
	default:
		o.State = types.OrderSubmitted
	}
}

// orderOK reports whether o's initial submission was accepted for
// tracking, per spec §4.4's outcome-matrix "OK" side.
func orderOK(o *types.Order) bool {
	return o.State != types.OrderFailed
}

// resolveOutcome dispatches spec §4.4's outcome matrix once both legs'
// initial submission has returned.
func (c *Coordinator) resolveOutcome(ctx context.Context, pair *trackedPair) (Result, error) {
	longOK, shortOK := orderOK(pair.long), orderOK(pair.short)

	switch {
	case longOK && shortOK:
		if pair.long.State == types.OrderFilled && pair.short.State == types.OrderFilled {
			c.recordOutcome("ok_ok")
			c.recordFill(pair.long)
			c.recordFill(pair.short)
			return c.openPosition(ctx, pair), nil
		}
		c.trackPair(pair)
		return Result{}, nil

	case longOK && !shortOK:
		c.recordOutcome("ok_fail")
		c.emergencyClose(ctx, pair.long, pair.longVenue)
		return c.executionFailed(ctx, pair, "short leg failed, long leg emergency-closed"), nil

	case !longOK && shortOK:
		c.recordOutcome("fail_ok")
		c.emergencyClose(ctx, pair.short, pair.shortVenue)
		return c.executionFailed(ctx, pair, "long leg failed, short leg emergency-closed"), nil

	default:
		c.recordOutcome("fail_fail")
		return c.executionFailed(ctx, pair, "both legs failed"), ErrBothLegsFailed
	}
}

func (c *Coordinator) trackPair(pair *trackedPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open[pair.long.PairedOrderID] = pair
}

// emergencyClose implements spec §4.4's single-leg-failure cleanup: a
// reduce-only market order on the opposite side, same size.
func (c *Coordinator) emergencyClose(ctx context.Context, filled *types.Order, venueName string) {
	opposite := types.SideSell
	if filled.Side == types.SideSell {
		opposite = types.SideBuy
	}
	result, err := c.placeOrder(ctx, venueName, venue.PlaceOrderRequest{
		Symbol: filled.Symbol, Side: opposite, Size: filled.FilledSize, Type: types.OrderTypeMarket, ReduceOnly: true,
	})
	sev := activity.SeverityError
	msg := fmt.Sprintf("%s emergency-close on %s", filled.Symbol, venueName)
	if err != nil || !result.Success {
		msg = fmt.Sprintf("%s emergency-close FAILED on %s", filled.Symbol, venueName)
	}
	c.publish(ctx, activity.ExecutionEvent{
		base: activity.New(msg, sev), OrderID: filled.ID, Venue: venueName,
		Symbol: filled.Symbol, Side: string(opposite), Quantity: filled.FilledSize,
	})
	c.appendAudit(ctx, "emergency_close", filled, venueName, msg)
}

func (c *Coordinator) executionFailed(ctx context.Context, pair *trackedPair, reason string) Result {
	c.publish(ctx, activity.ExecutionEvent{
		base:         activity.New(fmt.Sprintf("%s execution failed: %s", pair.symbol, reason), activity.SeverityError),
		AllocationID: pair.allocationID, Symbol: pair.symbol,
	})
	c.publishBus(ctx, bus.TopicExecutionResult, map[string]string{
		"allocation_id": pair.allocationID, "symbol": pair.symbol, "status": "failed", "reason": reason,
	})
	return Result{Failed: true, Reason: reason}
}

// openPosition builds the Position record spec §4.4 calls for on an
// OK/OK outcome and publishes position.opened.
func (c *Coordinator) openPosition(ctx context.Context, pair *trackedPair) Result {
	now := types.NowUTC()
	longPrice := fillPrice(pair.long)
	shortPrice := fillPrice(pair.short)

	entrySpread := types.Zero
	if !longPrice.IsZero() {
		entrySpread = shortPrice.Sub(longPrice).Div(longPrice)
	}

	pos := &types.Position{
		ID: types.NewID(), Symbol: pair.symbol,
		LongVenue: pair.longVenue, ShortVenue: pair.shortVenue,
		SizeUSD: longPrice.Mul(decimal.NewFromFloat(pair.long.FilledSize)),
		Long: types.Leg{
			Venue: pair.longVenue, Side: "long", Quantity: pair.long.FilledSize,
			EntryPrice: longPrice, CurrentPrice: longPrice,
			NotionalUSD: longPrice.Mul(decimal.NewFromFloat(pair.long.FilledSize)),
		},
		Short: types.Leg{
			Venue: pair.shortVenue, Side: "short", Quantity: pair.short.FilledSize,
			EntryPrice: shortPrice, CurrentPrice: shortPrice,
			NotionalUSD: shortPrice.Mul(decimal.NewFromFloat(pair.short.FilledSize)),
		},
		EntryPrice: longPrice.Add(shortPrice).Div(decimal.NewFromInt(2)),
		CurrentPrice: longPrice.Add(shortPrice).Div(decimal.NewFromInt(2)),
		EntrySpread: entrySpread, CurrentSpread: entrySpread,
		State: types.PositionActive, Health: types.HealthHealthy,
		OpenedAt: now,
	}

	c.publish(ctx, activity.ExecutionEvent{
		base:         activity.New(fmt.Sprintf("%s both legs filled, position opened", pair.symbol), activity.SeverityInfo),
		AllocationID: pair.allocationID, Symbol: pair.symbol,
	})
	c.publishBus(ctx, bus.TopicPositionOpened, map[string]interface{}{
		"position": pos, "allocation_id": pair.allocationID,
	})
	c.appendAudit(ctx, "position_opened", pair.long, pair.longVenue, "both legs filled")
	return Result{Position: pos}
}

func fillPrice(o *types.Order) types.Money {
	if !o.AvgFillPrice.IsZero() {
		return o.AvgFillPrice
	}
	return o.ExpectedPrice
}

func (c *Coordinator) appendAudit(ctx context.Context, eventType string, o *types.Order, venueName, msg string) {
	if c.audit == nil {
		return
	}
	_ = c.audit.Append(ctx, persistence.ExecutionEventRow{
		EventType: eventType, Service: "execution", Exchange: venueName,
		Symbol: o.Symbol, OrderID: o.ID, Side: string(o.Side), Quantity: o.FilledSize,
		Price: o.AvgFillPrice.String(), Level: "info", Message: msg, Timestamp: types.NowUTC(),
	})
}

func (c *Coordinator) publish(ctx context.Context, ev activity.Event) {
	if c.onEvent == nil {
		return
	}
	c.onEvent(ctx, ev)
}

func (c *Coordinator) publishBus(ctx context.Context, topic string, payload interface{}) {
	if c.eventBus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("marshal bus payload")
		return
	}
	if err := c.eventBus.Publish(ctx, topic, types.NewID(), data); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
	}
}
