package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/types"
	"github.com/fundingarb/core/internal/venue"
)

// Run drives the partial-fill polling loop (spec §4.4: "poll every
// PartialFillPollSec until FILLED, hedge-adjusted or cancelled") until ctx
// is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	interval := time.Duration(c.cfg.PartialFillPollSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.pollTick(ctx)
		}
	}
}

func (c *Coordinator) pollTick(ctx context.Context) {
	c.mu.Lock()
	pairs := make([]*trackedPair, 0, len(c.open))
	for _, p := range c.open {
		pairs = append(pairs, p)
	}
	c.mu.Unlock()

	for _, p := range pairs {
		c.pollPair(ctx, p)
	}
}

// pollPair refreshes both legs' fill state and applies spec §4.4's
// three fill-ratio branches. Only this loop may transition a PARTIAL
// order out of PARTIAL, per this package's single-writer design.
func (c *Coordinator) pollPair(ctx context.Context, pair *trackedPair) {
	pair.mu.Lock()
	defer pair.mu.Unlock()

	c.refreshLeg(ctx, pair.long)
	c.refreshLeg(ctx, pair.short)

	if pair.long.State == types.OrderFilled && pair.short.State == types.OrderFilled {
		c.finishPair(ctx, pair)
		return
	}

	age := time.Since(pair.startedAt)
	minRatio := minFillRatio(pair.long, pair.short)

	switch {
	case minRatio >= c.cfg.FillRatioThreshold:
		c.finishPair(ctx, pair)

	case minRatio >= c.cfg.HedgeAdjustRatio && age > time.Duration(c.cfg.StaleAgeSeconds)*time.Second:
		c.hedgeAdjust(ctx, pair)

	case age > time.Duration(c.cfg.MaxAgeSeconds)*time.Second:
		c.abandonPair(ctx, pair)
	}
}

func minFillRatio(long, short *types.Order) float64 {
	lr, sr := long.FillRatio(), short.FillRatio()
	if lr < sr {
		return lr
	}
	return sr
}

func (c *Coordinator) refreshLeg(ctx context.Context, o *types.Order) {
	if o.State == types.OrderFilled || o.State == types.OrderFailed || o.State == types.OrderCancelled {
		return
	}
	orders, err := c.getOrders(ctx, o.Venue, o.Symbol)
	if err != nil {
		c.log.Warn().Err(err).Str("venue", o.Venue).Str("order_id", o.ID).Msg("refresh leg failed")
		return
	}
	for _, live := range orders {
		if live.ID == o.ID || live.PairedOrderID == o.PairedOrderID && live.Venue == o.Venue && live.Side == o.Side {
			o.State = live.State
			o.FilledSize = live.FilledSize
			o.AvgFillPrice = live.AvgFillPrice
			o.UpdatedAt = types.NowUTC()
			return
		}
	}
}

// finishPair closes out tracking once both legs have cleared the fill
// threshold and runs the post-settlement leg-sync check, per spec §4.4.
func (c *Coordinator) finishPair(ctx context.Context, pair *trackedPair) {
	c.untrack(pair)
	if !pair.synced {
		pair.synced = true
		c.checkLegSync(ctx, pair)
	}
	c.recordOutcome("ok_ok")
	c.recordFill(pair.long)
	c.recordFill(pair.short)
	c.openPosition(ctx, pair)
}

func (c *Coordinator) untrack(pair *trackedPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open, pair.long.PairedOrderID)
}

// checkLegSync applies spec §4.4's post-settlement sync check: sync-ratio
// = min(longFilled,shortFilled)/max(longFilled,shortFilled); if it falls
// below 1-tolerance, a reduce-only correction order for the excess amount
// is placed on the larger leg, trimming it down to match the smaller one.
func (c *Coordinator) checkLegSync(ctx context.Context, pair *trackedPair) {
	longFilled, shortFilled := pair.long.FilledSize, pair.short.FilledSize
	maxFilled := longFilled
	if shortFilled > maxFilled {
		maxFilled = shortFilled
	}
	if maxFilled == 0 {
		return
	}
	minFilled := longFilled
	if shortFilled < minFilled {
		minFilled = shortFilled
	}
	syncRatio := types.SafeDiv(minFilled, maxFilled)
	if syncRatio >= 1-c.cfg.LegSyncTolerance {
		return
	}

	deficit := maxFilled - minFilled
	over, venueName := pair.long, pair.longVenue
	if shortFilled > longFilled {
		over, venueName = pair.short, pair.shortVenue
	}
	opposite := types.SideSell
	if over.Side == types.SideSell {
		opposite = types.SideBuy
	}

	result, err := c.placeOrder(ctx, venueName, venue.PlaceOrderRequest{
		Symbol: over.Symbol, Side: opposite, Size: deficit, Type: types.OrderTypeMarket, ReduceOnly: true,
	})
	msg := fmt.Sprintf("%s leg-sync correction on %s: ratio=%.4f deficit=%.6f", pair.symbol, venueName, syncRatio, deficit)
	sev := activity.SeverityWarn
	if err != nil || !result.Success {
		sev = activity.SeverityError
		msg = fmt.Sprintf("%s leg-sync correction FAILED on %s: %v", pair.symbol, venueName, err)
	} else {
		over.FilledSize = minFilled
		if c.metrics != nil {
			c.metrics.LegSyncCorrections.WithLabelValues(pair.symbol).Inc()
		}
	}
	c.publish(ctx, activity.ExecutionEvent{
		base: activity.New(msg, sev), OrderID: over.ID, Venue: venueName,
		Symbol: pair.symbol, Side: string(opposite), Quantity: deficit,
	})
	c.appendAudit(ctx, "leg_sync_correction", over, venueName, msg)
}

// hedgeAdjust implements spec §4.4's stale-partial branch: cancel the
// under-filled leg's remainder, then resubmit a reduce-only correction on
// the over-filled ("paired") leg at the under-filled leg's actual filled
// size — e.g. long fills 100% in 2s, short stalls at 60% past stale-age:
// the short's unfilled remainder is cancelled, long's excess 40% is reduce-only
// closed, and the position continues at 60% of the requested size.
func (c *Coordinator) hedgeAdjust(ctx context.Context, pair *trackedPair) {
	over, under, overVenue := pair.long, pair.short, pair.longVenue
	if pair.short.FilledSize > pair.long.FilledSize {
		over, under, overVenue = pair.short, pair.long, pair.shortVenue
	}

	c.cancelRemainder(ctx, under)

	deficit := over.FilledSize - under.FilledSize
	if deficit <= 0 {
		c.abandonPair(ctx, pair)
		return
	}

	opposite := types.SideSell
	if over.Side == types.SideSell {
		opposite = types.SideBuy
	}
	result, err := c.placeOrder(ctx, overVenue, venue.PlaceOrderRequest{
		Symbol: over.Symbol, Side: opposite, Size: deficit, Type: types.OrderTypeMarket, ReduceOnly: true,
	})
	msg := fmt.Sprintf("%s hedge-adjust: resubmitting %s at filled size %.6f", pair.symbol, overVenue, under.FilledSize)
	sev := activity.SeverityWarn
	if err != nil || !result.Success {
		sev = activity.SeverityError
		msg = fmt.Sprintf("%s hedge-adjust FAILED on %s: %v", pair.symbol, overVenue, err)
		c.publish(ctx, activity.ExecutionEvent{
			base: activity.New(msg, sev), OrderID: over.ID, Venue: overVenue,
			Symbol: pair.symbol, Side: string(opposite), Quantity: deficit,
		})
		c.appendAudit(ctx, "hedge_adjust", over, overVenue, msg)
		c.abandonPair(ctx, pair)
		return
	}

	over.FilledSize = under.FilledSize
	over.State = types.OrderFilled
	under.State = types.OrderFilled
	c.publish(ctx, activity.ExecutionEvent{
		base: activity.New(msg, sev), OrderID: over.ID, Venue: overVenue,
		Symbol: pair.symbol, Side: string(opposite), Quantity: deficit,
	})
	c.appendAudit(ctx, "hedge_adjust", over, overVenue, msg)

	pair.synced = true
	c.finishPair(ctx, pair)
}

func (c *Coordinator) cancelRemainder(ctx context.Context, o *types.Order) {
	if o.State == types.OrderFilled {
		return
	}
	if _, err := c.cancelOrder(ctx, o.Venue, o.ID); err != nil {
		c.log.Warn().Err(err).Str("order_id", o.ID).Msg("cancel remainder failed")
	}
}

// abandonPair implements spec §4.4's max-age branch: cancel whatever is
// unfilled and reduce-only-close whatever did fill on both venues.
func (c *Coordinator) abandonPair(ctx context.Context, pair *trackedPair) {
	c.untrack(pair)
	c.cancelRemainder(ctx, pair.long)
	c.cancelRemainder(ctx, pair.short)

	if pair.long.FilledSize > 0 {
		c.emergencyClose(ctx, pair.long, pair.longVenue)
	}
	if pair.short.FilledSize > 0 {
		c.emergencyClose(ctx, pair.short, pair.shortVenue)
	}
	c.executionFailed(ctx, pair, "partial fill exceeded max age, unwound")
}

// CloseRequest implements spec §4.4's close protocol: fetch each venue's
// live position, submit a reduce-only market order for its actual open
// size, and publish position.closed with realized P&L.
func (c *Coordinator) CloseRequest(ctx context.Context, req CloseReq) (CloseResult, error) {
	longPos, err := c.findVenuePosition(ctx, req.LongVenue, req.Symbol)
	if err != nil {
		return CloseResult{}, err
	}
	shortPos, err := c.findVenuePosition(ctx, req.ShortVenue, req.Symbol)
	if err != nil {
		return CloseResult{}, err
	}

	realized := types.Zero
	if longPos != nil {
		res, err := c.closeLeg(ctx, req.LongVenue, *longPos)
		if err == nil {
			realized = realized.Add(res)
		}
	}
	if shortPos != nil {
		res, err := c.closeLeg(ctx, req.ShortVenue, *shortPos)
		if err == nil {
			realized = realized.Add(res)
		}
	}

	result := CloseResult{PositionID: req.PositionID, RealizedPnL: realized, ClosedAt: types.NowUTC()}
	c.publish(ctx, activity.ExecutionEvent{
		base:   activity.New(fmt.Sprintf("%s position closed: %s, realized P&L %s", req.Symbol, req.Reason, realized.String()), activity.SeverityInfo),
		Symbol: req.Symbol,
	})
	c.publishBus(ctx, bus.TopicPositionClosed, map[string]interface{}{
		"position_id": req.PositionID, "realized_pnl": realized.String(), "reason": req.Reason,
	})
	return result, nil
}

func (c *Coordinator) findVenuePosition(ctx context.Context, venueName, symbol string) (*venue.VenuePosition, error) {
	positions, err := c.getPositions(ctx, venueName)
	if err != nil {
		return nil, fmt.Errorf("fetch %s positions: %w", venueName, err)
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return &p, nil
		}
	}
	return nil, nil
}

// closeLeg submits a reduce-only market order for p's actual open size
// and returns its realized P&L contribution.
func (c *Coordinator) closeLeg(ctx context.Context, venueName string, p venue.VenuePosition) (types.Money, error) {
	if p.Quantity == 0 {
		return types.Zero, nil
	}
	opposite := types.SideSell
	if p.Side == types.SideSell {
		opposite = types.SideBuy
	}
	result, err := c.placeOrder(ctx, venueName, venue.PlaceOrderRequest{
		Symbol: p.Symbol, Side: opposite, Size: p.Quantity, Type: types.OrderTypeMarket, ReduceOnly: true,
	})
	if err != nil || !result.Success {
		return types.Zero, fmt.Errorf("close leg on %s: %w", venueName, err)
	}
	if result.AverageFill == nil {
		return types.Zero, nil
	}
	exitPrice := *result.AverageFill
	qty := decimal.NewFromFloat(p.Quantity)
	if p.Side == types.SideBuy {
		return exitPrice.Sub(p.EntryPrice).Mul(qty), nil
	}
	return p.EntryPrice.Sub(exitPrice).Mul(qty), nil
}
