package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/types"
)

// resolvePrice fetches the current price from the long venue, falling
// back to the short venue on error, per spec §4.4's "fetch current price
// from long-venue (fall back to short-venue)".
func (c *Coordinator) resolvePrice(ctx context.Context, req Request) (types.Money, error) {
	price, err := c.getTicker(ctx, req.LongVenue, req.Symbol)
	if err == nil {
		return price, nil
	}
	c.log.Warn().Err(err).Str("venue", req.LongVenue).Str("symbol", req.Symbol).Msg("ticker fetch failed, falling back to short venue")
	price, err = c.getTicker(ctx, req.ShortVenue, req.Symbol)
	if err != nil {
		return types.Zero, fmt.Errorf("%w: both venues failed: %v", ErrPriceUnavailable, err)
	}
	return price, nil
}

// resolveBaseSize computes the base-asset quantity for both legs and
// enforces spec §4.4's minimum-order-size abort rule: "if required
// minimum's notional exceeds 2×requested size, abort; otherwise round up."
func (c *Coordinator) resolveBaseSize(ctx context.Context, req Request, price types.Money) (float64, error) {
	requested := req.SizeUSD.Div(price)
	requestedF, _ := requested.Float64()

	longMin, err := c.getMinOrderSize(ctx, req.LongVenue, req.Symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: long venue min order size: %v", ErrMinOrderSizeUnavailable, err)
	}
	shortMin, err := c.getMinOrderSize(ctx, req.ShortVenue, req.Symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: short venue min order size: %v", ErrMinOrderSizeUnavailable, err)
	}

	floorSize := longMin
	if shortMin.GreaterThan(floorSize) {
		floorSize = shortMin
	}
	floorF, _ := floorSize.Float64()

	minNotional := floorSize.Mul(price)
	if minNotional.GreaterThan(req.SizeUSD.Mul(decimal.NewFromFloat(c.cfg.MinOrderNotionalRatio))) {
		return 0, fmt.Errorf("%w: min order notional %s exceeds %vx requested size %s",
			ErrMinOrderSizeTooLarge, minNotional.String(), c.cfg.MinOrderNotionalRatio, req.SizeUSD.String())
	}

	if requestedF < floorF {
		return floorF, nil
	}
	return requestedF, nil
}
