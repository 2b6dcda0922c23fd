package execution

import (
	"context"
	"fmt"

	"github.com/fundingarb/core/internal/types"
	"github.com/fundingarb/core/internal/venue"
)

// callVenue runs fn through venueName's rate limiter and circuit breaker.
// Every PlaceOrder/CancelOrder/GetTicker/GetMinOrderSize/GetOrders/
// GetPositions call to a venue.Adapter flows through here so a single
// misbehaving venue degrades gracefully instead of stalling the
// Coordinator's submission or poll loops.
func (c *Coordinator) callVenue(ctx context.Context, venueName string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	limiter, ok := c.limiters[venueName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	breaker := c.breakers[venueName]
	return breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

func (c *Coordinator) getTicker(ctx context.Context, venueName, symbol string) (types.Money, error) {
	adapter, ok := c.venues[venueName]
	if !ok {
		return types.Zero, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	out, err := c.callVenue(ctx, venueName, func(ctx context.Context) (interface{}, error) {
		return adapter.GetTicker(ctx, symbol)
	})
	if err != nil {
		return types.Zero, err
	}
	return out.(types.Money), nil
}

func (c *Coordinator) getMinOrderSize(ctx context.Context, venueName, symbol string) (types.Money, error) {
	adapter, ok := c.venues[venueName]
	if !ok {
		return types.Zero, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	out, err := c.callVenue(ctx, venueName, func(ctx context.Context) (interface{}, error) {
		return adapter.GetMinOrderSize(ctx, symbol)
	})
	if err != nil {
		return types.Zero, err
	}
	return out.(types.Money), nil
}

func (c *Coordinator) placeOrder(ctx context.Context, venueName string, req venue.PlaceOrderRequest) (venue.PlaceOrderResult, error) {
	adapter, ok := c.venues[venueName]
	if !ok {
		return venue.PlaceOrderResult{}, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	out, err := c.callVenue(ctx, venueName, func(ctx context.Context) (interface{}, error) {
		return adapter.PlaceOrder(ctx, req)
	})
	if err != nil {
		return venue.PlaceOrderResult{Success: false, Error: err.Error()}, err
	}
	return out.(venue.PlaceOrderResult), nil
}

func (c *Coordinator) cancelOrder(ctx context.Context, venueName, exchangeOrderID string) (bool, error) {
	adapter, ok := c.venues[venueName]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	out, err := c.callVenue(ctx, venueName, func(ctx context.Context) (interface{}, error) {
		return adapter.CancelOrder(ctx, exchangeOrderID)
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (c *Coordinator) getOrders(ctx context.Context, venueName, symbol string) ([]types.Order, error) {
	adapter, ok := c.venues[venueName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	out, err := c.callVenue(ctx, venueName, func(ctx context.Context) (interface{}, error) {
		return adapter.GetOrders(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return out.([]types.Order), nil
}

func (c *Coordinator) getPositions(ctx context.Context, venueName string) ([]venue.VenuePosition, error) {
	adapter, ok := c.venues[venueName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, venueName)
	}
	out, err := c.callVenue(ctx, venueName, func(ctx context.Context) (interface{}, error) {
		return adapter.GetPositions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]venue.VenuePosition), nil
}
