package execution

import "errors"

var (
	ErrNotRunning              = errors.New("execution: coordinator not running")
	ErrRiskRejected            = errors.New("execution: risk pre-trade check rejected")
	ErrPriceUnavailable        = errors.New("execution: no venue returned a usable price")
	ErrMinOrderSizeUnavailable = errors.New("execution: failed to fetch minimum order size")
	ErrMinOrderSizeTooLarge    = errors.New("execution: minimum order size notional too large for requested size")
	ErrUnknownVenue            = errors.New("execution: unknown venue adapter")
	ErrBothLegsFailed          = errors.New("execution: both legs failed to submit")
)
