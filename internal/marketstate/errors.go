package marketstate

import "errors"

// ErrRateOutOfBounds and ErrRateJumpAnomaly are the two validation
// failures spec §4.1 requires a funding rate update to survive: a bounds
// check and a jump-anomaly check against the trailing history for the
// same key.
var (
	ErrRateOutOfBounds = errors.New("marketstate: funding rate exceeds configured bound")
	ErrRateJumpAnomaly = errors.New("marketstate: funding rate jumped beyond trailing tolerance")
	ErrUnknownVenue    = errors.New("marketstate: unknown venue")
)
