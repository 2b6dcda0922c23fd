package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceTag distinguishes a venue's primary exchange feed from a secondary
// aggregator feed for the same (venue, symbol) key.
type SourceTag string

const (
	SourcePrimary   SourceTag = "primary"
	SourceSecondary SourceTag = "secondary"
)

// FundingRate is keyed by (Venue, Symbol). Current rate is a signed
// fraction per funding interval.
type FundingRate struct {
	Venue              string
	Symbol             string
	CurrentRate        Money
	PredictedNextRate  *Money
	NextFundingTime    time.Time
	FundingIntervalHrs int
	Source             SourceTag
	LastUpdate         time.Time
}

// Key returns the (venue, symbol) cache key for this rate.
func (f FundingRate) Key() string { return f.Venue + "|" + f.Symbol }

// Quote is keyed by (Venue, Symbol).
type Quote struct {
	Venue          string
	Symbol         string
	Bid            Money
	Ask            Money
	Last           Money
	Mark           *Money
	BidDepthUSD    Money
	AskDepthUSD    Money
	OpenInterestUSD Money
	Volume24hUSD   Money
	LastUpdate     time.Time
}

// Key returns the (venue, symbol) cache key for this quote.
func (q Quote) Key() string { return q.Venue + "|" + q.Symbol }

// Mid returns the mid price between bid and ask.
func (q Quote) Mid() Money {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// PriorityTier classifies a venue's trust level.
type PriorityTier int

const (
	TierPrimary   PriorityTier = 1
	TierSecondary PriorityTier = 2
)

// VenueHealth is keyed by Venue.
type VenueHealth struct {
	Venue            string
	Healthy          bool
	Reason           string
	ReliabilityScore float64 // EWMA of (1 - error rate), in [0,1]
	RequestCount     int64
	ErrorCount       int64
	PriorityTier     PriorityTier
	LastErrorTime    time.Time
}
