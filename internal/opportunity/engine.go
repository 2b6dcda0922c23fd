package opportunity

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fundingarb/core/internal/activity"
	"github.com/fundingarb/core/internal/bus"
	"github.com/fundingarb/core/internal/config"
	"github.com/fundingarb/core/internal/marketstate"
	"github.com/fundingarb/core/internal/types"
)

// detectionNotionalUSD is the assumed trade size used to estimate
// slippage at detection time, before the Capital Allocator (§4.3) has
// picked an actual size. It is a scoring calibration constant, not part
// of the runtime-adjustable surface.
const detectionNotionalUSD = 10_000.0

// feeEventsPerRoundTrip is spec §4.2's "4 fee events at taker rate":
// open+close on each of the two legs.
const feeEventsPerRoundTrip = 4

// spreadHistoryDepth bounds the rolling spread window kept per
// (symbol, long, short) triple for stability and trend scoring.
const spreadHistoryDepth = 20

// ExternalState carries the cross-component facts the Bot-Action verdict
// needs but the Opportunity Engine does not itself own: system lifecycle,
// risk state, credential/blacklist status and allocator capacity. The
// caller (the orchestrating main loop) assembles this from the other
// components' snapshots each cycle.
type ExternalState struct {
	SystemRunning        bool
	CircuitBreakerActive bool
	Mode                 types.RiskMode

	LongVenueHasCreds  bool
	ShortVenueHasCreds bool
	SymbolBlacklisted  bool

	ActiveCoinCount     int
	SymbolAlreadyActive bool
	AvailableCapital    types.Money
}

// Engine is the Opportunity Engine (spec §4.2). It recomputes spread,
// net APR, UOS and the Bot-Action verdict for a (symbol, long, short)
// candidate on demand, tracks the rolling spread history needed for the
// stability/trend sub-scores, and publishes opportunity.detected events.
//
// Grounded on the teacher's internal/score/composite.CompositeScorer
// (one struct owning the cache handle + config it scores against) for
// the overall shape.
type Engine struct {
	cache    *marketstate.Cache
	oppCfg   config.OpportunityConfig
	allocCfg config.AllocationConfig
	eventBus bus.EventBus
	onEvent  func(context.Context, activity.Event)
	log      zerolog.Logger

	mu      sync.Mutex
	history map[string][]float64
}

// NewEngine constructs an Opportunity Engine reading market state from
// cache. eventBus and onEvent may be nil (tests, dry-run tooling).
func NewEngine(cache *marketstate.Cache, oppCfg config.OpportunityConfig, allocCfg config.AllocationConfig, eventBus bus.EventBus, onEvent func(context.Context, activity.Event), log zerolog.Logger) *Engine {
	return &Engine{
		cache:    cache,
		oppCfg:   oppCfg,
		allocCfg: allocCfg,
		eventBus: eventBus,
		onEvent:  onEvent,
		log:      log.With().Str("component", "opportunity").Logger(),
		history:  make(map[string][]float64),
	}
}

func historyKey(symbol, longVenue, shortVenue string) string {
	return symbol + "|" + longVenue + "|" + shortVenue
}

// Evaluate recomputes one candidate pair's spread, net APR, UOS and
// verdict from the current market state, per spec §4.2. It requires both
// venues to have a known funding rate and quote for symbol; callers are
// expected to have already filtered to (long, short) pairs that both
// list the symbol and are healthy.
func (e *Engine) Evaluate(symbol, longVenue, shortVenue string, ext ExternalState) (types.Opportunity, error) {
	longRate, ok := e.cache.FundingRate(longVenue, symbol)
	if !ok {
		return types.Opportunity{}, fmt.Errorf("opportunity: no funding rate for %s on %s", symbol, longVenue)
	}
	shortRate, ok := e.cache.FundingRate(shortVenue, symbol)
	if !ok {
		return types.Opportunity{}, fmt.Errorf("opportunity: no funding rate for %s on %s", symbol, shortVenue)
	}
	longQuote, _ := e.cache.Quote(longVenue, symbol)
	shortQuote, _ := e.cache.Quote(shortVenue, symbol)
	longLiq, _ := e.cache.Liquidity(longVenue, symbol)
	shortLiq, _ := e.cache.Liquidity(shortVenue, symbol)
	longHealth, _ := e.cache.VenueHealth(longVenue)
	shortHealth, _ := e.cache.VenueHealth(shortVenue)

	spread := shortRate.CurrentRate.Sub(longRate.CurrentRate)
	spreadF, _ := spread.Float64()

	intervalHrs := longRate.FundingIntervalHrs
	if shortRate.FundingIntervalHrs < intervalHrs || intervalHrs == 0 {
		intervalHrs = shortRate.FundingIntervalHrs
	}
	if intervalHrs <= 0 {
		intervalHrs = 8
	}
	intervalsPerYear := float64(365*24) / float64(intervalHrs)
	grossAPR := spread.Mul(decimal.NewFromFloat(intervalsPerYear))

	feePct := e.oppCfg.TakerFeeRate * feeEventsPerRoundTrip
	minDepth := minMoneyF(longLiq.BidDepthUSD, shortLiq.AskDepthUSD)
	slippagePct := estimateSlippagePct(minDepth)
	netAPR := grossAPR.
		Sub(decimal.NewFromFloat(feePct * intervalsPerYear)).
		Sub(decimal.NewFromFloat(slippagePct * intervalsPerYear))
	netAPRF, _ := netAPR.Float64()

	key := historyKey(symbol, longVenue, shortVenue)
	e.mu.Lock()
	hist := append(e.history[key], spreadF)
	if len(hist) > spreadHistoryDepth {
		hist = hist[len(hist)-spreadHistoryDepth:]
	}
	e.history[key] = hist
	e.mu.Unlock()

	stddev := rollingStdDev(hist)
	trend, adverse := spreadTrend(hist)

	inWindow := inFundingWindow(longRate, shortRate)

	reliability := (longHealth.ReliabilityScore + shortHealth.ReliabilityScore) / 2

	scores := Score(ScoreInputs{
		AnnualizedAPRPct:     netAPRF * 100,
		Spread:               spreadF,
		OptimalSpread:        e.oppCfg.OptimalSpreadPct,
		LongTierPrimary:      longHealth.PriorityTier == types.TierPrimary,
		ShortTierPrimary:     shortHealth.PriorityTier == types.TierPrimary,
		Volume24hUSD:         minMoneyF(longQuote.Volume24hUSD, shortQuote.Volume24hUSD),
		MinVolume24hUSD:      e.oppCfg.MinVolume24hUSD,
		MaxVolume24hUSD:      e.oppCfg.MaxVolume24hUSD,
		SpreadStdDev:         stddev,
		EstimatedSlippagePct: slippagePct,
		TotalFeesPct:         feePct,
		VenueReliability:     reliability,
		InFundingWindow:      inWindow,
		Trend:                trend,
		TrendAdverse:         adverse,
	})

	verdict, details := Classify(VerdictInputs{
		SystemRunning:        ext.SystemRunning,
		CircuitBreakerActive: ext.CircuitBreakerActive,
		Mode:                 ext.Mode,
		LongVenueHasCreds:    ext.LongVenueHasCreds,
		ShortVenueHasCreds:   ext.ShortVenueHasCreds,
		SymbolBlacklisted:    ext.SymbolBlacklisted,
		UOS:                  scores.Total(),
		MinUOS:               e.oppCfg.MinUOSScore,
		SpreadPct:            spreadF,
		MinSpreadPct:         e.oppCfg.MinSpreadPct,
		NetAPRPct:            netAPRF * 100,
		MinNetAPRPct:         e.oppCfg.MinNetAPRPct,
		AutoExecute:          e.oppCfg.AutoExecute,
		AutoUOSThreshold:     e.oppCfg.AutoUOSThreshold,
		ActiveCoinCount:      ext.ActiveCoinCount,
		MaxConcurrentCoins:   e.allocCfg.MaxConcurrentCoins,
		SymbolAlreadyActive:  ext.SymbolAlreadyActive,
		AvailableCapital:     ext.AvailableCapital,
		MinAllocationUSD:     decimal.NewFromFloat(e.allocCfg.MinAllocationUSD),
	})

	opp := types.Opportunity{
		ID:             types.NewID(),
		Symbol:         symbol,
		LongVenue:      longVenue,
		ShortVenue:     shortVenue,
		GrossSpread:    spread,
		AnnualizedAPR:  grossAPR,
		NetAPR:         netAPR,
		Scores:         scores,
		UOSTotal:       scores.Total(),
		Verdict:        verdict,
		VerdictDetails: details,
		Liquidity: types.LiquiditySnapshot{
			LongBidDepthUSD:   longLiq.BidDepthUSD,
			LongAskDepthUSD:   longLiq.AskDepthUSD,
			ShortBidDepthUSD:  shortLiq.BidDepthUSD,
			ShortAskDepthUSD:  shortLiq.AskDepthUSD,
			LongVolume24hUSD:  longQuote.Volume24hUSD,
			ShortVolume24hUSD: shortQuote.Volume24hUSD,
		},
		DetectedAt: types.NowUTC(),
	}
	return opp, nil
}

// Publish emits the opportunity on bus.TopicOpportunityDetected and
// records an activity.OpportunityEvent narrating the verdict. Either
// sink may be nil.
func (e *Engine) Publish(ctx context.Context, opp types.Opportunity) {
	if e.onEvent != nil {
		e.onEvent(ctx, activity.OpportunityEvent{
			OpportunityID: opp.ID,
			Symbol:        opp.Symbol,
			Verdict:       string(opp.Verdict),
			Metric:        "uos_total",
			Observed:      opp.UOSTotal,
			Threshold:     e.oppCfg.MinUOSScore,
		})
	}
	if e.eventBus == nil {
		return
	}
	payload, err := json.Marshal(opp)
	if err != nil {
		e.log.Error().Err(err).Msg("marshal opportunity")
		return
	}
	if err := e.eventBus.Publish(ctx, bus.TopicOpportunityDetected, opp.ID, payload); err != nil {
		e.log.Warn().Err(err).Str("symbol", opp.Symbol).Msg("opportunity publish failed")
	}
}

// Rank orders opportunities per spec §4.2's tie-break: higher net APR
// first, then alphabetical symbol.
func Rank(opps []types.Opportunity) []types.Opportunity {
	out := make([]types.Opportunity, len(opps))
	copy(out, opps)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].NetAPR.Equal(out[j].NetAPR) {
			return out[i].NetAPR.GreaterThan(out[j].NetAPR)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func estimateSlippagePct(depthUSD float64) float64 {
	if depthUSD <= 0 {
		return 1.0
	}
	pct := detectionNotionalUSD / (2 * depthUSD)
	if pct > 1 {
		pct = 1
	}
	return pct
}

func rollingStdDev(samples []float64) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range samples {
		mean += v
	}
	mean /= float64(n)
	var sumSq float64
	for _, v := range samples {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// spreadTrend classifies the rolling history's short-term direction.
// adverse is true when the spread's magnitude is shrinking (eroding the
// arbitrage) rather than growing, regardless of which way it moved.
func spreadTrend(samples []float64) (types.SpreadTrend, bool) {
	n := len(samples)
	if n < 3 {
		return types.TrendStable, false
	}
	recent := samples[n-1]
	prior := samples[n-3]
	delta := recent - prior
	const epsilon = 1e-6

	adverse := math.Abs(recent) < math.Abs(prior)
	switch {
	case delta > epsilon:
		return types.TrendRising, adverse
	case delta < -epsilon:
		return types.TrendFalling, adverse
	default:
		return types.TrendStable, false
	}
}

func inFundingWindow(longRate, shortRate types.FundingRate) bool {
	minInterval := longRate.FundingIntervalHrs
	if shortRate.FundingIntervalHrs < minInterval {
		minInterval = shortRate.FundingIntervalHrs
	}
	if minInterval <= 0 {
		return false
	}
	until := time.Until(longRate.NextFundingTime)
	if shortUntil := time.Until(shortRate.NextFundingTime); shortUntil < until {
		until = shortUntil
	}
	total := time.Duration(minInterval) * time.Hour
	if total <= 0 {
		return false
	}
	elapsedFrac := 1 - (float64(until) / float64(total))
	return elapsedFrac >= 0.375 && elapsedFrac <= 0.75
}

func minMoneyF(a, b types.Money) float64 {
	if a.LessThan(b) {
		v, _ := a.Float64()
		return v
	}
	v, _ := b.Float64()
	return v
}
