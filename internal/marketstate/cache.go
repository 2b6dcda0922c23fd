// Package marketstate implements the Market State Cache (spec §4.1): the
// single source of truth every other component reads venue/symbol state
// from. It exposes atomic snapshot readers and validated mutators, and
// tracks a per-venue reliability score used for venue priority ranking.
//
// Grounded on the teacher's internal/infrastructure/datafacade/cache
// TTLCache (single-mutex map-of-structs, janitor-free here since entries
// never expire, only get overwritten) and internal/data/venue's priority
// selection idiom, generalized from "exchange preference" to the
// reliability-weighted ranking spec §4.1 calls for.
package marketstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundingarb/core/internal/metrics"
	"github.com/fundingarb/core/internal/types"
	"github.com/fundingarb/core/internal/venue"
)

// Config tunes the bounds and jump-anomaly checks and the reliability
// EWMA window. These are internal tuning knobs, not part of the
// runtime-adjustable surface named in spec §6.
type Config struct {
	// MaxAbsRatePerInterval is the funding rate bounds check ceiling,
	// spec §4.1's "typically 0.01 per interval".
	MaxAbsRatePerInterval float64
	// JumpTolerance is the maximum allowed absolute delta between a new
	// funding rate and the most recent accepted value for the same key.
	JumpTolerance float64
	// ReliabilityWindow is K in spec §4.1's "EWMA of (1 - error rate)
	// over the last K requests".
	ReliabilityWindow int
	// RateHistoryDepth bounds how many trailing accepted rates are kept
	// per key for the jump check.
	RateHistoryDepth int
}

// DefaultConfig returns spec §4.1's documented tuning.
func DefaultConfig() Config {
	return Config{
		MaxAbsRatePerInterval: 0.01,
		JumpTolerance:         0.008,
		ReliabilityWindow:     20,
		RateHistoryDepth:      5,
	}
}

func (c Config) reliabilityAlpha() float64 {
	k := c.ReliabilityWindow
	if k < 1 {
		k = 1
	}
	return 2.0 / (float64(k) + 1.0)
}

// Cache is the Market State Cache. All writes are serialized through a
// single RWMutex; this is strictly stronger than spec §4.1's "per-(venue,
// symbol) serialized writes" requirement but keeps the implementation a
// single guarded map-of-structs, matching the teacher's TTLCache shape.
type Cache struct {
	mu  sync.RWMutex
	cfg Config
	log zerolog.Logger

	rates       map[string]types.FundingRate
	rateHistory map[string][]float64
	quotes      map[string]types.Quote
	liquidity   map[string]venue.LiquiditySnapshot
	health      map[string]*types.VenueHealth
	symbolIndex map[string]map[string]struct{} // symbol -> set of venues

	mirror  *RedisMirror
	metrics *metrics.Registry
}

// SetMetrics attaches the shared Prometheus registry. Passing nil detaches
// it; every recording call below is a no-op without one attached.
func (c *Cache) SetMetrics(m *metrics.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// SetMirror attaches a Redis read-through mirror. Every subsequent
// accepted funding rate and quote is published to it in addition to
// being stored in memory; venue health is not mirrored. Passing nil detaches the
// mirror, leaving the cache purely in-memory.
func (c *Cache) SetMirror(m *RedisMirror) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = m
}

// NewCache constructs an empty Market State Cache.
func NewCache(cfg Config, log zerolog.Logger) *Cache {
	return &Cache{
		cfg:         cfg,
		log:         log.With().Str("component", "marketstate").Logger(),
		rates:       make(map[string]types.FundingRate),
		rateHistory: make(map[string][]float64),
		quotes:      make(map[string]types.Quote),
		liquidity:   make(map[string]venue.LiquiditySnapshot),
		health:      make(map[string]*types.VenueHealth),
		symbolIndex: make(map[string]map[string]struct{}),
	}
}

// RegisterVenue seeds a venue's health record with its priority tier.
// Idempotent: re-registering an already-known venue only updates the
// tier, preserving its accumulated reliability.
func (c *Cache) RegisterVenue(name string, tier types.PriorityTier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.health[name]
	if !ok {
		h = &types.VenueHealth{
			Venue:            name,
			Healthy:          true,
			ReliabilityScore: 1.0,
			PriorityTier:     tier,
		}
		c.health[name] = h
		return
	}
	h.PriorityTier = tier
}

// SetVenueConnectivity records a liveness signal independent of the
// statistical reliability score, e.g. a failed heartbeat or websocket
// disconnect from the venue adapter.
func (c *Cache) SetVenueConnectivity(name string, healthy bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.healthLocked(name)
	h.Healthy = healthy
	h.Reason = reason
}

// UpdateFundingRate validates and stores a funding rate, per spec §4.1:
// a bounds check, then a jump-anomaly check against trailing history for
// the same key. A rejected update increments the venue's error counter
// and is reflected in its reliability score.
func (c *Cache) UpdateFundingRate(rate types.FundingRate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rate.Key()
	rateF, _ := rate.CurrentRate.Float64()

	if abs(rateF) > c.cfg.MaxAbsRatePerInterval {
		c.recordOutcomeLocked(rate.Venue, false)
		return fmt.Errorf("%w: venue=%s symbol=%s rate=%v max=%v",
			ErrRateOutOfBounds, rate.Venue, rate.Symbol, rateF, c.cfg.MaxAbsRatePerInterval)
	}

	if hist := c.rateHistory[key]; len(hist) > 0 {
		last := hist[len(hist)-1]
		if abs(rateF-last) > c.cfg.JumpTolerance {
			c.recordOutcomeLocked(rate.Venue, false)
			return fmt.Errorf("%w: venue=%s symbol=%s rate=%v last=%v tolerance=%v",
				ErrRateJumpAnomaly, rate.Venue, rate.Symbol, rateF, last, c.cfg.JumpTolerance)
		}
	}

	c.rates[key] = rate
	hist := append(c.rateHistory[key], rateF)
	if len(hist) > c.cfg.RateHistoryDepth {
		hist = hist[len(hist)-c.cfg.RateHistoryDepth:]
	}
	c.rateHistory[key] = hist
	c.indexSymbolLocked(rate.Symbol, rate.Venue)
	c.recordOutcomeLocked(rate.Venue, true)
	if c.mirror != nil {
		c.mirror.MirrorFundingRate(context.Background(), key, rate)
	}
	return nil
}

// UpdateQuote stores the latest quote for a (venue, symbol) key. Quotes
// are not subject to the funding-rate bounds/jump checks.
func (c *Cache) UpdateQuote(q types.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Key()] = q
	c.indexSymbolLocked(q.Symbol, q.Venue)
	c.recordOutcomeLocked(q.Venue, true)
	if c.metrics != nil {
		age := time.Since(q.LastUpdate).Seconds()
		if age < 0 {
			age = 0
		}
		c.metrics.QuoteStaleness.WithLabelValues(q.Symbol, q.Venue).Set(age)
	}
	if c.mirror != nil {
		c.mirror.MirrorQuote(context.Background(), q.Key(), q)
	}
}

// UpdateLiquidity stores the latest liquidity snapshot for a venue/symbol.
func (c *Cache) UpdateLiquidity(l venue.LiquiditySnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liquidity[l.Venue+"|"+l.Symbol] = l
	c.indexSymbolLocked(l.Symbol, l.Venue)
}

// RecordRequestOutcome lets a venue adapter report a request's success or
// failure directly (e.g. an order placement or REST call outside the
// funding/quote/liquidity update path) so it still feeds the reliability
// EWMA.
func (c *Cache) RecordRequestOutcome(venueName string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordOutcomeLocked(venueName, success)
}

func (c *Cache) recordOutcomeLocked(venueName string, success bool) {
	h := c.healthLocked(venueName)
	h.RequestCount++
	successVal := 1.0
	if !success {
		h.ErrorCount++
		h.LastErrorTime = types.NowUTC()
		successVal = 0.0
	}
	alpha := c.cfg.reliabilityAlpha()
	h.ReliabilityScore = alpha*successVal + (1-alpha)*h.ReliabilityScore
	if c.metrics != nil {
		c.metrics.VenueReliability.WithLabelValues(venueName).Set(h.ReliabilityScore)
	}
}

func (c *Cache) healthLocked(venueName string) *types.VenueHealth {
	h, ok := c.health[venueName]
	if !ok {
		h = &types.VenueHealth{
			Venue:            venueName,
			Healthy:          true,
			ReliabilityScore: 1.0,
			PriorityTier:     types.TierSecondary,
		}
		c.health[venueName] = h
	}
	return h
}

func (c *Cache) indexSymbolLocked(symbol, venueName string) {
	set, ok := c.symbolIndex[symbol]
	if !ok {
		set = make(map[string]struct{})
		c.symbolIndex[symbol] = set
	}
	set[venueName] = struct{}{}
}

// FundingRate returns a consistent snapshot for (venue, symbol).
func (c *Cache) FundingRate(venueName, symbol string) (types.FundingRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[venueName+"|"+symbol]
	return r, ok
}

// Quote returns a consistent snapshot for (venue, symbol).
func (c *Cache) Quote(venueName, symbol string) (types.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[venueName+"|"+symbol]
	return q, ok
}

// Liquidity returns a consistent snapshot for (venue, symbol).
func (c *Cache) Liquidity(venueName, symbol string) (venue.LiquiditySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.liquidity[venueName+"|"+symbol]
	return l, ok
}

// VenueHealth returns a copy of a venue's current health record.
func (c *Cache) VenueHealth(venueName string) (types.VenueHealth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.health[venueName]
	if !ok {
		return types.VenueHealth{}, false
	}
	return *h, true
}

// VenuesForSymbol returns every venue currently known to list symbol.
func (c *Cache) VenuesForSymbol(symbol string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.symbolIndex[symbol]
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

// RankVenuesForSymbol returns the venues listing symbol, ordered per
// venue.Rank (priority tier ascending, reliability descending), for the
// caller to pick a primary and, via venue.Fallback, a secondary.
func (c *Cache) RankVenuesForSymbol(symbol string) []venue.Ranked {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := c.symbolIndex[symbol]
	candidates := make([]venue.Ranked, 0, len(set))
	for v := range set {
		h, ok := c.health[v]
		if !ok {
			continue
		}
		candidates = append(candidates, venue.Ranked{
			Venue:        v,
			PriorityTier: h.PriorityTier,
			Reliability:  h.ReliabilityScore,
			Healthy:      h.Healthy,
		})
	}
	return venue.Rank(candidates)
}

// SelectVenue picks a primary venue for symbol and, if the primary is
// unhealthy, a single fallback per spec §4.1's "single fallback attempt
// to the next healthy venue with reliability >= 0.5".
func (c *Cache) SelectVenue(symbol string) (primaryVenue string, usedFallback bool, ok bool) {
	ranked := c.RankVenuesForSymbol(symbol)
	if len(ranked) == 0 {
		return "", false, false
	}
	if ranked[0].Healthy {
		return ranked[0].Venue, false, true
	}
	if fb, found := venue.Fallback(ranked); found {
		return fb, true, true
	}
	return "", false, false
}

// LastUpdated returns the most recent of the funding rate, quote and
// liquidity timestamps known for (venue, symbol), used by staleness
// checks elsewhere in the core.
func (c *Cache) LastUpdated(venueName, symbol string) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var latest time.Time
	if r, ok := c.rates[venueName+"|"+symbol]; ok && r.LastUpdate.After(latest) {
		latest = r.LastUpdate
	}
	if q, ok := c.quotes[venueName+"|"+symbol]; ok && q.LastUpdate.After(latest) {
		latest = q.LastUpdate
	}
	if l, ok := c.liquidity[venueName+"|"+symbol]; ok && l.Timestamp.After(latest) {
		latest = l.Timestamp
	}
	return latest
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
