// Package config loads the runtime-adjustable surface named in spec §6,
// following the teacher's internal/config.LoadGuardsConfig /
// SaveGuardsConfig pattern: one struct per concern, YAML-backed, with a
// defaults constructor so a missing file never blocks startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OpportunityConfig is the §6 "Opportunity" surface.
type OpportunityConfig struct {
	MinUOSScore         float64 `yaml:"min_uos_score"`
	HighQualityThreshold float64 `yaml:"high_quality_threshold"`
	MinSpreadPct        float64 `yaml:"min_spread_pct"`
	MinNetAPRPct        float64 `yaml:"min_net_apr_pct"`
	AutoExecute         bool    `yaml:"auto_execute"`
	AutoUOSThreshold    float64 `yaml:"auto_uos_threshold"`
	OptimalSpreadPct    float64 `yaml:"optimal_spread_pct"`
	MinVolume24hUSD     float64 `yaml:"min_volume_24h_usd"`
	MaxVolume24hUSD     float64 `yaml:"max_volume_24h_usd"`
	TakerFeeRate        float64 `yaml:"taker_fee_rate"`
}

// DefaultOpportunityConfig returns the spec's documented defaults.
func DefaultOpportunityConfig() *OpportunityConfig {
	return &OpportunityConfig{
		MinUOSScore:          60,
		HighQualityThreshold: 75,
		MinSpreadPct:         0.0002,
		MinNetAPRPct:         5,
		AutoExecute:          true,
		AutoUOSThreshold:     75,
		OptimalSpreadPct:     0.0006,
		MinVolume24hUSD:      5_000_000,
		MaxVolume24hUSD:      2_000_000_000,
		TakerFeeRate:         0.0004,
	}
}

// AllocationConfig is the §6 "Allocation" surface.
type AllocationConfig struct {
	MinAllocationUSD        float64 `yaml:"min_allocation_usd"`
	MaxAllocationUSD        float64 `yaml:"max_allocation_usd"`
	AllocationIntervalSec   int     `yaml:"allocation_interval"`
	MaxConcurrentCoins      int     `yaml:"max_concurrent_coins"`
	ScoreWeightFactor       float64 `yaml:"score_weight_factor"`
	UseKellyCriterion       bool    `yaml:"use_kelly_criterion"`
	KellyFraction           float64 `yaml:"kelly_fraction"`
	MinKellyEdge            float64 `yaml:"min_kelly_edge"`
	MaxPortfolioCorrelation float64 `yaml:"max_portfolio_correlation"`
	CorrelationSizePenalty  float64 `yaml:"correlation_size_penalty"`
	BaseAllocationPct       float64 `yaml:"base_allocation_pct"`
}

// DefaultAllocationConfig returns the spec's documented defaults.
func DefaultAllocationConfig() *AllocationConfig {
	return &AllocationConfig{
		MinAllocationUSD:        100,
		MaxAllocationUSD:        50_000,
		AllocationIntervalSec:   60,
		MaxConcurrentCoins:      10,
		ScoreWeightFactor:       1.0,
		UseKellyCriterion:       false,
		KellyFraction:           0.5,
		MinKellyEdge:            0.02,
		MaxPortfolioCorrelation: 0.7,
		CorrelationSizePenalty:  1.0,
		BaseAllocationPct:       0.10,
	}
}

// PositionConfig is the §6 "Position" surface.
type PositionConfig struct {
	MinSpreadThreshold      float64 `yaml:"min_spread_threshold"`
	StopLossPct             float64 `yaml:"stop_loss_pct"`
	MaxHoldPeriods          int64   `yaml:"max_hold_periods"`
	DegradedTimeoutSeconds  int64   `yaml:"degraded_timeout_seconds"`
	SpreadDrawdownExitPct   float64 `yaml:"spread_drawdown_exit_pct"`
	MinTimeToFundingExitSec int64   `yaml:"min_time_to_funding_exit"`
	MaxDeltaThreshold       float64 `yaml:"max_delta_threshold"`
	MaxLegDriftThreshold    float64 `yaml:"max_leg_drift_threshold"`
	RebalanceMinIntervalSec int64   `yaml:"rebalance_min_interval_seconds"`
}

// DefaultPositionConfig returns the spec's documented defaults.
func DefaultPositionConfig() *PositionConfig {
	return &PositionConfig{
		MinSpreadThreshold:      0.0001,
		StopLossPct:             0.05,
		MaxHoldPeriods:          30,
		DegradedTimeoutSeconds:  1800,
		SpreadDrawdownExitPct:   50,
		MinTimeToFundingExitSec: 1800,
		MaxDeltaThreshold:       0.10,
		MaxLegDriftThreshold:    5,
		RebalanceMinIntervalSec: 300,
	}
}

// ExecutionConfig is the §6 "Execution" surface (spec §4.4).
type ExecutionConfig struct {
	MaxSlippagePct          float64 `yaml:"max_slippage_pct"`
	MinOrderNotionalRatio   float64 `yaml:"min_order_notional_ratio"`
	PartialFillPollSec      int64   `yaml:"partial_fill_poll_seconds"`
	FillRatioThreshold      float64 `yaml:"fill_ratio_threshold"`
	HedgeAdjustRatio        float64 `yaml:"hedge_adjust_ratio"`
	StaleAgeSeconds         int64   `yaml:"stale_age_seconds"`
	MaxAgeSeconds           int64   `yaml:"max_age_seconds"`
	LegSyncTolerance        float64 `yaml:"leg_sync_tolerance"`
	VenueRequestsPerSecond  float64 `yaml:"venue_requests_per_second"`
	VenueRequestBurst       int     `yaml:"venue_request_burst"`
}

// DefaultExecutionConfig returns the spec's documented defaults.
func DefaultExecutionConfig() *ExecutionConfig {
	return &ExecutionConfig{
		MaxSlippagePct:         0.01,
		MinOrderNotionalRatio:  2.0,
		PartialFillPollSec:     5,
		FillRatioThreshold:     0.95,
		HedgeAdjustRatio:       0.50,
		StaleAgeSeconds:        30,
		MaxAgeSeconds:          60,
		LegSyncTolerance:       0.05,
		VenueRequestsPerSecond: 5,
		VenueRequestBurst:      10,
	}
}

// RiskConfig is the §6 "Risk" surface.
type RiskConfig struct {
	MaxPositionSizeUSD      float64 `yaml:"max_position_size_usd"`
	MaxPositionPct          float64 `yaml:"max_position_size_pct"`
	MaxGrossExposurePct     float64 `yaml:"max_gross_exposure_pct"`
	MaxNetExposurePct       float64 `yaml:"max_net_exposure_pct"`
	MaxVenueExposurePct     float64 `yaml:"max_venue_exposure_pct"`
	MaxAssetExposurePct     float64 `yaml:"max_asset_exposure_pct"`
	MaxDrawdownPct          float64 `yaml:"max_drawdown_pct"`
	MaxVaRPct               float64 `yaml:"max_var_pct"`
	MaxMarginUtilizationPct float64 `yaml:"max_margin_utilization_pct"`
	HighVolThreshold        float64 `yaml:"high_volatility_threshold"`
	LowVolThreshold         float64 `yaml:"low_volatility_threshold"`
}

// DefaultRiskConfig returns the spec's documented defaults.
func DefaultRiskConfig() *RiskConfig {
	return &RiskConfig{
		MaxPositionSizeUSD:      100_000,
		MaxPositionPct:          0.10,
		MaxGrossExposurePct:     0.80,
		MaxNetExposurePct:       0.40,
		MaxVenueExposurePct:     0.35,
		MaxAssetExposurePct:     0.20,
		MaxDrawdownPct:          0.20,
		MaxVaRPct:               0.10,
		MaxMarginUtilizationPct: 0.70,
		HighVolThreshold:        0.03,
		LowVolThreshold:         0.01,
	}
}

// Load reads and decodes any of the structs above from a YAML file,
// falling back to the caller-provided defaults when the file does not
// exist, matching the teacher's LoadGuardsConfig tolerance for a missing
// config file during local development.
func Load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Save writes any of the structs above to a YAML file.
func Save(path string, in interface{}) error {
	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
