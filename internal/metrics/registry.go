// Package metrics holds one Prometheus registry shared by every core
// component, exposed over /metrics. Grounded on the teacher's
// internal/interfaces/http.MetricsRegistry: a single struct of
// pre-registered collectors plus small Record*/Set* helpers, rather than
// components touching the Prometheus client library directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector this repo exposes, one field group per
// component (C1-C6 plus the bus).
type Registry struct {
	// C1 Market State Cache
	QuoteStaleness   *prometheus.GaugeVec // symbol,venue -> seconds since last update
	VenueReliability *prometheus.GaugeVec // venue -> EWMA reliability [0,1]

	// C2 Opportunity Engine
	UOSScore        *prometheus.HistogramVec // symbol -> UOS distribution
	OpportunitiesDetected *prometheus.CounterVec // symbol,verdict

	// C3 Capital Allocator
	AllocationSizeUSD *prometheus.HistogramVec // symbol -> sized allocation distribution
	ActiveAllocations prometheus.Gauge
	AutoUnwinds       *prometheus.CounterVec // symbol,reason

	// C4 Execution Coordinator
	FillLatencyMs  *prometheus.HistogramVec // venue -> time from submit to fill
	SlippagePct    *prometheus.HistogramVec // venue,side
	LegSyncCorrections *prometheus.CounterVec // symbol
	ExecutionOutcomes  *prometheus.CounterVec // outcome (ok_ok, ok_fail, fail_ok, fail_fail)

	// C5 Position Manager
	PositionHealth   *prometheus.GaugeVec // symbol -> 0=healthy,1=degraded,2=critical
	ActivePositions  prometheus.Gauge
	FundingAccrued   *prometheus.CounterVec // symbol,direction (received/paid)
	Rebalances       *prometheus.CounterVec // symbol

	// C6 Risk Controller
	GrossExposurePct   prometheus.Gauge
	NetExposurePct     prometheus.Gauge
	VenueExposureUSD   *prometheus.GaugeVec // venue
	VaRPct             prometheus.Gauge
	CVaRPct            prometheus.Gauge
	CircuitBreakerOpen prometheus.Gauge // 0=closed,1=open
	RiskMode           prometheus.Gauge // 0=discovery,1=conservative,2=standard,3=aggressive,4=emergency

	// Bus
	EventsPublished *prometheus.CounterVec // topic
	HandlerErrors   *prometheus.CounterVec // topic,handler
}

// NewRegistry constructs and registers every collector with the given
// Prometheus registerer. Pass prometheus.DefaultRegisterer in production;
// tests should pass a fresh prometheus.NewRegistry() to avoid duplicate
// registration across test runs.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		QuoteStaleness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundingarb_quote_staleness_seconds",
			Help: "Seconds since the last quote update per symbol/venue.",
		}, []string{"symbol", "venue"}),

		VenueReliability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundingarb_venue_reliability",
			Help: "EWMA venue reliability score in [0,1].",
		}, []string{"venue"}),

		UOSScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundingarb_uos_score",
			Help:    "Distribution of computed Unified Opportunity Scores.",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"symbol"}),

		OpportunitiesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_opportunities_detected_total",
			Help: "Total opportunities evaluated, by verdict.",
		}, []string{"symbol", "verdict"}),

		AllocationSizeUSD: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundingarb_allocation_size_usd",
			Help:    "Distribution of sized allocation notional in USD.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 14),
		}, []string{"symbol"}),

		ActiveAllocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_active_allocations",
			Help: "Current count of pending/active allocations.",
		}),

		AutoUnwinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_auto_unwinds_total",
			Help: "Total weakness-triggered auto-unwinds, by reason.",
		}, []string{"symbol", "reason"}),

		FillLatencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundingarb_fill_latency_ms",
			Help:    "Milliseconds from order submission to fill, per venue.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"venue"}),

		SlippagePct: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundingarb_slippage_pct",
			Help:    "Signed slippage as a fraction of expected price.",
			Buckets: []float64{-0.02, -0.01, -0.005, -0.001, 0, 0.001, 0.005, 0.01, 0.02},
		}, []string{"venue", "side"}),

		LegSyncCorrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_leg_sync_corrections_total",
			Help: "Total post-settlement leg-sync correction orders submitted.",
		}, []string{"symbol"}),

		ExecutionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_execution_outcomes_total",
			Help: "Total paired-leg submission outcomes by outcome-matrix branch.",
		}, []string{"outcome"}),

		PositionHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundingarb_position_health",
			Help: "Current position health: 0=healthy, 1=degraded, 2=critical.",
		}, []string{"symbol"}),

		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_active_positions",
			Help: "Current count of ACTIVE positions.",
		}),

		FundingAccrued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_funding_accrued_usd_total",
			Help: "Cumulative funding accrued, by symbol and direction.",
		}, []string{"symbol", "direction"}),

		Rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_rebalances_total",
			Help: "Total rebalance orders triggered, by symbol.",
		}, []string{"symbol"}),

		GrossExposurePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_gross_exposure_pct",
			Help: "Gross exposure as a fraction of total capital.",
		}),

		NetExposurePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_net_exposure_pct",
			Help: "Net exposure as a fraction of total capital.",
		}),

		VenueExposureUSD: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fundingarb_venue_exposure_usd",
			Help: "Current notional exposure per venue in USD.",
		}, []string{"venue"}),

		VaRPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_var_pct",
			Help: "Value-at-risk as a fraction of total capital.",
		}),

		CVaRPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_cvar_pct",
			Help: "Conditional value-at-risk as a fraction of total capital.",
		}),

		CircuitBreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_circuit_breaker_open",
			Help: "1 if the system-wide risk circuit breaker is tripped, else 0.",
		}),

		RiskMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingarb_risk_mode",
			Help: "Current risk mode: 0=discovery, 1=conservative, 2=standard, 3=aggressive, 4=emergency.",
		}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_bus_events_published_total",
			Help: "Total events published, by topic.",
		}, []string{"topic"}),

		HandlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundingarb_bus_handler_errors_total",
			Help: "Total handler errors, by topic and handler group.",
		}, []string{"topic", "handler"}),
	}

	reg.MustRegister(
		m.QuoteStaleness, m.VenueReliability,
		m.UOSScore, m.OpportunitiesDetected,
		m.AllocationSizeUSD, m.ActiveAllocations, m.AutoUnwinds,
		m.FillLatencyMs, m.SlippagePct, m.LegSyncCorrections, m.ExecutionOutcomes,
		m.PositionHealth, m.ActivePositions, m.FundingAccrued, m.Rebalances,
		m.GrossExposurePct, m.NetExposurePct, m.VenueExposureUSD, m.VaRPct, m.CVaRPct,
		m.CircuitBreakerOpen, m.RiskMode,
		m.EventsPublished, m.HandlerErrors,
	)
	return m
}

// Handler returns an http.Handler serving the registry in the Prometheus
// text exposition format, for mounting at /metrics.
func (m *Registry) Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RiskModeValue maps a types.RiskMode string to the numeric encoding
// RiskMode's gauge uses, mirroring the teacher's regimeToGaugeValue.
func RiskModeValue(mode string) float64 {
	switch mode {
	case "discovery":
		return 0
	case "conservative":
		return 1
	case "standard":
		return 2
	case "aggressive":
		return 3
	case "emergency":
		return 4
	default:
		return -1
	}
}

// HealthValue maps a position health state to PositionHealth's numeric
// encoding.
func HealthValue(health string) float64 {
	switch health {
	case "HEALTHY":
		return 0
	case "DEGRADED":
		return 1
	case "CRITICAL":
		return 2
	default:
		return -1
	}
}
