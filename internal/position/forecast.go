package position

import (
	"errors"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientSamples is returned when a pair has no rolling samples
// recorded yet.
var ErrInsufficientSamples = errors.New("position: insufficient samples for forecast")

const (
	// maxForecastSeriesSamples is spec §4.5's "rolling series (≤500 samples)".
	maxForecastSeriesSamples = 500
	// sesAlpha is spec §4.5's simple exponential smoothing weight (α = 0.3).
	sesAlpha = 0.3
	// seasonalityStrengthThreshold is spec §4.5's "strength > 0.3".
	seasonalityStrengthThreshold = 0.3
	// meanReversionZThreshold is spec §4.5's "|z| > 2".
	meanReversionZThreshold = 2.0
)

// seasonalityPeriodsHours are the two candidate periods spec §4.5 names:
// "T ∈ {1 h, 8 h}".
var seasonalityPeriodsHours = []float64{1, 8}

type forecastSample struct {
	at    time.Time
	value float64
}

// Forecaster maintains one rolling spread series per (symbol, longVenue,
// shortVenue) pair and derives advisory-only signals from it: none of
// this gates a trade or a close, per spec §4.5.
type Forecaster struct {
	mu     sync.Mutex
	series map[string][]forecastSample
}

func NewForecaster() *Forecaster {
	return &Forecaster{series: make(map[string][]forecastSample)}
}

// Record appends a new spread observation for pairKey, dropping the
// oldest sample once the rolling window is exceeded.
func (f *Forecaster) Record(pairKey string, at time.Time, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := append(f.series[pairKey], forecastSample{at: at, value: value})
	if len(s) > maxForecastSeriesSamples {
		s = s[len(s)-maxForecastSeriesSamples:]
	}
	f.series[pairKey] = s
}

func (f *Forecaster) snapshot(pairKey string) []forecastSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]forecastSample, len(f.series[pairKey]))
	copy(out, f.series[pairKey])
	return out
}

// ForecastResult is the SES point forecast plus its widening confidence
// band, spec §4.5's "±1.96·σ bounds widen with horizon".
type ForecastResult struct {
	Value      float64
	LowerBound float64
	UpperBound float64
}

// Forecast runs simple exponential smoothing over pairKey's rolling
// series and widens the ±1.96σ band by sqrt(1+horizon hours).
func (f *Forecaster) Forecast(pairKey string, horizonHours float64) (ForecastResult, error) {
	samples := f.snapshot(pairKey)
	if len(samples) == 0 {
		return ForecastResult{}, ErrInsufficientSamples
	}

	level := samples[0].value
	for _, s := range samples[1:] {
		level = sesAlpha*s.value + (1-sesAlpha)*level
	}

	values := seriesValues(samples)
	sigma := 0.0
	if len(values) > 1 {
		sigma = stat.StdDev(values, nil)
	}
	width := 1.96 * sigma * math.Sqrt(1+math.Max(horizonHours, 0))

	return ForecastResult{Value: level, LowerBound: level - width, UpperBound: level + width}, nil
}

// SeasonalityResult reports the strongest candidate period detected, if
// any exceeds seasonalityStrengthThreshold.
type SeasonalityResult struct {
	Detected    bool
	PeriodHours float64
	Strength    float64
	PhaseHours  float64
}

// DetectSeasonality tests autocorrelation at the lag corresponding to
// each candidate period (T / average-sample-interval) and reports the
// strongest one, per spec §4.5.
func (f *Forecaster) DetectSeasonality(pairKey string) SeasonalityResult {
	samples := f.snapshot(pairKey)
	if len(samples) < 4 {
		return SeasonalityResult{}
	}

	avgIntervalHours := averageIntervalHours(samples)
	if avgIntervalHours <= 0 {
		return SeasonalityResult{}
	}

	values := seriesValues(samples)
	var best SeasonalityResult
	for _, periodHours := range seasonalityPeriodsHours {
		lag := int(math.Round(periodHours / avgIntervalHours))
		if lag <= 0 || lag >= len(values) {
			continue
		}
		strength := autocorrelationAtLag(values, lag)
		if strength > best.Strength {
			best = SeasonalityResult{
				Detected:    strength > seasonalityStrengthThreshold,
				PeriodHours: periodHours,
				Strength:    strength,
				PhaseHours:  float64(lag) * avgIntervalHours,
			}
		}
	}
	return best
}

// MeanReversionSignal reports whether the latest sample is an outlier
// against the rolling mean/stddev, per spec §4.5's "|z| > 2".
type MeanReversionSignal struct {
	Signaled bool
	Z        float64
}

func (f *Forecaster) MeanReversion(pairKey string) MeanReversionSignal {
	samples := f.snapshot(pairKey)
	if len(samples) < 2 {
		return MeanReversionSignal{}
	}
	values := seriesValues(samples)
	mean := stat.Mean(values, nil)
	sigma := stat.StdDev(values, nil)
	if sigma == 0 {
		return MeanReversionSignal{}
	}
	last := values[len(values)-1]
	z := (last - mean) / sigma
	return MeanReversionSignal{Signaled: math.Abs(z) > meanReversionZThreshold, Z: z}
}

func seriesValues(samples []forecastSample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.value
	}
	return values
}

func averageIntervalHours(samples []forecastSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	total := samples[len(samples)-1].at.Sub(samples[0].at).Hours()
	return total / float64(len(samples)-1)
}

// autocorrelationAtLag computes the lag-k sample autocorrelation.
// gonum/stat has no lag-based autocorrelation helper (its ACF-adjacent
// functions operate on already-differenced series for time-series
// models elsewhere in the ecosystem, not a bare Pearson-at-lag-k), so
// this is a direct textbook implementation over the same series gonum's
// stat.Mean/StdDev otherwise drive.
func autocorrelationAtLag(values []float64, lag int) float64 {
	mean := stat.Mean(values, nil)
	var num, den float64
	for i := 0; i < len(values)-lag; i++ {
		num += (values[i] - mean) * (values[i+lag] - mean)
	}
	for i := 0; i < len(values); i++ {
		den += (values[i] - mean) * (values[i] - mean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}
