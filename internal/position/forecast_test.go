package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForecast_ErrorsOnEmptySeries(t *testing.T) {
	f := NewForecaster()
	_, err := f.Forecast("BTC|binance|okx", 4)
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestForecast_LevelTracksConstantSeries(t *testing.T) {
	f := NewForecaster()
	key := "BTC|binance|okx"
	base := time.Now()
	for i := 0; i < 10; i++ {
		f.Record(key, base.Add(time.Duration(i)*time.Hour), 0.001)
	}
	result, err := f.Forecast(key, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, result.Value, 1e-9)
	assert.InDelta(t, 0.001, result.LowerBound, 1e-9)
	assert.InDelta(t, 0.001, result.UpperBound, 1e-9)
}

func TestForecast_BandWidensWithHorizon(t *testing.T) {
	f := NewForecaster()
	key := "BTC|binance|okx"
	base := time.Now()
	values := []float64{0.001, 0.002, 0.0015, 0.003, 0.0025, 0.004}
	for i, v := range values {
		f.Record(key, base.Add(time.Duration(i)*time.Hour), v)
	}
	near, err := f.Forecast(key, 1)
	require.NoError(t, err)
	far, err := f.Forecast(key, 24)
	require.NoError(t, err)
	nearWidth := near.UpperBound - near.LowerBound
	farWidth := far.UpperBound - far.LowerBound
	assert.Greater(t, farWidth, nearWidth)
}

func TestDetectSeasonality_TooFewSamplesReturnsUndetected(t *testing.T) {
	f := NewForecaster()
	f.Record("k", time.Now(), 1)
	result := f.DetectSeasonality("k")
	assert.False(t, result.Detected)
}

func TestDetectSeasonality_PeriodicSeriesIsDetected(t *testing.T) {
	f := NewForecaster()
	key := "BTC|binance|okx"
	base := time.Now()
	// one sample per hour, repeating pattern with period 8h
	pattern := []float64{1, 2, 3, 4, 3, 2, 1, 0}
	for cycle := 0; cycle < 6; cycle++ {
		for i, v := range pattern {
			f.Record(key, base.Add(time.Duration(cycle*len(pattern)+i)*time.Hour), v)
		}
	}
	result := f.DetectSeasonality(key)
	assert.True(t, result.Detected)
	assert.Equal(t, 8.0, result.PeriodHours)
}

func TestMeanReversion_OutlierSignalsAboveZThreshold(t *testing.T) {
	f := NewForecaster()
	key := "k"
	base := time.Now()
	for i := 0; i < 20; i++ {
		f.Record(key, base.Add(time.Duration(i)*time.Minute), 0.001)
	}
	f.Record(key, base.Add(21*time.Minute), 0.1)
	signal := f.MeanReversion(key)
	assert.True(t, signal.Signaled)
	assert.Greater(t, signal.Z, 2.0)
}

func TestMeanReversion_FlatSeriesNeverSignals(t *testing.T) {
	f := NewForecaster()
	key := "k"
	base := time.Now()
	for i := 0; i < 5; i++ {
		f.Record(key, base.Add(time.Duration(i)*time.Minute), 0.001)
	}
	signal := f.MeanReversion(key)
	assert.False(t, signal.Signaled)
}
