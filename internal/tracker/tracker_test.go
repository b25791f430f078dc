package tracker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/tracker"
)

func obsAt(modelID string, predAt time.Time, prob float64, dir domain.RealisedDirection, ret float64) domain.PerformanceObservation {
	return domain.PerformanceObservation{
		ModelID:           modelID,
		PredictionAt:      predAt,
		RealisedAt:        predAt.Add(time.Hour),
		PredictedProb:     prob,
		RealisedDirection: dir,
		RealisedReturn:    ret,
	}
}

func TestTracker_RecordDropsExactDuplicate(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	obs := obsAt("m1", base, 0.8, domain.DirectionUp, 0.01)

	require.NoError(t, tr.Record(obs))
	require.NoError(t, tr.Record(obs)) // duplicate, not an error

	got := tr.Observations("m1", 24*time.Hour, base.Add(2*time.Hour))
	assert.Len(t, got, 1)
}

func TestTracker_OutOfOrderRejected(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Record(obsAt("m1", base, 0.8, domain.DirectionUp, 0.01)))

	err := tr.Record(obsAt("m1", base.Add(-time.Minute), 0.6, domain.DirectionDown, -0.01))
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.StaleWrite))
}

func TestEvaluate(t *testing.T) {
	dir, ret := tracker.Evaluate(100, 105)
	assert.Equal(t, domain.DirectionUp, dir)
	assert.InDelta(t, 0.05, ret, 1e-9)

	dir, ret = tracker.Evaluate(100, 95)
	assert.Equal(t, domain.DirectionDown, dir)
	assert.InDelta(t, -0.05, ret, 1e-9)

	dir, _ = tracker.Evaluate(100, 100)
	assert.Equal(t, domain.DirectionFlat, dir)
}

func TestRollingMetrics_InsufficientBelowFloor(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, tr.Record(obsAt("m1", base.Add(time.Duration(i)*time.Minute), 0.7, domain.DirectionUp, 0.01)))
	}
	metrics := tr.RollingMetrics("m1", 24*time.Hour, 20, base.Add(time.Hour))
	assert.True(t, metrics.Insufficient)
	assert.Equal(t, 5, metrics.SampleCount)
}

func TestRollingMetrics_AccuracyAndWinRate(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		prob, dir, ret := 0.8, domain.DirectionUp, 0.01
		if i%4 == 0 { // 5 of 20 wrong
			prob, dir, ret = 0.8, domain.DirectionDown, -0.01
		}
		require.NoError(t, tr.Record(obsAt("m1", base.Add(time.Duration(i)*time.Minute), prob, dir, ret)))
	}
	metrics := tr.RollingMetrics("m1", 24*time.Hour, 10, base.Add(time.Hour))
	require.False(t, metrics.Insufficient)
	assert.InDelta(t, 0.75, metrics.Accuracy, 1e-9)
	assert.InDelta(t, 0.75, metrics.WinRate, 1e-9)
	assert.Equal(t, 20, metrics.SampleCount)
}

func TestDeriveWeights_ProportionalToAccuracy(t *testing.T) {
	metrics := map[string]domain.RollingMetrics{
		"good": {Accuracy: 0.70, SampleCount: 100},
		"fair": {Accuracy: 0.55, SampleCount: 100},
	}
	weights := tracker.DeriveWeights([]string{"good", "fair"}, metrics)
	require.Len(t, weights, 2)
	var total float64
	byID := map[string]float64{}
	for _, w := range weights {
		byID[w.ModelID] = w.Weight
		total += w.Weight
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, byID["good"], byID["fair"])
}

func TestDeriveWeights_FallsBackToEqualWhenAllInsufficient(t *testing.T) {
	metrics := map[string]domain.RollingMetrics{
		"a": {Insufficient: true},
		"b": {Insufficient: true},
	}
	weights := tracker.DeriveWeights([]string{"a", "b"}, metrics)
	require.Len(t, weights, 2)
	assert.InDelta(t, 0.5, weights[0].Weight, 1e-9)
	assert.InDelta(t, 0.5, weights[1].Weight, 1e-9)
}

func TestDeriveWeights_FallsBackWhenAccuracyAtOrBelowHalf(t *testing.T) {
	metrics := map[string]domain.RollingMetrics{
		"a": {Accuracy: 0.5, SampleCount: 100},
		"b": {Accuracy: 0.4, SampleCount: 100},
	}
	weights := tracker.DeriveWeights([]string{"a", "b"}, metrics)
	assert.InDelta(t, 0.5, weights[0].Weight, 1e-9)
	assert.InDelta(t, 0.5, weights[1].Weight, 1e-9)
}
