package tracker

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/indiatrader/core/internal/domain"
)

// RollingMetrics derives accuracy, win rate, pseudo-Sharpe and sample count
// over a model's observations within the trailing window (spec §4.4
// "Metrics"). Fewer than minObservations yields Insufficient = true, with
// accuracy, win rate and pseudo-Sharpe zeroed and SampleCount still set.
func (t *Tracker) RollingMetrics(modelID string, window time.Duration, minObservations int, now time.Time) domain.RollingMetrics {
	obs := t.Observations(modelID, window, now)
	return rollingMetricsFrom(obs, minObservations)
}

func rollingMetricsFrom(obs []domain.PerformanceObservation, minObservations int) domain.RollingMetrics {
	if len(obs) < minObservations {
		return domain.RollingMetrics{SampleCount: len(obs), Insufficient: true}
	}

	var correct, nonFlat int
	returns := make([]float64, 0, len(obs))
	for _, o := range obs {
		if o.RealisedDirection == domain.DirectionFlat {
			continue
		}
		nonFlat++
		if IsCorrect(o.PredictedProb, o.RealisedDirection) {
			correct++
		}
		returns = append(returns, o.RealisedReturn)
	}

	var accuracy, winRate float64
	if nonFlat > 0 {
		accuracy = float64(correct) / float64(nonFlat)
		winRate = accuracy // spec §4.4: "win rate (accuracy on non-flat outcomes)"
	}

	pseudoSharpe := pseudoSharpe(returns)

	return domain.RollingMetrics{
		Accuracy:     accuracy,
		WinRate:      winRate,
		PseudoSharpe: pseudoSharpe,
		SampleCount:  len(obs),
		Insufficient: false,
	}
}

// pseudoSharpe is mean(return)/stdev(return) over a model's realised
// prediction set, assuming unit stake per prediction (spec §4.4) — a
// zero risk-free rate and no annualisation, since this scores a model's
// prediction quality rather than an investable portfolio return stream.
// Same gonum/stat-backed style internal/ensemble/combiner.go uses for
// weightedStdDev.
func pseudoSharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if sd == 0 {
		return 0
	}
	return stat.Mean(returns, nil) / sd
}

// ModelWeight pairs a model_id with its derived ensemble weight.
type ModelWeight struct {
	ModelID string
	Weight  float64
}

// DeriveWeights computes C3's input weights from each active model's
// rolling metrics (spec §4.4 "Weight derivation"): proportional to
// max(0, accuracy-0.5) * log(1+count), normalised to sum to 1. Falls back
// to equal weights if every model is insufficient or the proportional
// weights all collapse to zero.
func DeriveWeights(activeModelIDs []string, metrics map[string]domain.RollingMetrics) []ModelWeight {
	raw := make(map[string]float64, len(activeModelIDs))
	var total float64
	for _, id := range activeModelIDs {
		m, ok := metrics[id]
		if !ok || m.Insufficient {
			raw[id] = 0
			continue
		}
		w := math.Max(0, m.Accuracy-0.5) * math.Log(1+float64(m.SampleCount))
		raw[id] = w
		total += w
	}

	weights := make([]ModelWeight, len(activeModelIDs))
	if total <= 0 {
		equal := 0.0
		if len(activeModelIDs) > 0 {
			equal = 1.0 / float64(len(activeModelIDs))
		}
		for i, id := range activeModelIDs {
			weights[i] = ModelWeight{ModelID: id, Weight: equal}
		}
		return weights
	}

	for i, id := range activeModelIDs {
		weights[i] = ModelWeight{ModelID: id, Weight: raw[id] / total}
	}
	return weights
}
