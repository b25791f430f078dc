// Package ensemble implements the ensemble and multi-timeframe combiner
// (spec §4.3, component C3): it fuses active predictors into a single
// per-timeframe signal, then fuses per-timeframe signals into one final
// label, probability, confidence and set of trading levels.
package ensemble

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/domain"
)

// ModelPrediction is one model's probability estimate at a timeframe,
// paired with the weight the tracker currently assigns it.
type ModelPrediction struct {
	ModelID string
	Prob    float64
	Weight  float64
}

// FuseTimeframe combines a set of model predictions into one
// (probability, confidence) pair at a single timeframe (spec §4.3
// "Per-timeframe fusion"). Predictions with zero weight are dropped before
// renormalisation; if none remain, it fails with NoActivePredictors.
func FuseTimeframe(method domain.EnsembleMethod, preds []ModelPrediction) (prob, confidence float64, componentWeights map[string]float64, err error) {
	active := make([]ModelPrediction, 0, len(preds))
	for _, p := range preds {
		if p.Weight > 0 {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return 0, 0, nil, apperr.New(apperr.NoActivePredictors, "ensemble.FuseTimeframe", nil)
	}

	var totalWeight float64
	for _, p := range active {
		totalWeight += p.Weight
	}
	weights := make(map[string]float64, len(active))
	for _, p := range active {
		weights[p.ModelID] = p.Weight / totalWeight
	}

	switch method {
	case domain.EnsembleMajorityVote:
		prob, confidence = fuseMajorityVote(active, weights)
	case domain.EnsembleWeightedAverage, domain.EnsembleStacking:
		// Stacking's meta-model is itself just another registered predictor
		// (spec §4.3: "treated as just another predictor for registry
		// purposes"), so by the time FuseTimeframe runs, a stacking
		// ensemble's "predictions" are already the meta-model's single
		// output alongside its peers — the same weighted-average fusion
		// applies.
		prob, confidence = fuseWeightedAverage(active, weights)
	default:
		prob, confidence = fuseWeightedAverage(active, weights)
	}

	return prob, confidence, weights, nil
}

func fuseWeightedAverage(active []ModelPrediction, weights map[string]float64) (prob, confidence float64) {
	for _, p := range active {
		prob += weights[p.ModelID] * p.Prob
	}

	values := make([]float64, len(active))
	ws := make([]float64, len(active))
	for i, p := range active {
		values[i] = p.Prob
		ws[i] = weights[p.ModelID]
	}
	sd := weightedStdDev(values, ws)
	confidence = clamp01(1 - 2*sd)
	return prob, confidence
}

func fuseMajorityVote(active []ModelPrediction, weights map[string]float64) (prob, confidence float64) {
	var upWeight, downWeight float64
	for _, p := range active {
		if p.Prob >= 0.5 {
			upWeight += weights[p.ModelID]
		} else {
			downWeight += weights[p.ModelID]
		}
	}

	majorityUp := upWeight >= downWeight
	var sum, count float64
	for _, p := range active {
		agrees := (p.Prob >= 0.5) == majorityUp
		if agrees {
			sum += p.Prob
			count++
		}
	}
	if count == 0 {
		return 0.5, 0
	}
	prob = sum / count
	if majorityUp {
		confidence = upWeight
	} else {
		confidence = downWeight
	}
	return prob, confidence
}

func weightedStdDev(values, weights []float64) float64 {
	if len(values) == 1 {
		return 0
	}
	return stat.PopStdDev(values, weights)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TimeframeInput is one timeframe's fused result plus the configured weight
// for that timeframe, ready for multi-timeframe consensus.
type TimeframeInput struct {
	Timeframe  string
	Prob       float64
	Confidence float64
	Weight     float64
}

// FuseConsensus combines per-timeframe fused results into the final
// probability and confidence (spec §4.3 "Multi-timeframe consensus"): a
// weighted mean of per-timeframe probabilities, and a confidence equal to
// the minimum per-timeframe confidence multiplied by an alignment bonus —
// the fraction of timeframes agreeing in direction with the final result.
func FuseConsensus(inputs []TimeframeInput) (prob, confidence float64, err error) {
	if len(inputs) == 0 {
		return 0, 0, apperr.New(apperr.NoActivePredictors, "ensemble.FuseConsensus", nil)
	}

	var totalWeight float64
	for _, in := range inputs {
		totalWeight += in.Weight
	}
	if totalWeight <= 0 {
		return 0, 0, apperr.New(apperr.NoActivePredictors, "ensemble.FuseConsensus", nil)
	}

	for _, in := range inputs {
		prob += (in.Weight / totalWeight) * in.Prob
	}

	minConfidence := math.Inf(1)
	var agreeing int
	finalUp := prob >= 0.5
	for _, in := range inputs {
		if in.Confidence < minConfidence {
			minConfidence = in.Confidence
		}
		if (in.Prob >= 0.5) == finalUp {
			agreeing++
		}
	}
	alignmentBonus := float64(agreeing) / float64(len(inputs))
	confidence = clamp01(minConfidence * alignmentBonus)

	return prob, confidence, nil
}

// Label maps a final (probability, confidence) pair to a discrete trading
// decision using the configured thresholds (spec §4.3 "Label mapping").
func Label(prob, confidence float64, thresholds config.LabelThresholds) domain.Label {
	switch {
	case prob >= thresholds.StrongBuyProb && confidence >= thresholds.MinConfidence:
		return domain.LabelStrongBuy
	case prob >= thresholds.BuyProb:
		return domain.LabelBuy
	case prob <= thresholds.StrongSellProb && confidence >= thresholds.MinConfidence:
		return domain.LabelStrongSell
	case prob <= thresholds.SellProb:
		return domain.LabelSell
	default:
		return domain.LabelHold
	}
}
