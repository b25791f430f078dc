package ensemble_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/ensemble"
)

func TestFuseTimeframe_WeightedAverage(t *testing.T) {
	preds := []ensemble.ModelPrediction{
		{ModelID: "a", Prob: 0.8, Weight: 0.5},
		{ModelID: "b", Prob: 0.6, Weight: 0.5},
	}
	prob, confidence, weights, err := ensemble.FuseTimeframe(domain.EnsembleWeightedAverage, preds)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, prob, 1e-9)
	assert.InDelta(t, 0.5, weights["a"], 1e-9)
	assert.GreaterOrEqual(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestFuseTimeframe_DropsZeroWeight(t *testing.T) {
	preds := []ensemble.ModelPrediction{
		{ModelID: "a", Prob: 0.9, Weight: 1.0},
		{ModelID: "b", Prob: 0.1, Weight: 0.0},
	}
	prob, _, weights, err := ensemble.FuseTimeframe(domain.EnsembleWeightedAverage, preds)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, prob, 1e-9)
	_, hasB := weights["b"]
	assert.False(t, hasB)
}

func TestFuseTimeframe_NoActivePredictors(t *testing.T) {
	_, _, _, err := ensemble.FuseTimeframe(domain.EnsembleWeightedAverage, nil)
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.NoActivePredictors))
}

func TestFuseTimeframe_MajorityVote(t *testing.T) {
	preds := []ensemble.ModelPrediction{
		{ModelID: "a", Prob: 0.9, Weight: 1},
		{ModelID: "b", Prob: 0.8, Weight: 1},
		{ModelID: "c", Prob: 0.2, Weight: 1},
	}
	prob, confidence, _, err := ensemble.FuseTimeframe(domain.EnsembleMajorityVote, preds)
	require.NoError(t, err)
	assert.Greater(t, prob, 0.5)
	assert.Greater(t, confidence, 0.5)
}

func TestFuseConsensus_AlignmentBonus(t *testing.T) {
	aligned := []ensemble.TimeframeInput{
		{Timeframe: "5m", Prob: 0.7, Confidence: 0.8, Weight: 0.5},
		{Timeframe: "1d", Prob: 0.65, Confidence: 0.9, Weight: 0.5},
	}
	prob, confidence, err := ensemble.FuseConsensus(aligned)
	require.NoError(t, err)
	assert.InDelta(t, 0.675, prob, 1e-9)
	assert.InDelta(t, 0.8, confidence, 1e-9) // min(0.8,0.9) * alignment(1.0)

	mixed := []ensemble.TimeframeInput{
		{Timeframe: "5m", Prob: 0.7, Confidence: 0.8, Weight: 0.5},
		{Timeframe: "1d", Prob: 0.3, Confidence: 0.9, Weight: 0.5},
	}
	_, confidence2, err := ensemble.FuseConsensus(mixed)
	require.NoError(t, err)
	assert.Less(t, confidence2, 0.8)
}

func TestLabel_Thresholds(t *testing.T) {
	thresholds := config.LabelThresholds{
		StrongBuyProb: 0.70, BuyProb: 0.55,
		StrongSellProb: 0.30, SellProb: 0.45,
		MinConfidence: 0.60,
	}
	assert.Equal(t, domain.LabelStrongBuy, ensemble.Label(0.75, 0.70, thresholds))
	assert.Equal(t, domain.LabelBuy, ensemble.Label(0.60, 0.30, thresholds))
	assert.Equal(t, domain.LabelStrongSell, ensemble.Label(0.20, 0.70, thresholds))
	assert.Equal(t, domain.LabelSell, ensemble.Label(0.40, 0.30, thresholds))
	assert.Equal(t, domain.LabelHold, ensemble.Label(0.50, 0.90, thresholds))
	// Strong buy probability met but confidence too low falls back to BUY.
	assert.Equal(t, domain.LabelBuy, ensemble.Label(0.75, 0.30, thresholds))
}

func TestDeriveLevels_BuySide(t *testing.T) {
	k := config.LevelConstants{KSL: 1.5, KT1: 2.5, KT2: 4.0}
	lv, err := ensemble.DeriveLevels(100, 2.0, domain.LabelBuy, k)
	require.NoError(t, err)
	assert.InDelta(t, 100, lv.Entry, 1e-9)
	assert.InDelta(t, 97, lv.StopLoss, 1e-9)
	assert.InDelta(t, 105, lv.Target1, 1e-9)
	assert.InDelta(t, 108, lv.Target2, 1e-9)
}

func TestDeriveLevels_SellSide(t *testing.T) {
	k := config.LevelConstants{KSL: 1.5, KT1: 2.5, KT2: 4.0}
	lv, err := ensemble.DeriveLevels(100, 2.0, domain.LabelSell, k)
	require.NoError(t, err)
	assert.InDelta(t, 103, lv.StopLoss, 1e-9)
	assert.InDelta(t, 95, lv.Target1, 1e-9)
	assert.InDelta(t, 92, lv.Target2, 1e-9)
}

func TestDeriveLevels_InvalidATRFails(t *testing.T) {
	k := config.LevelConstants{KSL: 1.5, KT1: 2.5, KT2: 4.0}
	_, err := ensemble.DeriveLevels(100, -1.0, domain.LabelBuy, k)
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.InvalidLevels))
}

func TestBuildSignal_EndToEnd(t *testing.T) {
	fusions := []ensemble.TimeframeFusion{
		{
			Timeframe:           "5m",
			Prob:                0.75,
			Confidence:          0.8,
			PerModelPredictions: map[string]float64{"logistic-1": 0.75},
			ComponentWeights:    map[string]float64{"logistic-1": 1.0},
		},
		{
			Timeframe:           "1d",
			Prob:                0.72,
			Confidence:          0.9,
			PerModelPredictions: map[string]float64{"logistic-1": 0.72},
			ComponentWeights:    map[string]float64{"logistic-1": 1.0},
		},
	}
	weights := map[string]float64{"5m": 0.5, "1d": 0.5}
	thresholds := config.LabelThresholds{StrongBuyProb: 0.70, BuyProb: 0.55, StrongSellProb: 0.30, SellProb: 0.45, MinConfidence: 0.60}
	levelConstants := config.LevelConstants{KSL: 1.5, KT1: 2.5, KT2: 4.0}

	signal, err := ensemble.BuildSignal("RELIANCE", time.Now(), domain.EnsembleWeightedAverage, fusions, weights, thresholds, levelConstants, 2500, 20)
	require.NoError(t, err)
	assert.Equal(t, domain.LabelStrongBuy, signal.Label)
	assert.Equal(t, domain.SignalPending, signal.Status)
	assert.Contains(t, signal.PerModelPredictions, "5m/logistic-1")
}
