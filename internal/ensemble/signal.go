package ensemble

import (
	"time"

	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/domain"
)

// TimeframeFusion is the full output of fusing one timeframe's model
// predictions, carrying enough detail to populate a SignalRecord's
// diagnostics and per-model map even after multi-timeframe consensus
// collapses everything into one final number.
type TimeframeFusion struct {
	Timeframe           string
	Prob                float64
	Confidence          float64
	ComponentWeights    map[string]float64
	PerModelPredictions map[string]float64
	Diagnostics         []domain.ModelDiagnostic
}

// BuildSignal runs multi-timeframe consensus over already-fused
// per-timeframe results, maps the outcome to a label, derives trading
// levels, and assembles the final SignalRecord (spec §3 "Signal record",
// the terminal step of the control flow in the overview: "C3 fuses
// per-timeframe predictions using weights from C4 ... returned").
func BuildSignal(
	ticker string,
	asOf time.Time,
	method domain.EnsembleMethod,
	fusions []TimeframeFusion,
	timeframeWeights map[string]float64,
	thresholds config.LabelThresholds,
	levelConstants config.LevelConstants,
	referencePrice, atr float64,
) (domain.SignalRecord, error) {
	inputs := make([]TimeframeInput, len(fusions))
	for i, f := range fusions {
		inputs[i] = TimeframeInput{
			Timeframe:  f.Timeframe,
			Prob:       f.Prob,
			Confidence: f.Confidence,
			Weight:     timeframeWeights[f.Timeframe],
		}
	}

	prob, confidence, err := FuseConsensus(inputs)
	if err != nil {
		return domain.SignalRecord{}, err
	}

	label := Label(prob, confidence, thresholds)

	levels, err := DeriveLevels(referencePrice, atr, label, levelConstants)
	if err != nil {
		return domain.SignalRecord{}, err
	}

	perModel := map[string]float64{}
	componentWeights := map[string]float64{}
	var diagnostics []domain.ModelDiagnostic
	for _, f := range fusions {
		for modelID, p := range f.PerModelPredictions {
			perModel[f.Timeframe+"/"+modelID] = p
		}
		for modelID, w := range f.ComponentWeights {
			componentWeights[f.Timeframe+"/"+modelID] = w
		}
		diagnostics = append(diagnostics, f.Diagnostics...)
	}

	return domain.SignalRecord{
		Ticker:              ticker,
		AsOf:                asOf,
		Label:               label,
		Probability:         prob,
		Confidence:          confidence,
		Entry:               levels.Entry,
		StopLoss:            levels.StopLoss,
		Target1:             levels.Target1,
		Target2:             levels.Target2,
		PerModelPredictions: perModel,
		EnsembleMethod:      method,
		ComponentWeights:    componentWeights,
		Status:              domain.SignalPending,
		Diagnostics:         diagnostics,
	}, nil
}
