package models

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/features"
)

// Sequence is the optional predictor that consumes a trailing window of
// feature rows rather than a single row (spec §4.2 "Sequence model ...
// May be absent."). It is a per-lag-position linear model: one weight
// vector per position in the window, summed and passed through a sigmoid —
// the minimal model that actually uses temporal structure instead of
// collapsing the window to a single row first, without requiring a neural
// network library (none is present anywhere in the retrieval pack). Fitting
// reuses the same BFGS/Nelder-Mead gradient-descent harness as Logistic,
// grounded on the same teacher source
// (internal/modules/optimization/mv_optimizer.go).
type Sequence struct {
	featureSetVersion string
	names             []string
	window            int
	weights           [][]float64 // weights[lag][feature]
	bias              float64
}

// NewSequence constructs an untrained sequence predictor over the given
// trailing window size.
func NewSequence(window int) *Sequence {
	if window <= 0 {
		window = 5
	}
	return &Sequence{
		featureSetVersion: features.SchemaVersion,
		names:             features.Names(),
		window:            window,
	}
}

func (s *Sequence) Kind() domain.PredictorKind { return domain.PredictorSequence }

func (s *Sequence) FeatureSetVersion() string { return s.featureSetVersion }

func (s *Sequence) WindowSize() int { return s.window }

// SequenceTrainingRow pairs a trailing window of rows with the label for
// the bar immediately following the window.
type SequenceTrainingRow struct {
	Window []features.Row
	Label  int
}

// Train satisfies Predictor by requiring callers to supply single-row
// TrainingRow values whose Row is the most recent row of an implied window;
// Sequence cannot be fit from single rows, so this always fails with
// TrainingFailed pointing callers at TrainSequence.
func (s *Sequence) Train(ctx TrainContext, rows []TrainingRow) error {
	return newTrainingFailed("sequence.Train", fmt.Errorf("sequence predictor requires TrainSequence with windowed rows"))
}

// TrainSequence fits the per-lag weight vectors from windowed training rows.
func (s *Sequence) TrainSequence(ctx TrainContext, rows []SequenceTrainingRow) error {
	if len(rows) < ctx.MinRows {
		return newInsufficientData("sequence.TrainSequence")
	}
	for _, r := range rows {
		if len(r.Window) != s.window {
			return newTrainingFailed("sequence.TrainSequence", fmt.Errorf("window length %d != predictor window %d", len(r.Window), s.window))
		}
	}

	n := len(rows)
	p := len(s.names)
	dim := s.window*p + 1

	x := make([][]float64, n)
	y := make([]float64, n)
	for i, r := range rows {
		flat := make([]float64, dim)
		for lag, row := range r.Window {
			for j, name := range s.names {
				v := row[name]
				if features.IsMissing(v) {
					v = 0
				}
				flat[lag*p+j] = v
			}
		}
		x[i] = flat
		y[i] = float64(r.Label)
	}

	start := time.Now()
	objective := func(theta []float64) float64 {
		w := theta[:dim-1]
		b := theta[dim-1]
		loss := 0.0
		for i := 0; i < n; i++ {
			z := b + floats.Dot(w, x[i])
			loss += logLoss(z, y[i])
		}
		return loss / float64(n)
	}
	gradient := func(grad, theta []float64) {
		w := theta[:dim-1]
		b := theta[dim-1]
		for j := range grad {
			grad[j] = 0
		}
		for i := 0; i < n; i++ {
			z := b + floats.Dot(w, x[i])
			err := sigmoid(z) - y[i]
			for j := range w {
				grad[j] += err * x[i][j]
			}
			grad[dim-1] += err
		}
		for j := range grad {
			grad[j] /= float64(n)
		}
	}

	problem := optimize.Problem{Func: objective, Grad: gradient}
	initial := make([]float64, dim)
	settings := &optimize.Settings{}
	if ctx.Timeout > 0 {
		settings.Runtime = ctx.Timeout
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !convergedStatus(result) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	}
	if ctx.Timeout > 0 && time.Since(start) > ctx.Timeout {
		return newTrainingTimedOut("sequence.TrainSequence")
	}
	if err != nil || !convergedStatus(result) {
		return newTrainingFailed("sequence.TrainSequence", fmt.Errorf("optimizer did not converge"))
	}

	weights := make([][]float64, s.window)
	for lag := 0; lag < s.window; lag++ {
		weights[lag] = append([]float64(nil), result.X[lag*p:(lag+1)*p]...)
	}
	s.weights = weights
	s.bias = result.X[dim-1]
	return nil
}

// Predict satisfies Predictor by treating row as a length-1 window repeated
// across every lag position — a degraded but well-defined fallback for
// callers that only have the latest row.
func (s *Sequence) Predict(row features.Row) (float64, error) {
	window := make([]features.Row, s.window)
	for i := range window {
		window[i] = row
	}
	return s.PredictSequence(window)
}

func (s *Sequence) PredictSequence(window []features.Row) (float64, error) {
	if s.weights == nil {
		return 0, newPredictionFailed("sequence.PredictSequence", fmt.Errorf("model not trained"))
	}
	if len(window) != s.window {
		return 0, newPredictionFailed("sequence.PredictSequence", fmt.Errorf("window length %d != predictor window %d", len(window), s.window))
	}
	z := s.bias
	for lag, row := range window {
		for j, name := range s.names {
			v := row[name]
			if features.IsMissing(v) {
				continue
			}
			z += s.weights[lag][j] * v
		}
	}
	return sigmoid(z), nil
}
