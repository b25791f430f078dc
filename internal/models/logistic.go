package models

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/features"
)

// Logistic is the always-available baseline predictor (spec §4.2 "always
// available; acts as baseline and fallback"): a linear model over the
// declared feature set, fit by minimising regularised logistic loss.
//
// Training is grounded on the teacher's mean-variance optimizer
// (internal/modules/optimization/mv_optimizer.go), which drives
// gonum.org/v1/gonum/optimize.Minimize with a hand-written objective and
// falls back from BFGS to Nelder-Mead on non-convergence; Logistic follows
// the same two-method fallback for the same reason — BFGS needs a
// well-behaved gradient near the optimum, Nelder-Mead recovers when the
// loss surface is pathological (e.g. near-separable training data).
type Logistic struct {
	featureSetVersion string
	names             []string // column order, frozen at Train time
	weights           []float64
	bias              float64
	l2                float64
}

// NewLogistic constructs an untrained logistic predictor bound to the
// current feature schema.
func NewLogistic() *Logistic {
	return &Logistic{
		featureSetVersion: features.SchemaVersion,
		names:             features.Names(),
		l2:                0.01,
	}
}

func (l *Logistic) Kind() domain.PredictorKind { return domain.PredictorLogistic }

func (l *Logistic) FeatureSetVersion() string { return l.featureSetVersion }

func (l *Logistic) Train(ctx TrainContext, rows []TrainingRow) error {
	if len(rows) < ctx.MinRows {
		return newInsufficientData("logistic.Train")
	}
	if ctx.FeatureSet != "" && ctx.FeatureSet != l.featureSetVersion {
		return newSchemaMismatch("logistic.Train")
	}

	n := len(rows)
	p := len(l.names)
	x := make([][]float64, n)
	y := make([]float64, n)
	for i, r := range rows {
		x[i] = make([]float64, p)
		for j, name := range l.names {
			v := r.Row[name]
			if features.IsMissing(v) {
				v = 0
			}
			x[i][j] = v
		}
		y[i] = float64(r.Label)
	}

	start := time.Now()
	objective := func(theta []float64) float64 {
		w := theta[:p]
		b := theta[p]
		loss := 0.0
		for i := 0; i < n; i++ {
			z := b + floats.Dot(w, x[i])
			loss += logLoss(z, y[i])
		}
		loss /= float64(n)
		loss += l.l2 * floats.Dot(w, w)
		return loss
	}
	gradient := func(grad, theta []float64) {
		w := theta[:p]
		b := theta[p]
		for j := range grad {
			grad[j] = 0
		}
		for i := 0; i < n; i++ {
			z := b + floats.Dot(w, x[i])
			err := sigmoid(z) - y[i]
			for j := 0; j < p; j++ {
				grad[j] += err * x[i][j]
			}
			grad[p] += err
		}
		for j := 0; j < p; j++ {
			grad[j] = grad[j]/float64(n) + 2*l.l2*w[j]
		}
		grad[p] /= float64(n)
	}

	problem := optimize.Problem{Func: objective, Grad: gradient}
	initial := make([]float64, p+1)

	settings := &optimize.Settings{}
	if ctx.Timeout > 0 {
		settings.Runtime = ctx.Timeout
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !convergedStatus(result) {
		result, err = optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	}
	if time.Since(start) > ctx.Timeout && ctx.Timeout > 0 {
		return newTrainingTimedOut("logistic.Train")
	}
	if err != nil {
		return newTrainingFailed("logistic.Train", err)
	}
	if !convergedStatus(result) {
		return newTrainingFailed("logistic.Train", fmt.Errorf("optimizer status %v", result.Status))
	}

	l.weights = append([]float64(nil), result.X[:p]...)
	l.bias = result.X[p]
	return nil
}

func convergedStatus(result *optimize.Result) bool {
	if result == nil {
		return false
	}
	switch result.Status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}

func (l *Logistic) Predict(row features.Row) (float64, error) {
	if l.weights == nil {
		return 0, newPredictionFailed("logistic.Predict", fmt.Errorf("model not trained"))
	}
	z := l.bias
	for j, name := range l.names {
		v := row[name]
		if features.IsMissing(v) {
			continue
		}
		z += l.weights[j] * v
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func logLoss(z, y float64) float64 {
	p := sigmoid(z)
	const eps = 1e-12
	p = math.Min(math.Max(p, eps), 1-eps)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}
