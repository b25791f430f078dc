// Package models implements the model registry and predictors (spec §4.2,
// component C2): the set of trainable probability estimators the ensemble
// (internal/ensemble) fuses, plus their durable metadata and lifecycle.
package models

import (
	"time"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/features"
)

// TrainingRow pairs one feature row with its binary label: 1 if
// close[t+h] > close[t] for the training run's horizon h, 0 otherwise. Rows
// lacking a realised t+h are excluded by the caller before Train is called.
type TrainingRow struct {
	Row   features.Row
	Label int
}

// Predictor is the common contract every model kind satisfies (spec §4.2
// "Predictor contract (common to all kinds)").
type Predictor interface {
	// Kind reports which predictor implementation this is.
	Kind() domain.PredictorKind

	// FeatureSetVersion is the feature schema this predictor was trained
	// against; at predict time a model whose recorded version differs from
	// features.SchemaVersion is skipped and reported as a SchemaMismatch
	// diagnostic.
	FeatureSetVersion() string

	// Train fits internal state from rows. Returns InsufficientData if
	// fewer than ctx.MinRows rows are supplied, TrainingFailed if the
	// underlying fit does not converge or otherwise errors.
	Train(ctx TrainContext, rows []TrainingRow) error

	// Predict returns probability_up for a single feature row, using only
	// the current fitted state. Deterministic given that state.
	Predict(row features.Row) (float64, error)

	// Serialize and Deserialize round-trip a fitted predictor's state.
	// A deserialized predictor must reproduce bit-identical predictions
	// (within float64 tolerance) to the original for the same inputs.
	Serialize() ([]byte, error)
	Deserialize(blob []byte) error
}

// SequencePredictor is the optional multi-row variant of Predictor: it
// consumes a trailing window of feature rows instead of a single row (spec
// §4.2 "Sequence model ... consumes a trailing window of feature rows").
type SequencePredictor interface {
	Predictor
	PredictSequence(window []features.Row) (float64, error)
	WindowSize() int
}

// TrainContext carries the per-run parameters Train needs beyond the rows
// themselves: the minimum row count below which training refuses to run,
// and a wall-clock ceiling above which an in-progress fit is abandoned
// (spec §5 "Training operations ... carry their own internal wall-clock
// ceiling and fail with TrainingTimedOut on breach").
type TrainContext struct {
	MinRows    int
	Timeout    time.Duration
	FeatureSet string
}

func newInsufficientData(op string) error {
	return apperr.New(apperr.InsufficientData, op, nil)
}

func newTrainingFailed(op string, err error) error {
	return apperr.New(apperr.TrainingFailed, op, err)
}

func newTrainingTimedOut(op string) error {
	return apperr.New(apperr.TrainingTimedOut, op, nil)
}

func newPredictionFailed(op string, err error) error {
	return apperr.New(apperr.PredictionFailed, op, err)
}

func newSchemaMismatch(op string) error {
	return apperr.New(apperr.SchemaMismatch, op, nil)
}
