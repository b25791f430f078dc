package domain

import "time"

// Label is the discrete trading decision emitted by the ensemble combiner.
type Label string

const (
	LabelStrongSell Label = "STRONG_SELL"
	LabelSell       Label = "SELL"
	LabelHold       Label = "HOLD"
	LabelBuy        Label = "BUY"
	LabelStrongBuy  Label = "STRONG_BUY"
)

// SignalStatus tracks the lifecycle of a signal record for later scoring.
type SignalStatus string

const (
	SignalPending  SignalStatus = "pending"
	SignalRealised SignalStatus = "realised"
	SignalExpired  SignalStatus = "expired"
)

// EnsembleMethod selects how per-model predictions are fused at a timeframe.
type EnsembleMethod string

const (
	EnsembleWeightedAverage EnsembleMethod = "weighted_average"
	EnsembleMajorityVote    EnsembleMethod = "majority_vote"
	EnsembleStacking        EnsembleMethod = "stacking"
)

// Prediction is a single model's probability-of-up estimate for one ticker
// at one timestamp. Immutable once written.
type Prediction struct {
	ModelID         string    `json:"model_id"`
	Ticker          string    `json:"ticker"`
	AsOf            time.Time `json:"as_of_ts"`
	ProbabilityUp   float64   `json:"probability_up"`
	ModelVersion    string    `json:"model_version"`
	FeatureVersion  string    `json:"feature_version"`
}

// ModelDiagnostic records a per-model failure surfaced in a signal's
// diagnostics (§7 Model errors policy: exclude, don't crash).
type ModelDiagnostic struct {
	ModelID string `json:"model_id"`
	Kind    string `json:"kind"` // e.g. "PredictionFailed", "SchemaMismatch"
	Detail  string `json:"detail"`
}

// TimeframeResult is one timeframe's fused probability/confidence pair,
// produced by the per-timeframe fusion step before multi-timeframe consensus.
type TimeframeResult struct {
	Timeframe          string             `json:"timeframe"`
	Probability        float64            `json:"probability"`
	Confidence         float64            `json:"confidence"`
	ComponentWeights   map[string]float64 `json:"component_weights"`
	PerModelPredictions map[string]float64 `json:"per_model_predictions"`
	Diagnostics        []ModelDiagnostic  `json:"diagnostics,omitempty"`
}

// SignalRecord is the final discrete trading decision for one ticker at one
// point in time, including the risk levels derived from ATR.
type SignalRecord struct {
	Ticker              string             `json:"ticker"`
	AsOf                time.Time          `json:"as_of_ts"`
	Label               Label              `json:"label"`
	Probability         float64            `json:"probability"`
	Confidence          float64            `json:"confidence"`
	Entry               float64            `json:"entry"`
	StopLoss            float64            `json:"stop_loss"`
	Target1             float64            `json:"target_1"`
	Target2             float64            `json:"target_2"`
	PerModelPredictions map[string]float64 `json:"per_model_predictions"`
	EnsembleMethod      EnsembleMethod     `json:"ensemble_method"`
	ComponentWeights    map[string]float64 `json:"component_weights"`
	Status              SignalStatus       `json:"status"`
	Diagnostics         []ModelDiagnostic  `json:"diagnostics,omitempty"`
}

// PredictorKind is the closed set of predictor implementations (§4.2 /
// Design Notes "dynamic typing → tagged variants").
type PredictorKind string

const (
	PredictorLogistic PredictorKind = "logistic"
	PredictorGBDT     PredictorKind = "gbdt"
	PredictorSequence PredictorKind = "sequence"
)

// ModelMetadata is the registry's durable record for one predictor.
type ModelMetadata struct {
	ModelID           string            `json:"model_id"`
	Kind              PredictorKind     `json:"kind"`
	Version           string            `json:"version"`
	FeatureSetVersion string            `json:"feature_set_version"`
	TrainingWindow    string            `json:"training_window"`
	Hyperparameters   map[string]string `json:"hyperparameters"`
	Active            bool              `json:"active"`
	CreatedAt         time.Time         `json:"creation_ts"`
	LastEvaluationAt  time.Time         `json:"last_evaluation_ts"`
	RollingMetrics    RollingMetrics    `json:"rolling_metrics"`
}

// RealisedDirection is the observed outcome of a prediction's horizon.
type RealisedDirection string

const (
	DirectionUp   RealisedDirection = "up"
	DirectionDown RealisedDirection = "down"
	DirectionFlat RealisedDirection = "flat"
)

// PerformanceObservation is one append-only row in the prediction-vs-outcome
// log that the tracker aggregates into rolling metrics.
type PerformanceObservation struct {
	ModelID           string            `json:"model_id"`
	PredictionAt      time.Time         `json:"prediction_ts"`
	RealisedAt        time.Time         `json:"realised_ts"`
	PredictedProb     float64           `json:"predicted_prob"`
	RealisedDirection RealisedDirection `json:"realised_direction"`
	RealisedReturn    float64           `json:"realised_return"`
}

// RollingMetrics is the tracker's aggregation over a model's rolling window.
type RollingMetrics struct {
	Accuracy      float64 `json:"accuracy"`
	WinRate       float64 `json:"win_rate"`
	PseudoSharpe  float64 `json:"pseudo_sharpe"`
	SampleCount   int     `json:"sample_count"`
	Insufficient  bool    `json:"insufficient"`
}
