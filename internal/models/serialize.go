package models

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// logisticState and gbdtState are the exported, msgpack-tagged mirrors of
// Logistic and GBDT's private fields: msgpack (like every encoding/*
// marshaler) only sees exported fields, so serialization goes through these
// rather than the predictor structs directly. This is the same
// envelope-struct pattern the teacher uses at its REST boundary
// (clients/tradernet/client.go's ServiceResponse wrapping an opaque
// payload), applied here to the registry's persistence boundary instead of
// an HTTP one.
type logisticState struct {
	FeatureSetVersion string    `msgpack:"feature_set_version"`
	Names             []string  `msgpack:"names"`
	Weights           []float64 `msgpack:"weights"`
	Bias              float64   `msgpack:"bias"`
	L2                float64   `msgpack:"l2"`
}

type stumpState struct {
	Feature   string  `msgpack:"feature"`
	Threshold float64 `msgpack:"threshold"`
	Gamma     float64 `msgpack:"gamma"`
}

type gbdtState struct {
	FeatureSetVersion string       `msgpack:"feature_set_version"`
	Stumps            []stumpState `msgpack:"stumps"`
	LearningRate      float64      `msgpack:"learning_rate"`
	Rounds            int          `msgpack:"rounds"`
}

// Serialize encodes the fitted weights, bias and column order as msgpack.
func (l *Logistic) Serialize() ([]byte, error) {
	if l.weights == nil {
		return nil, fmt.Errorf("logistic: cannot serialize an untrained model")
	}
	state := logisticState{
		FeatureSetVersion: l.featureSetVersion,
		Names:             l.names,
		Weights:           l.weights,
		Bias:              l.bias,
		L2:                l.l2,
	}
	return msgpack.Marshal(&state)
}

// Deserialize restores a Logistic from a blob written by Serialize. The
// restored model reproduces bit-identical predictions for the same inputs:
// weights, bias and column order all round-trip exactly through msgpack's
// float64 and string encodings.
func (l *Logistic) Deserialize(blob []byte) error {
	var state logisticState
	if err := msgpack.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("logistic: deserialize: %w", err)
	}
	l.featureSetVersion = state.FeatureSetVersion
	l.names = state.Names
	l.weights = state.Weights
	l.bias = state.Bias
	l.l2 = state.L2
	return nil
}

// Serialize encodes the fitted boosting rounds as msgpack.
func (g *GBDT) Serialize() ([]byte, error) {
	if len(g.stumps) == 0 {
		return nil, fmt.Errorf("gbdt: cannot serialize an untrained model")
	}
	stumps := make([]stumpState, len(g.stumps))
	for i, s := range g.stumps {
		stumps[i] = stumpState{Feature: s.feature, Threshold: s.threshold, Gamma: s.gamma}
	}
	state := gbdtState{
		FeatureSetVersion: g.featureSetVersion,
		Stumps:            stumps,
		LearningRate:      g.learningRate,
		Rounds:            g.rounds,
	}
	return msgpack.Marshal(&state)
}

// Deserialize restores a GBDT from a blob written by Serialize.
func (g *GBDT) Deserialize(blob []byte) error {
	var state gbdtState
	if err := msgpack.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("gbdt: deserialize: %w", err)
	}
	stumps := make([]stump, len(state.Stumps))
	for i, s := range state.Stumps {
		stumps[i] = stump{feature: s.Feature, threshold: s.Threshold, gamma: s.Gamma}
	}
	g.featureSetVersion = state.FeatureSetVersion
	g.stumps = stumps
	g.learningRate = state.LearningRate
	g.rounds = state.Rounds
	return nil
}

type sequenceState struct {
	FeatureSetVersion string      `msgpack:"feature_set_version"`
	Names             []string    `msgpack:"names"`
	Window            int         `msgpack:"window"`
	Weights           [][]float64 `msgpack:"weights"`
	Bias              float64     `msgpack:"bias"`
}

// Serialize encodes the fitted per-lag weight vectors as msgpack.
func (s *Sequence) Serialize() ([]byte, error) {
	if s.weights == nil {
		return nil, fmt.Errorf("sequence: cannot serialize an untrained model")
	}
	state := sequenceState{
		FeatureSetVersion: s.featureSetVersion,
		Names:             s.names,
		Window:            s.window,
		Weights:           s.weights,
		Bias:              s.bias,
	}
	return msgpack.Marshal(&state)
}

// Deserialize restores a Sequence from a blob written by Serialize.
func (s *Sequence) Deserialize(blob []byte) error {
	var state sequenceState
	if err := msgpack.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("sequence: deserialize: %w", err)
	}
	s.featureSetVersion = state.FeatureSetVersion
	s.names = state.Names
	s.window = state.Window
	s.weights = state.Weights
	s.bias = state.Bias
	return nil
}
