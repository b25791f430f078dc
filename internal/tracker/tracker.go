// Package tracker implements the performance tracker (spec §4.4, component
// C4): it records predictions against realised outcomes, derives rolling
// per-model metrics, and exposes weights back to the ensemble combiner
// (internal/ensemble).
package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
)

// idempotencyKey identifies one observation uniquely (spec §4.4 "writes
// are append-only with an idempotency key (model_id, prediction_ts)").
type idempotencyKey struct {
	modelID      string
	predictionAt time.Time
}

// Tracker holds the append-only performance observation log in memory,
// guarded the same exclusive-writer/shared-reader way as the registry
// (internal/models.Registry). The log is held in memory only; nothing
// writes it to the database.
type Tracker struct {
	mu      sync.RWMutex
	seen    map[idempotencyKey]bool
	byModel map[string][]domain.PerformanceObservation
}

// New constructs an empty tracker.
func New() *Tracker {
	return &Tracker{
		seen:    make(map[idempotencyKey]bool),
		byModel: make(map[string][]domain.PerformanceObservation),
	}
}

// Record appends a performance observation, rejecting duplicates
// defensively (spec §4.4 "it must drop duplicates defensively") and
// out-of-order writes within a model's log (spec §5 "out-of-order writes
// are rejected with StaleWrite").
func (t *Tracker) Record(obs domain.PerformanceObservation) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := idempotencyKey{modelID: obs.ModelID, predictionAt: obs.PredictionAt}
	if t.seen[key] {
		return nil // defensive duplicate drop, not an error
	}

	existing := t.byModel[obs.ModelID]
	if len(existing) > 0 && obs.PredictionAt.Before(existing[len(existing)-1].PredictionAt) {
		return apperr.New(apperr.StaleWrite, "tracker.Record", fmt.Errorf("prediction_ts %s precedes latest %s", obs.PredictionAt, existing[len(existing)-1].PredictionAt)).WithModel(obs.ModelID)
	}

	t.seen[key] = true
	t.byModel[obs.ModelID] = append(existing, obs)
	return nil
}

// Evaluate derives the realised direction and return for a prediction at
// horizon h given the close price at t and t+h (spec §4.4 "Evaluation").
func Evaluate(closeAtT, closeAtTPlusH float64) (domain.RealisedDirection, float64) {
	ret := (closeAtTPlusH - closeAtT) / closeAtT
	switch {
	case closeAtTPlusH > closeAtT:
		return domain.DirectionUp, ret
	case closeAtTPlusH < closeAtT:
		return domain.DirectionDown, ret
	default:
		return domain.DirectionFlat, ret
	}
}

// IsCorrect reports whether a prediction matches its realised direction
// (spec §4.4: "(probability > 0.5) <=> (realised direction = up)", flat
// outcomes excluded by the caller before this is invoked).
func IsCorrect(predictedProb float64, direction domain.RealisedDirection) bool {
	return (predictedProb > 0.5) == (direction == domain.DirectionUp)
}

// Observations returns a model's observation log within the trailing
// window ending at now, oldest first.
func (t *Tracker) Observations(modelID string, window time.Duration, now time.Time) []domain.PerformanceObservation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := now.Add(-window)
	all := t.byModel[modelID]
	out := make([]domain.PerformanceObservation, 0, len(all))
	for _, obs := range all {
		if !obs.RealisedAt.Before(cutoff) {
			out = append(out, obs)
		}
	}
	return out
}

// KnownModels returns the model_ids that have at least one recorded
// observation, sorted for deterministic iteration.
func (t *Tracker) KnownModels() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.byModel))
	for id := range t.byModel {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
