package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/database"
	"github.com/indiatrader/core/internal/domain"
)

// registrySchemaVersion is the on-disk format version for registry entry
// files (spec §6 "all formats are versioned by a leading magic number and
// schema version").
const registrySchemaVersion uint32 = 1

// entry pairs a predictor with its durable metadata, one per registered
// model_id.
type entry struct {
	predictor Predictor
	metadata  domain.ModelMetadata
}

// entryFile is the exported, msgpack-tagged payload written inside each
// versioned registry file: metadata plus the predictor's own serialized
// blob, so a single atomic rename durably covers both at once.
type entryFile struct {
	Metadata       domain.ModelMetadata `msgpack:"metadata"`
	PredictorBytes []byte               `msgpack:"predictor"`
}

// Registry owns the set of predictors and their metadata (spec §4.2
// "Registry contract"). It is the registry.Register/activate/get surface
// referenced throughout SPEC_FULL.md's control flow, and one of the two
// process-wide explicitly-initialised handles the spec allows (the other
// being the order router).
//
// Locking follows the teacher's BaseRepository convention
// (internal/database/repositories/base.go wraps a *database.DB behind a
// small method surface) generalized to an exclusive-writer/shared-reader
// lock, per spec §4.2 "Thread-safe: concurrent readers; writers exclude
// readers for the duration of a mutation."
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	dir     string // directory holding one versioned file per model_id
}

// NewRegistry constructs an empty registry backed by dir for persistence.
func NewRegistry(dir string) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		dir:     dir,
	}
}

// Register adds a new predictor under model_id, persisting it immediately.
// Fails with AlreadyExists if model_id collides, or UnknownVersion if the
// predictor's feature_set_version is not in knownFeatureVersions (the
// version check is skipped when that map is nil).
func (r *Registry) Register(modelID string, predictor Predictor, metadata domain.ModelMetadata, knownFeatureVersions map[string]bool) error {
	if knownFeatureVersions != nil && !knownFeatureVersions[predictor.FeatureSetVersion()] {
		return apperr.New(apperr.UnknownVersion, "registry.Register", nil).WithModel(modelID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[modelID]; exists {
		return apperr.New(apperr.AlreadyExists, "registry.Register", nil).WithModel(modelID)
	}

	metadata.ModelID = modelID
	metadata.FeatureSetVersion = predictor.FeatureSetVersion()
	if metadata.CreatedAt.IsZero() {
		metadata.CreatedAt = time.Now().UTC()
	}

	e := &entry{predictor: predictor, metadata: metadata}
	if err := r.persist(modelID, e); err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.Register", err).WithModel(modelID)
	}
	r.entries[modelID] = e
	return nil
}

// Activate flips a model's active flag so the ensemble will consult it.
func (r *Registry) Activate(modelID string) error {
	return r.setActive(modelID, true)
}

// Deactivate flips a model's active flag off; the model remains addressable
// via Get but is never consulted by the ensemble (spec §4.2).
func (r *Registry) Deactivate(modelID string) error {
	return r.setActive(modelID, false)
}

func (r *Registry) setActive(modelID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[modelID]
	if !ok {
		return apperr.New(apperr.NotFound, "registry.setActive", nil).WithModel(modelID)
	}
	e.metadata.Active = active
	if err := r.persist(modelID, e); err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.setActive", err).WithModel(modelID)
	}
	return nil
}

// ListActive returns the model_ids of every currently-active model.
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, e := range r.entries {
		if e.metadata.Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// ListAll returns the metadata for every registered model, active or not,
// for diagnostics and the GET /models endpoint.
func (r *Registry) ListAll() []domain.ModelMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ModelMetadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.metadata)
	}
	return out
}

// Get returns the predictor and metadata for model_id, or NotFound.
func (r *Registry) Get(modelID string) (Predictor, domain.ModelMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[modelID]
	if !ok {
		return nil, domain.ModelMetadata{}, apperr.New(apperr.NotFound, "registry.Get", nil).WithModel(modelID)
	}
	return e.predictor, e.metadata, nil
}

// UpdateMetrics updates a model's rolling metrics and last-evaluation
// timestamp.
func (r *Registry) UpdateMetrics(modelID string, metrics domain.RollingMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[modelID]
	if !ok {
		return apperr.New(apperr.NotFound, "registry.UpdateMetrics", nil).WithModel(modelID)
	}
	e.metadata.RollingMetrics = metrics
	e.metadata.LastEvaluationAt = time.Now().UTC()
	if err := r.persist(modelID, e); err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.UpdateMetrics", err).WithModel(modelID)
	}
	return nil
}

// persist writes e to disk via write-new-then-swap. Caller must hold mu.
func (r *Registry) persist(modelID string, e *entry) error {
	blob, err := e.predictor.Serialize()
	if err != nil {
		return fmt.Errorf("serializing predictor: %w", err)
	}
	payload, err := msgpack.Marshal(&entryFile{Metadata: e.metadata, PredictorBytes: blob})
	if err != nil {
		return fmt.Errorf("encoding registry entry: %w", err)
	}
	return database.WriteVersioned(r.path(modelID), registrySchemaVersion, payload)
}

func (r *Registry) path(modelID string) string {
	return filepath.Join(r.dir, modelID+".model")
}

// Load restores a previously-registered model from disk into the in-memory
// registry, reconstructing the correct concrete Predictor type from
// metadata.Kind. Used at process start to repopulate the registry from the
// persisted registry/ directory (spec §6 "registry/ (one file per model:
// metadata + serialized predictor)").
func (r *Registry) Load(modelID string) error {
	_, payload, err := database.ReadVersioned(r.path(modelID), registrySchemaVersion)
	if err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.Load", err).WithModel(modelID)
	}

	var file entryFile
	if err := msgpack.Unmarshal(payload, &file); err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.Load", err).WithModel(modelID)
	}

	predictor, err := newPredictorForKind(file.Metadata.Kind)
	if err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.Load", err).WithModel(modelID)
	}
	if err := predictor.Deserialize(file.PredictorBytes); err != nil {
		return apperr.New(apperr.RegistryCorruption, "registry.Load", err).WithModel(modelID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[modelID] = &entry{predictor: predictor, metadata: file.Metadata}
	return nil
}

// LoadAll scans the registry directory for previously-persisted model
// files and loads each one, for use at process start. A directory that
// doesn't exist yet (first run) is treated as empty, not an error.
func (r *Registry) LoadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading registry directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".model") {
			continue
		}
		modelID := strings.TrimSuffix(e.Name(), ".model")
		if err := r.Load(modelID); err != nil {
			return fmt.Errorf("loading model %q: %w", modelID, err)
		}
	}
	return nil
}

func newPredictorForKind(kind domain.PredictorKind) (Predictor, error) {
	switch kind {
	case domain.PredictorLogistic:
		return NewLogistic(), nil
	case domain.PredictorGBDT:
		return NewGBDT(0), nil
	case domain.PredictorSequence:
		return NewSequence(0), nil
	default:
		return nil, fmt.Errorf("unknown predictor kind %q", kind)
	}
}
