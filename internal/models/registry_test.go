package models_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/features"
	"github.com/indiatrader/core/internal/models"
)

func trainedLogistic(t *testing.T) *models.Logistic {
	t.Helper()
	l := models.NewLogistic()
	rows := syntheticTrainingRows(40)
	require.NoError(t, l.Train(models.TrainContext{MinRows: 10, Timeout: 5 * time.Second}, rows))
	return l
}

func TestRegistry_RegisterActivateGet(t *testing.T) {
	dir := t.TempDir()
	reg := models.NewRegistry(dir)
	l := trainedLogistic(t)

	meta := domain.ModelMetadata{Kind: domain.PredictorLogistic, Version: "v1"}
	require.NoError(t, reg.Register("m1", l, meta, map[string]bool{features.SchemaVersion: true}))

	assert.Empty(t, reg.ListActive())

	require.NoError(t, reg.Activate("m1"))
	assert.Equal(t, []string{"m1"}, reg.ListActive())

	predictor, gotMeta, err := reg.Get("m1")
	require.NoError(t, err)
	assert.NotNil(t, predictor)
	assert.True(t, gotMeta.Active)

	require.NoError(t, reg.Deactivate("m1"))
	assert.Empty(t, reg.ListActive())

	assert.FileExists(t, filepath.Join(dir, "m1.model"))
}

func TestRegistry_DuplicateRegisterFails(t *testing.T) {
	dir := t.TempDir()
	reg := models.NewRegistry(dir)
	l := trainedLogistic(t)
	meta := domain.ModelMetadata{Kind: domain.PredictorLogistic}

	require.NoError(t, reg.Register("m1", l, meta, nil))
	err := reg.Register("m1", l, meta, nil)
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.AlreadyExists))
}

func TestRegistry_UnknownFeatureVersionRejected(t *testing.T) {
	dir := t.TempDir()
	reg := models.NewRegistry(dir)
	l := trainedLogistic(t)
	meta := domain.ModelMetadata{Kind: domain.PredictorLogistic}

	err := reg.Register("m1", l, meta, map[string]bool{"v999": true})
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.UnknownVersion))
}

func TestRegistry_GetMissingFails(t *testing.T) {
	reg := models.NewRegistry(t.TempDir())
	_, _, err := reg.Get("missing")
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.NotFound))
}

func TestRegistry_LoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	reg := models.NewRegistry(dir)
	l := trainedLogistic(t)
	meta := domain.ModelMetadata{Kind: domain.PredictorLogistic, Version: "v1"}
	require.NoError(t, reg.Register("m1", l, meta, nil))

	fresh := models.NewRegistry(dir)
	require.NoError(t, fresh.Load("m1"))

	predictor, gotMeta, err := fresh.Get("m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PredictorLogistic, gotMeta.Kind)

	want, err := l.Predict(syntheticTrainingRows(1)[0].Row)
	require.NoError(t, err)
	got, err := predictor.Predict(syntheticTrainingRows(1)[0].Row)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}
