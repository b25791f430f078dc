package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/features"
	"github.com/indiatrader/core/internal/models"
)

func syntheticTrainingRows(n int) []models.TrainingRow {
	rows := make([]models.TrainingRow, n)
	for i := 0; i < n; i++ {
		up := i%2 == 0
		returnVal := -0.02
		if up {
			returnVal = 0.02
		}
		row := make(features.Row, len(features.Names()))
		for _, name := range features.Names() {
			row[name] = 0
		}
		row["return_1"] = returnVal
		row["rsi_14"] = 50
		label := 0
		if up {
			label = 1
		}
		rows[i] = models.TrainingRow{Row: row, Label: label}
	}
	return rows
}

func TestLogistic_TrainAndPredict(t *testing.T) {
	rows := syntheticTrainingRows(60)
	l := models.NewLogistic()
	ctx := models.TrainContext{MinRows: 10, Timeout: 5 * time.Second, FeatureSet: features.SchemaVersion}
	require.NoError(t, l.Train(ctx, rows))

	upRow := rows[0].Row
	p, err := l.Predict(upRow)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestLogistic_InsufficientData(t *testing.T) {
	l := models.NewLogistic()
	err := l.Train(models.TrainContext{MinRows: 100}, syntheticTrainingRows(5))
	require.Error(t, err)
}

func TestLogistic_SerializeRoundTrip(t *testing.T) {
	rows := syntheticTrainingRows(60)
	l := models.NewLogistic()
	ctx := models.TrainContext{MinRows: 10, Timeout: 5 * time.Second}
	require.NoError(t, l.Train(ctx, rows))

	blob, err := l.Serialize()
	require.NoError(t, err)

	restored := models.NewLogistic()
	require.NoError(t, restored.Deserialize(blob))

	for _, r := range rows[:5] {
		want, err := l.Predict(r.Row)
		require.NoError(t, err)
		got, err := restored.Predict(r.Row)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-9)
	}
}

func TestGBDT_TrainAndPredict(t *testing.T) {
	rows := syntheticTrainingRows(60)
	g := models.NewGBDT(10)
	ctx := models.TrainContext{MinRows: 10, Timeout: 5 * time.Second}
	require.NoError(t, g.Train(ctx, rows))

	p, err := g.Predict(rows[0].Row)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)
}

func TestGBDT_SerializeRoundTrip(t *testing.T) {
	rows := syntheticTrainingRows(60)
	g := models.NewGBDT(10)
	require.NoError(t, g.Train(models.TrainContext{MinRows: 10, Timeout: 5 * time.Second}, rows))

	blob, err := g.Serialize()
	require.NoError(t, err)

	restored := models.NewGBDT(10)
	require.NoError(t, restored.Deserialize(blob))

	want, err := g.Predict(rows[0].Row)
	require.NoError(t, err)
	got, err := restored.Predict(rows[0].Row)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}
