package features_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/features"
)

func syntheticSeries(n int) domain.Series {
	bars := make([]domain.Bar, n)
	price := 100.0
	base := time.Date(2026, 1, 1, 9, 15, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price += float64(i%7) - 3
		if price < 1 {
			price = 1
		}
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    float64(1000 + i*10),
		}
	}
	return domain.Series{Symbol: "RELIANCE", Bars: bars}
}

func TestCompute_InsufficientHistory(t *testing.T) {
	series := syntheticSeries(5)
	_, err := features.Compute(series, 4)
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.InsufficientHistory))
}

func TestCompute_NoLookahead(t *testing.T) {
	series := syntheticSeries(250)
	t0 := 220

	before, err := features.Compute(series, t0)
	require.NoError(t, err)

	shuffled := domain.Series{Symbol: series.Symbol, Bars: append([]domain.Bar(nil), series.Bars...)}
	rng := rand.New(rand.NewSource(1))
	tail := shuffled.Bars[t0+1:]
	rng.Shuffle(len(tail), func(i, j int) { tail[i], tail[j] = tail[j], tail[i] })

	after, err := features.Compute(shuffled, t0)
	require.NoError(t, err)

	for _, name := range features.Names() {
		bv, av := before[name], after[name]
		if features.IsMissing(bv) {
			assert.True(t, features.IsMissing(av), "feature %s expected missing in both", name)
			continue
		}
		assert.InDelta(t, bv, av, 1e-9, "feature %s changed after shuffling future bars", name)
	}
}

func TestMaterializeMatrix_WarmupMarkedMissing(t *testing.T) {
	series := syntheticSeries(260)
	matrix, err := features.MaterializeMatrix(series)
	require.NoError(t, err)
	require.Len(t, matrix.Rows, len(series.Bars))
	assert.Equal(t, features.SchemaVersion, matrix.Version)

	firstRow := matrix.Rows[0]
	assert.True(t, features.IsMissing(firstRow["sma_200"]))
	assert.True(t, features.IsMissing(firstRow["return_1"]))

	lastRow := matrix.Rows[len(matrix.Rows)-1]
	assert.False(t, features.IsMissing(lastRow["sma_200"]))
	assert.False(t, features.IsMissing(lastRow["return_1"]))
}

func TestMaterializeMatrix_EmptySeriesFails(t *testing.T) {
	_, err := features.MaterializeMatrix(domain.Series{Symbol: "RELIANCE"})
	require.Error(t, err)
	assert.True(t, apperr.Of(err, apperr.InsufficientHistory))
}
