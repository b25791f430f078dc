package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/indiatrader/core/internal/broker"
	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/core"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/events"
	"github.com/indiatrader/core/internal/features"
	"github.com/indiatrader/core/internal/marketdata"
	"github.com/indiatrader/core/internal/models"
	"github.com/indiatrader/core/internal/orders"
	"github.com/indiatrader/core/internal/tracker"
)

func syntheticSeries(symbol string, n int) domain.Series {
	bars := make([]domain.Bar, n)
	price := 100.0
	start := time.Date(2026, 1, 1, 9, 15, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price += 0.5
		bars[i] = domain.Bar{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price - 0.5,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10000,
		}
	}
	return domain.Series{Symbol: symbol, Bars: bars}
}

func trainedLogisticRegistry(t *testing.T) *models.Registry {
	t.Helper()
	reg := models.NewRegistry(t.TempDir())

	rows := make([]models.TrainingRow, 60)
	for i := range rows {
		row := make(features.Row, len(features.Names()))
		for _, name := range features.Names() {
			row[name] = 0
		}
		up := i%2 == 0
		label := 0
		row["return_1"] = -0.02
		if up {
			label = 1
			row["return_1"] = 0.02
		}
		rows[i] = models.TrainingRow{Row: row, Label: label}
	}

	predictor := models.NewLogistic()
	require.NoError(t, predictor.Train(models.TrainContext{MinRows: 10, Timeout: 5 * time.Second, FeatureSet: features.SchemaVersion}, rows))
	require.NoError(t, reg.Register("logistic-v1", predictor, domain.ModelMetadata{Version: "v1"}, nil))
	require.NoError(t, reg.Activate("logistic-v1"))
	return reg
}

func TestGenerateSignalEndToEnd(t *testing.T) {
	cfg := &config.Config{
		Timeframes:       []string{"1d"},
		TimeframeWeights: map[string]float64{"1d": 1.0},
		EnsembleMethod:   domain.EnsembleWeightedAverage,
		LabelThresholds: config.LabelThresholds{
			StrongBuyProb: 0.70, BuyProb: 0.55, StrongSellProb: 0.30, SellProb: 0.45, MinConfidence: 0.60,
		},
		LevelStyle: "swing",
		LevelConstants: map[string]config.LevelConstants{
			"swing": {KSL: 1.5, KT1: 2.5, KT2: 4.0},
		},
		TrackerWindowDays: 1,
		MinObservations:   0,
	}

	reg := trainedLogisticRegistry(t)
	trk := tracker.New()
	cache := marketdata.New(time.Minute, 16)
	bus := events.NewBus()
	router := orders.New(100000, nil, cache, nil, orders.Limits{MaxOrderQuantity: 1000, MaxPositionValue: 1_000_000}, zerolog.Nop())

	series := syntheticSeries("RELIANCE", 260)
	history := broker.NewStaticHistory(map[string]domain.Series{"RELIANCE": series})

	c := core.New(cfg, zerolog.Nop(), reg, trk, cache, bus, nil, router, nil, history, nil)

	signal, err := c.GenerateSignal(context.Background(), "RELIANCE", series.Bars[len(series.Bars)-1].Timestamp)
	require.NoError(t, err)
	require.NotEmpty(t, signal.Label)
	require.Contains(t, signal.PerModelPredictions, "1d/logistic-v1")
}

func TestGenerateSignalNoActiveModelsFails(t *testing.T) {
	cfg := &config.Config{
		Timeframes:       []string{"1d"},
		TimeframeWeights: map[string]float64{"1d": 1.0},
		EnsembleMethod:   domain.EnsembleWeightedAverage,
	}
	reg := models.NewRegistry(t.TempDir())
	trk := tracker.New()
	cache := marketdata.New(time.Minute, 16)
	history := broker.NewStaticHistory(nil)

	c := core.New(cfg, zerolog.Nop(), reg, trk, cache, events.NewBus(), nil, nil, nil, history, nil)
	_, err := c.GenerateSignal(context.Background(), "RELIANCE", time.Now())
	require.Error(t, err)
}
