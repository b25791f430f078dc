// Package core wires together the signal pipeline's components into one
// explicitly-constructed handle (spec Design Notes: "process-wide globals
// are replaced by an explicit Core handle passed to every collaborator
// that needs it, rather than package-level state"). Core owns the model
// registry, the performance tracker, the market-data cache and stream
// manager, the order router, the snapshotter, and the historical-data
// source, and exposes the one read path (GenerateSignal) that fuses all
// of them together.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/indiatrader/core/internal/apperr"
	"github.com/indiatrader/core/internal/broker"
	"github.com/indiatrader/core/internal/config"
	"github.com/indiatrader/core/internal/database"
	"github.com/indiatrader/core/internal/domain"
	"github.com/indiatrader/core/internal/ensemble"
	"github.com/indiatrader/core/internal/events"
	"github.com/indiatrader/core/internal/features"
	"github.com/indiatrader/core/internal/marketdata"
	"github.com/indiatrader/core/internal/models"
	"github.com/indiatrader/core/internal/orders"
	"github.com/indiatrader/core/internal/portfolio"
	"github.com/indiatrader/core/internal/tracker"
)

// Core is the single explicitly-constructed handle wiring every
// component. Nothing in this package (or any package it calls into) keeps
// process-wide mutable state outside of Core's own fields, Registry and
// Router.
type Core struct {
	Config  *config.Config
	Log     zerolog.Logger

	Registry  *models.Registry
	Tracker   *tracker.Tracker
	Cache     *marketdata.Cache
	Bus       *events.Bus
	Stream    *marketdata.StreamManager
	Router    *orders.Router
	Snapshots *portfolio.Snapshotter

	History broker.HistoricalSource

	predictionsDB *database.DB
}

// New wires a Core from already-constructed collaborators. The hosting
// process (cmd/server) is responsible for opening databases and building
// each collaborator; Core only composes them. predictionsDB backs the
// append-only prediction log (spec §6 predictions.log) that
// fuseTimeframe writes to as each model predicts.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	registry *models.Registry,
	trk *tracker.Tracker,
	cache *marketdata.Cache,
	bus *events.Bus,
	stream *marketdata.StreamManager,
	router *orders.Router,
	snapshots *portfolio.Snapshotter,
	history broker.HistoricalSource,
	predictionsDB *database.DB,
) *Core {
	return &Core{
		Config:        cfg,
		Log:           log.With().Str("component", "core").Logger(),
		Registry:      registry,
		Tracker:       trk,
		Cache:         cache,
		Bus:           bus,
		Stream:        stream,
		Router:        router,
		Snapshots:     snapshots,
		History:       history,
		predictionsDB: predictionsDB,
	}
}

// GenerateSignal runs the full pipeline for one ticker: fetch historical
// bars per configured timeframe, compute features, predict with every
// active model, fuse per-timeframe then across timeframes, map to a label
// and derive trading levels (spec overview's end-to-end control flow:
// "C1 computes features ... C2 predicts ... C3 fuses ... returned").
// Individual model failures are recorded as diagnostics and excluded
// rather than aborting the whole signal (spec §7 "Model errors ... exclude
// the offending model from the current ensemble call").
func (c *Core) GenerateSignal(ctx context.Context, ticker string, asOf time.Time) (domain.SignalRecord, error) {
	activeModels := c.Registry.ListActive()
	if len(activeModels) == 0 {
		return domain.SignalRecord{}, apperr.New(apperr.NoActivePredictors, "core.GenerateSignal", nil).WithSymbol(ticker)
	}

	fusions := make([]fusionWithInternal, 0, len(c.Config.Timeframes))
	var referencePrice, atr float64
	var haveReference bool

	for _, tf := range c.Config.Timeframes {
		fusion, ref, a, err := c.fuseTimeframe(ctx, ticker, tf, asOf, activeModels)
		if err != nil {
			c.Log.Warn().Err(err).Str("ticker", ticker).Str("timeframe", tf).Msg("timeframe fusion skipped")
			continue
		}
		fusions = append(fusions, fusion)
		if !haveReference && tf == primaryTimeframe(c.Config.Timeframes) {
			referencePrice, atr, haveReference = ref, a, true
		}
	}
	if len(fusions) == 0 {
		return domain.SignalRecord{}, apperr.New(apperr.NoActivePredictors, "core.GenerateSignal", nil).WithSymbol(ticker)
	}
	if !haveReference {
		// fall back to whichever timeframe did succeed, the last one fused
		referencePrice, atr = fusions[len(fusions)-1].referencePrice, fusions[len(fusions)-1].atr
	}

	levelConstants := c.Config.LevelConstants[c.Config.LevelStyle]
	return ensemble.BuildSignal(ticker, asOf, c.Config.EnsembleMethod, stripInternal(fusions), c.Config.TimeframeWeights, c.Config.LabelThresholds, levelConstants, referencePrice, atr)
}

// fusionWithInternal carries the reference price/ATR alongside the public
// ensemble.TimeframeFusion shape, purely for this package's internal
// plumbing between timeframes.
type fusionWithInternal struct {
	ensemble.TimeframeFusion
	referencePrice float64
	atr            float64
}

func stripInternal(in []fusionWithInternal) []ensemble.TimeframeFusion {
	out := make([]ensemble.TimeframeFusion, len(in))
	for i, f := range in {
		out[i] = f.TimeframeFusion
	}
	return out
}

func (c *Core) fuseTimeframe(ctx context.Context, ticker, timeframe string, asOf time.Time, activeModels []string) (fusionWithInternal, float64, float64, error) {
	series, err := c.History.GetHistoricalOHLCV(ctx, ticker, asOf.Add(-historyWindow(timeframe)), asOf, timeframe)
	if err != nil {
		return fusionWithInternal{}, 0, 0, err
	}
	if len(series.Bars) == 0 {
		return fusionWithInternal{}, 0, 0, apperr.New(apperr.InsufficientHistory, "core.fuseTimeframe", nil).WithSymbol(ticker)
	}

	row, err := features.Compute(series, len(series.Bars)-1)
	if err != nil {
		return fusionWithInternal{}, 0, 0, err
	}

	metrics := make(map[string]domain.RollingMetrics, len(activeModels))
	for _, id := range activeModels {
		metrics[id] = c.Tracker.RollingMetrics(id, time.Duration(c.Config.TrackerWindowDays)*24*time.Hour, c.Config.MinObservations, asOf)
	}
	weights := tracker.DeriveWeights(activeModels, metrics)
	weightByID := make(map[string]float64, len(weights))
	for _, w := range weights {
		weightByID[w.ModelID] = w.Weight
	}

	preds := make([]ensemble.ModelPrediction, 0, len(activeModels))
	perModel := make(map[string]float64, len(activeModels))
	var diagnostics []domain.ModelDiagnostic

	for _, id := range activeModels {
		predictor, meta, err := c.Registry.Get(id)
		if err != nil {
			diagnostics = append(diagnostics, diagnosticFrom(id, err))
			continue
		}
		if meta.FeatureSetVersion != features.SchemaVersion {
			diagnostics = append(diagnostics, domain.ModelDiagnostic{ModelID: id, Kind: string(apperr.SchemaMismatch), Detail: fmt.Sprintf("model trained on %s, engine is %s", meta.FeatureSetVersion, features.SchemaVersion)})
			continue
		}
		prob, err := predictor.Predict(row)
		if err != nil {
			diagnostics = append(diagnostics, diagnosticFrom(id, err))
			continue
		}
		perModel[id] = prob
		preds = append(preds, ensemble.ModelPrediction{ModelID: id, Prob: prob, Weight: weightByID[id]})
		c.recordPrediction(id, meta.Version, ticker, asOf, prob)
	}

	if len(preds) == 0 {
		return fusionWithInternal{}, 0, 0, apperr.New(apperr.NoActivePredictors, "core.fuseTimeframe", nil).WithSymbol(ticker)
	}

	prob, confidence, componentWeights, err := ensemble.FuseTimeframe(c.Config.EnsembleMethod, preds)
	if err != nil {
		return fusionWithInternal{}, 0, 0, err
	}

	atr := row["atr_14"]
	if features.IsMissing(atr) {
		return fusionWithInternal{}, 0, 0, apperr.New(apperr.InsufficientHistory, "core.fuseTimeframe", nil).WithSymbol(ticker)
	}

	return fusionWithInternal{
		TimeframeFusion: ensemble.TimeframeFusion{
			Timeframe:           timeframe,
			Prob:                prob,
			Confidence:          confidence,
			ComponentWeights:    componentWeights,
			PerModelPredictions: perModel,
			Diagnostics:         diagnostics,
		},
		referencePrice: series.Bars[len(series.Bars)-1].Close,
		atr:            atr,
	}, series.Bars[len(series.Bars)-1].Close, atr, nil
}

// recordPrediction appends one row to the predictions log (spec §6, §8
// idempotency on (model_id, as_of_ts)). A write failure is logged, not
// propagated — the log is an audit trail for the tracker's future
// Evaluate pass, not on the critical path of returning a signal.
func (c *Core) recordPrediction(modelID, modelVersion, ticker string, asOf time.Time, prob float64) {
	if c.predictionsDB == nil {
		return
	}
	_, err := c.predictionsDB.Exec(
		`INSERT OR IGNORE INTO predictions
			(model_id, ticker, as_of_ts, probability_up, model_version, feature_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		modelID, ticker, asOf.Unix(), prob, modelVersion, features.SchemaVersion, time.Now().UTC().Unix(),
	)
	if err != nil {
		c.Log.Warn().Err(err).Str("model_id", modelID).Str("ticker", ticker).Msg("failed to record prediction")
	}
}

func diagnosticFrom(modelID string, err error) domain.ModelDiagnostic {
	kind := "PredictionFailed"
	if e, ok := err.(*apperr.Error); ok {
		kind = string(e.Kind)
	}
	return domain.ModelDiagnostic{ModelID: modelID, Kind: kind, Detail: err.Error()}
}

// primaryTimeframe is the last configured timeframe, the one
// config.defaultTimeframeWeights emphasises (spec §4.3 "typically
// emphasising the dashboard's primary timeframe").
func primaryTimeframe(timeframes []string) string {
	if len(timeframes) == 0 {
		return ""
	}
	return timeframes[len(timeframes)-1]
}

// historyWindow returns how far back to fetch bars for a given timeframe,
// generous enough to clear the feature engine's warmup requirement.
func historyWindow(timeframe string) time.Duration {
	bar := barDuration(timeframe)
	return bar * time.Duration(features.Warmup()*3)
}

func barDuration(timeframe string) time.Duration {
	switch timeframe {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
