// Package features implements the feature engine (spec §4.1, component
// C1): a versioned, deterministic, no-lookahead transform from an OHLCV
// series to a dense feature row, built on the same indicator library the
// teacher uses for its own scoring groups (github.com/markcheno/go-talib,
// plus gonum.org/v1/gonum/stat directly for the statistics talib doesn't
// provide: returns, annualised volatility, mean/stdev z-scores).
package features

import "github.com/indiatrader/core/internal/apperr"

// SchemaVersion is the feature-set version contract (spec §3: "the version
// is recorded with any trained model"; §4.1: "changing any definition
// requires a new version tag").
const SchemaVersion = "v1"

// field describes one feature's name and the minimum number of trailing
// bars required to compute it without producing a sentinel missing value.
type field struct {
	name     string
	lookback int
}

// schemaV1 is the ordered, fixed feature set for SchemaVersion "v1". Order
// matters: it is the column order of the materialised feature matrix.
var schemaV1 = []field{
	{"return_1", 2},
	{"return_5", 6},
	{"return_10", 11},
	{"return_20", 21},
	{"volatility_10", 11},
	{"volatility_20", 21},
	{"volatility_30", 31},
	{"sma_10", 10},
	{"sma_20", 20},
	{"sma_50", 50},
	{"sma_200", 200},
	{"ema_12", 12},
	{"ema_26", 26},
	{"ema_50", 50},
	{"macd_line", 35},
	{"macd_signal", 35},
	{"macd_hist", 35},
	{"rsi_7", 8},
	{"rsi_14", 15},
	{"rsi_21", 22},
	{"bb_mid", 20},
	{"bb_upper", 20},
	{"bb_lower", 20},
	{"bb_width", 20},
	{"bb_position", 20},
	{"atr_14", 15},
	{"adx_14", 28},
	{"stoch_k", 18},
	{"stoch_d", 18},
	{"williams_r", 14},
	{"cci_14", 14},
	{"roc_10", 11},
	{"obv", 2},
	{"ichimoku_conversion", 9},
	{"ichimoku_base", 26},
	{"ichimoku_leading_a", 52},
	{"ichimoku_leading_b", 52},
	{"ichimoku_lagging", 27},
	{"ma_cross_10_50", 50},
	{"ma_cross_20_200", 200},
	{"ma_cross_ema12_26", 26},
	{"price_position_20", 20},
	{"volume_zscore_20", 20},
}

// Names returns the ordered list of feature names for this schema version.
func Names() []string {
	names := make([]string, len(schemaV1))
	for i, f := range schemaV1 {
		names[i] = f.name
	}
	return names
}

// Warmup is the longest per-feature lookback in the schema: Compute refuses
// series shorter than this (spec §4.1 "fails with InsufficientHistory if
// len(series) < warmup").
func Warmup() int {
	max := 0
	for _, f := range schemaV1 {
		if f.lookback > max {
			max = f.lookback
		}
	}
	return max
}

func lookbackOf(name string) int {
	for _, f := range schemaV1 {
		if f.name == name {
			return f.lookback
		}
	}
	return 0
}

// newInsufficientHistory builds the standard error for a too-short series.
func newInsufficientHistory(op, symbol string) error {
	return apperr.New(apperr.InsufficientHistory, op, nil).WithSymbol(symbol)
}
