package features

import (
	"github.com/markcheno/go-talib"

	"github.com/indiatrader/core/internal/domain"
)

// Compute derives the feature row for the bar at index t (the last bar of
// the slice series.Bars[:t+1]), using only bars with timestamp <= that
// bar's timestamp. Because the caller controls the slice, bars after t are
// never passed in at all — the no-lookahead property (spec §8 property 1)
// holds structurally, not just by convention, and is directly testable by
// shuffling series.Bars[t+1:] and asserting the result is unchanged.
func Compute(series domain.Series, t int) (Row, error) {
	if t < 0 || t >= len(series.Bars) {
		return nil, newInsufficientHistory("features.Compute", series.Symbol)
	}
	window := domain.Series{Symbol: series.Symbol, Bars: series.Bars[:t+1]}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if len(window.Bars) < Warmup() {
		return nil, newInsufficientHistory("features.Compute", series.Symbol)
	}
	return computeRow(window)
}

// MaterializeMatrix bulk-computes a feature row for every bar in series,
// marking the declared warmup prefix (per-feature, not per-row) as missing
// instead of failing outright (spec §4.1 bulk-materialisation contract).
// It fails only if the series itself is empty or unsorted.
func MaterializeMatrix(series domain.Series) (Matrix, error) {
	if len(series.Bars) == 0 {
		return Matrix{}, newInsufficientHistory("features.MaterializeMatrix", series.Symbol)
	}
	if err := series.Validate(); err != nil {
		return Matrix{}, err
	}

	rows := make([]Row, len(series.Bars))
	for i := range series.Bars {
		window := domain.Series{Symbol: series.Symbol, Bars: series.Bars[:i+1]}
		row, err := computeRow(window)
		if err != nil {
			return Matrix{}, err
		}
		for _, f := range schemaV1 {
			if i+1 < f.lookback {
				row[f.name] = Missing
			}
		}
		rows[i] = row
	}
	return Matrix{Version: SchemaVersion, Rows: rows}, nil
}

// computeRow computes every declared feature over the trailing window
// series (series.Bars ends at the row's timestamp). Features whose
// required lookback exceeds len(series.Bars) come back Missing from their
// own computation naturally (talib/zero-window guards), but MaterializeMatrix
// re-asserts the declared lookback explicitly so the contract doesn't
// depend on every indicator's internal warmup behaviour matching ours
// exactly.
func computeRow(series domain.Series) (Row, error) {
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	volumes := series.Volumes()
	n := len(closes)

	row := make(Row, len(schemaV1))

	row["return_1"] = simpleReturn(closes, 1)
	row["return_5"] = simpleReturn(closes, 5)
	row["return_10"] = simpleReturn(closes, 10)
	row["return_20"] = simpleReturn(closes, 20)

	row["volatility_10"] = annualizedVolatility(closes, 10)
	row["volatility_20"] = annualizedVolatility(closes, 20)
	row["volatility_30"] = annualizedVolatility(closes, 30)

	var sma10, sma20, sma50, sma200 float64 = Missing, Missing, Missing, Missing
	if n >= 10 {
		sma10 = last(talib.Sma(closes, 10))
	}
	if n >= 20 {
		sma20 = last(talib.Sma(closes, 20))
	}
	if n >= 50 {
		sma50 = last(talib.Sma(closes, 50))
	}
	if n >= 200 {
		sma200 = last(talib.Sma(closes, 200))
	}
	row["sma_10"], row["sma_20"], row["sma_50"], row["sma_200"] = sma10, sma20, sma50, sma200

	var ema12, ema26, ema50 float64 = Missing, Missing, Missing
	if n >= 12 {
		ema12 = last(talib.Ema(closes, 12))
	}
	if n >= 26 {
		ema26 = last(talib.Ema(closes, 26))
	}
	if n >= 50 {
		ema50 = last(talib.Ema(closes, 50))
	}
	row["ema_12"], row["ema_26"], row["ema_50"] = ema12, ema26, ema50

	if n >= 35 {
		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		row["macd_line"] = last(macd)
		row["macd_signal"] = last(signal)
		row["macd_hist"] = last(hist)
	} else {
		row["macd_line"], row["macd_signal"], row["macd_hist"] = Missing, Missing, Missing
	}

	row["rsi_7"] = rsiOrMissing(closes, 7)
	row["rsi_14"] = rsiOrMissing(closes, 14)
	row["rsi_21"] = rsiOrMissing(closes, 21)

	if n >= 20 {
		upper, mid, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
		u, m, l := last(upper), last(mid), last(lower)
		row["bb_mid"], row["bb_upper"], row["bb_lower"] = m, u, l
		row["bb_width"] = safeDiv(u-l, m)
		row["bb_position"] = safeDiv(closes[n-1]-l, u-l)
	} else {
		row["bb_mid"], row["bb_upper"], row["bb_lower"], row["bb_width"], row["bb_position"] = Missing, Missing, Missing, Missing, Missing
	}

	if n >= 15 {
		row["atr_14"] = last(talib.Atr(highs, lows, closes, 14))
	} else {
		row["atr_14"] = Missing
	}

	if n >= 28 {
		row["adx_14"] = last(talib.Adx(highs, lows, closes, 14))
	} else {
		row["adx_14"] = Missing
	}

	if n >= 16 {
		k, d := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
		row["stoch_k"] = last(k)
		row["stoch_d"] = last(d)
	} else {
		row["stoch_k"], row["stoch_d"] = Missing, Missing
	}

	if n >= 14 {
		row["williams_r"] = last(talib.WillR(highs, lows, closes, 14))
		row["cci_14"] = last(talib.Cci(highs, lows, closes, 14))
	} else {
		row["williams_r"], row["cci_14"] = Missing, Missing
	}

	if n >= 11 {
		row["roc_10"] = last(talib.Roc(closes, 10))
	} else {
		row["roc_10"] = Missing
	}

	if n >= 2 {
		row["obv"] = last(talib.Obv(closes, volumes))
	} else {
		row["obv"] = Missing
	}

	computeIchimoku(row, highs, lows, closes)

	row["ma_cross_10_50"] = safeDiv(sma10, sma50)
	row["ma_cross_20_200"] = safeDiv(sma20, sma200)
	row["ma_cross_ema12_26"] = safeDiv(ema12, ema26)

	if n >= 20 {
		hi, lo := highestLowest(highs, 20)
		loClose, _ := highestLowest(lows, 20)
		_ = loClose
		row["price_position_20"] = safeDiv(closes[n-1]-lo, hi-lo)
	} else {
		row["price_position_20"] = Missing
	}

	row["volume_zscore_20"] = volumeZScore(volumes, 20)

	return row, nil
}

func rsiOrMissing(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return Missing
	}
	return last(talib.Rsi(closes, period))
}

// computeIchimoku fills the conversion/base/leading/lagging features. The
// conversion, base and leading spans use only trailing highs/lows so they
// respect the no-lookahead contract; the lagging span is defined here as
// the close price from `lagging` bars back, the causal analogue of the
// classic "current close plotted back 26 bars" convention.
func computeIchimoku(row Row, highs, lows, closes []float64) {
	n := len(closes)
	const (
		conversionWindow = 9
		baseWindow       = 26
		leadingBWindow   = 52
		laggingOffset    = 26
	)

	if n >= conversionWindow {
		hi, _ := highestLowest(highs, conversionWindow)
		_, lo := highestLowest(lows, conversionWindow)
		row["ichimoku_conversion"] = (hi + lo) / 2
	} else {
		row["ichimoku_conversion"] = Missing
	}

	var base float64 = Missing
	if n >= baseWindow {
		hi, _ := highestLowest(highs, baseWindow)
		_, lo := highestLowest(lows, baseWindow)
		base = (hi + lo) / 2
	}
	row["ichimoku_base"] = base

	if !IsMissing(row["ichimoku_conversion"]) && !IsMissing(base) {
		row["ichimoku_leading_a"] = (row["ichimoku_conversion"] + base) / 2
	} else {
		row["ichimoku_leading_a"] = Missing
	}

	if n >= leadingBWindow {
		hi, _ := highestLowest(highs, leadingBWindow)
		_, lo := highestLowest(lows, leadingBWindow)
		row["ichimoku_leading_b"] = (hi + lo) / 2
	} else {
		row["ichimoku_leading_b"] = Missing
	}

	if n > laggingOffset {
		row["ichimoku_lagging"] = closes[n-1-laggingOffset]
	} else {
		row["ichimoku_lagging"] = Missing
	}
}
