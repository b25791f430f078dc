// Package domain holds the core data model shared by every component of the
// signal pipeline: bars, predictions, signals, model metadata,
// performance observations, portfolio snapshots, cache entries and orders.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Bar is a single OHLCV candle for one instrument at one timeframe.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the single-bar invariants from the data model: finite,
// non-negative prices and volume.
func (b Bar) Validate() error {
	for name, v := range map[string]float64{"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s is not finite: %v", name, v)
		}
		if v < 0 {
			return fmt.Errorf("bar %s is negative: %v", name, v)
		}
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return fmt.Errorf("bar volume invalid: %v", b.Volume)
	}
	return nil
}

// Series is an ordered, timestamp-unique run of bars for one instrument.
type Series struct {
	Symbol string
	Bars   []Bar
}

// Validate enforces the series invariant: strictly ascending, unique
// timestamps, and that every bar is individually valid.
func (s Series) Validate() error {
	for i, b := range s.Bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("series %s: bar %d: %w", s.Symbol, i, err)
		}
		if i > 0 && !s.Bars[i-1].Timestamp.Before(b.Timestamp) {
			return fmt.Errorf("series %s: bars not strictly ascending at index %d", s.Symbol, i)
		}
	}
	return nil
}

// Closes returns the close-price column, used by most indicator functions.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high-price column.
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low-price column.
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volume column.
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}
