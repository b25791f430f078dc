package features

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// last returns the final element of a talib output slice, or the missing
// sentinel if the slice is empty, NaN or infinite — talib trailing
// indicators zero-pad their warmup prefix rather than NaN-pad it, so the
// caller is responsible for deciding (via schema lookback) whether a given
// index is still in warmup.
func last(xs []float64) float64 {
	if len(xs) == 0 {
		return Missing
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return v
}

func simpleReturn(closes []float64, n int) float64 {
	if len(closes) < n+1 {
		return Missing
	}
	prev := closes[len(closes)-1-n]
	if prev == 0 {
		return Missing
	}
	return (closes[len(closes)-1] - prev) / prev
}

// annualizedVolatility computes stdev of daily returns over the trailing
// window, annualised by sqrt(252), the same gonum/stat-backed style
// internal/ensemble/combiner.go uses for weightedStdDev.
func annualizedVolatility(closes []float64, window int) float64 {
	if len(closes) < window+1 {
		return Missing
	}
	tail := closes[len(closes)-window-1:]
	returns := dailyReturns(tail)
	if len(returns) < 2 {
		return Missing
	}
	return stat.StdDev(returns, nil) * math.Sqrt(252)
}

// dailyReturns converts a price series into simple period-over-period
// returns, returns[i] = (prices[i+1]-prices[i])/prices[i].
func dailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return returns
}

func highestLowest(xs []float64, window int) (hi, lo float64) {
	tail := xs[len(xs)-window:]
	hi, lo = tail[0], tail[0]
	for _, v := range tail {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return hi, lo
}

func volumeZScore(volumes []float64, window int) float64 {
	if len(volumes) < window {
		return Missing
	}
	tail := volumes[len(volumes)-window:]
	mean := stat.Mean(tail, nil)
	sd := stat.StdDev(tail, nil)
	if sd == 0 {
		return Missing
	}
	return (volumes[len(volumes)-1] - mean) / sd
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return Missing
	}
	return a / b
}
