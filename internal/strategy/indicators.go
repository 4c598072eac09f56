// Package strategy implements the signal computation engine (spec §4.H):
// fixed indicator math plus a compile-time registry of strategies, each
// exposing Apply(bars) -> (bars_with_indicators, signals).
package strategy

import (
	"github.com/aristath/marketwatch/internal/model"
	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// EMA computes the exponential moving average over the full series:
// ema_0 = series_0; ema_i = α·series_i + (1-α)·ema_{i-1}, α = 2/(n+1).
// NaN inputs carry the previous EMA value forward rather than poisoning
// the recursion.
func EMA(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	alpha := 2.0 / (float64(n) + 1.0)
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		v := series[i]
		if isNaN(v) {
			out[i] = out[i-1]
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// ATR computes Wilder-smoothed average true range (spec §4.H): TR_0 =
// H_0-L_0; ATR_i = (1/n)·TR_i + (1-1/n)·ATR_{i-1}.
func ATR(high, low, close []float64, n int) []float64 {
	out := make([]float64, len(high))
	if len(high) == 0 {
		return out
	}
	tr := make([]float64, len(high))
	tr[0] = high[0] - low[0]
	for i := 1; i < len(high); i++ {
		a := high[i] - low[i]
		b := absF(high[i] - close[i-1])
		c := absF(low[i] - close[i-1])
		tr[i] = maxF(a, maxF(b, c))
	}
	out[0] = tr[0]
	invN := 1.0 / float64(n)
	for i := 1; i < len(tr); i++ {
		out[i] = invN*tr[i] + (1-invN)*out[i-1]
	}
	return out
}

// XSL computes the Volume-Wave "linreg slope" helper: an OLS fit over the
// last `length` points ending at bar i, returning the difference between
// the fitted value at i and at i-1. Backed by gonum's OLS implementation
// rather than a hand-rolled normal-equations solve.
func XSL(series []float64, length int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < length-1 {
			continue
		}
		window := series[i-length+1 : i+1]
		xs := make([]float64, length)
		for j := range xs {
			xs[j] = float64(j)
		}
		alpha, beta := stat.LinearRegression(xs, window, nil, false)
		cur := alpha + beta*float64(length-1)
		prev := alpha + beta*float64(length-2)
		out[i] = cur - prev
	}
	return out
}

// XSA is Volume-Wave's "exponential weighted MA": a cumulative moving sum
// blended per bar as (src·w + prev·(len-w)) / len.
func XSA(series []float64, length, weight int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	out[0] = series[0]
	w := float64(weight)
	l := float64(length)
	for i := 1; i < len(series); i++ {
		out[i] = (series[i]*w + out[i-1]*(l-w)) / l
	}
	return out
}

// RSI is a supplementary enrichment indicator (not referenced by any
// signal-triggering rule in this spec) computed via go-talib and attached
// to EnrichedBar.Indicators for chart/diagnostic consumers.
func RSI(series []float64, n int) []float64 {
	return talib.Rsi(series, n)
}

func isNaN(f float64) bool { return f != f }

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// closes extracts the close series from bars.
func closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highs(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}
