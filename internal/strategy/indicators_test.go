package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEMASeedsFromFirstValue(t *testing.T) {
	series := []float64{10, 10, 10, 10}
	ema := EMA(series, 3)
	assert.Equal(t, 10.0, ema[0])
	for _, v := range ema {
		assert.InDelta(t, 10.0, v, 1e-9)
	}
}

func TestEMACarriesForwardOnNaN(t *testing.T) {
	nan := func() float64 { var f float64; return f / f }()
	series := []float64{10, nan, 12}
	ema := EMA(series, 3)
	assert.Equal(t, ema[0], ema[1])
}

func TestATRFirstValueIsHighMinusLow(t *testing.T) {
	high := []float64{10, 11, 12}
	low := []float64{8, 9, 10}
	close := []float64{9, 10, 11}
	atr := ATR(high, low, close, 2)
	assert.Equal(t, 2.0, atr[0])
}

func TestXSAFirstValueSeedsFromSeries(t *testing.T) {
	out := XSA([]float64{5, 6, 7}, 10, 2)
	assert.Equal(t, 5.0, out[0])
}

func TestXSLZeroBeforeWindowFilled(t *testing.T) {
	series := make([]float64, 5)
	for i := range series {
		series[i] = float64(i)
	}
	out := XSL(series, 10)
	for _, v := range out {
		assert.Equal(t, 0.0, v)
	}
}

func TestXSLDetectsPositiveSlope(t *testing.T) {
	series := make([]float64, 25)
	for i := range series {
		series[i] = float64(i)
	}
	out := XSL(series, 21)
	assert.InDelta(t, 1.0, out[24], 1e-6)
}
