package strategy

import (
	"testing"
	"time"

	"github.com/aristath/marketwatch/internal/model"
	"github.com/stretchr/testify/assert"
)

func syntheticBars(n int, spikeAt int) []model.Bar {
	bars := make([]model.Bar, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		close := 100.0 * (1 + 0.001*float64(i))
		if i == spikeAt {
			close *= 0.9
		}
		bars[i] = model.Bar{
			TradeDate: base.AddDate(0, 0, i).Format("2006-01-02"),
			Open:      close,
			High:      close + 0.5,
			Low:       close - 0.5,
			Close:     close,
			Vol:       1000,
		}
	}
	return bars
}

func TestVolumeWaveSpikeRecovery(t *testing.T) {
	bars := syntheticBars(120, 60)
	vw := &VolumeWave{}
	_, signals := vw.Apply(model.Symbol{Symbol: "600519"}, bars)

	var buys, sellsAfterSpike int
	for _, s := range signals {
		if s.SignalType == model.SignalBuy {
			buys++
			assert.GreaterOrEqual(t, s.Index, 1)
			assert.LessOrEqual(t, s.Index, 59)
		}
		if s.SignalType == model.SignalSell && s.Index >= 60 && s.Index <= 69 {
			sellsAfterSpike++
		}
	}
	assert.Equal(t, 1, buys)
	assert.Equal(t, 0, sellsAfterSpike)
}

func TestVolumeWaveEnhancedNeverDoubleBuys(t *testing.T) {
	bars := syntheticBars(150, 75)
	e := &VolumeWaveEnhanced{}
	_, signals := e.Apply(model.Symbol{Symbol: "600519"}, bars)

	inPosition := false
	for _, s := range signals {
		if s.SignalType == model.SignalBuy {
			assert.False(t, inPosition, "buy while already in position")
			inPosition = true
		} else {
			assert.True(t, inPosition, "sell while no position open")
			inPosition = false
		}
	}
}

func TestVolatilityConservationStopOnlyMovesInTrendDirection(t *testing.T) {
	bars := syntheticBars(80, 40)
	vc := &VolatilityConservation{}
	enriched, _ := vc.Apply(model.Symbol{Symbol: "600519"}, bars)
	assert.Len(t, enriched, 80)
	assert.Contains(t, enriched[10].Indicators, "trailing_stop")

	for i := 1; i < len(enriched); i++ {
		prevX := enriched[i-1].Indicators["trailing_stop"]
		x := enriched[i].Indicators["trailing_stop"]
		if bars[i].Close > prevX && bars[i-1].Close > prevX {
			assert.GreaterOrEqual(t, x, prevX, "stop fell during an up-trend at bar %d", i)
		}
		if bars[i].Close < prevX && bars[i-1].Close < prevX {
			assert.LessOrEqual(t, x, prevX, "stop rose during a down-trend at bar %d", i)
		}
	}
}

func TestTrendContinuationBuySignalHasStopAndTakeProfit(t *testing.T) {
	bars := make([]model.Bar, 0, 60)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		bars = append(bars, model.Bar{
			TradeDate: base.AddDate(0, 0, i).Format("2006-01-02"),
			Open: 10, High: 10.2, Low: 9.8, Close: 10, Vol: 100,
		})
	}
	for i := 30; i < 60; i++ {
		v := 10 + float64(i-29)*0.3
		bars = append(bars, model.Bar{
			TradeDate: base.AddDate(0, 0, i).Format("2006-01-02"),
			Open: v, High: v + 0.2, Low: v - 0.2, Close: v, Vol: 100,
		})
	}

	tc := &TrendContinuation{}
	_, signals := tc.Apply(model.Symbol{Symbol: "600519"}, bars)

	found := false
	for _, s := range signals {
		if s.SignalType == model.SignalBuy {
			found = true
			requireNotNil(t, s.StopLoss)
			requireNotNil(t, s.TakeProfit)
			assert.Greater(t, *s.TakeProfit, s.Price)
		}
	}
	assert.True(t, found, "expected at least one breakout buy signal")
}

func requireNotNil(t *testing.T, v *float64) {
	t.Helper()
	if v == nil {
		t.Fatal("expected non-nil pointer")
	}
}

func TestStrategyRegistryHasAllFourStrategies(t *testing.T) {
	names := Names()
	assert.ElementsMatch(t, []string{
		"volume_wave", "volume_wave_enhanced", "volatility_conservation", "trend_continuation",
	}, names)
}

func TestApplyIsIdempotent(t *testing.T) {
	bars := syntheticBars(100, 50)
	vw := &VolumeWave{}
	_, s1 := vw.Apply(model.Symbol{Symbol: "600519"}, bars)
	_, s2 := vw.Apply(model.Symbol{Symbol: "600519"}, bars)
	assert.Equal(t, len(s1), len(s2))
	for i := range s1 {
		assert.Equal(t, s1[i].Index, s2[i].Index)
		assert.Equal(t, s1[i].SignalType, s2[i].SignalType)
	}
}
