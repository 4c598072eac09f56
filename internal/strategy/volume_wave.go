package strategy

import (
	"time"

	"github.com/aristath/marketwatch/internal/model"
)

const (
	angelPeriod   = 2
	xslLength     = 21
	xslMultiplier = 20.0
	devilPeriod   = 42
)

// VolumeWave implements spec §4.H's "volume_wave" strategy: angel/devil
// EMA crossover on an XSL-adjusted close.
type VolumeWave struct{}

func (VolumeWave) Name() string { return "volume_wave" }

// computeLines returns angel, devil for reuse by VolumeWaveEnhanced.
func computeLines(bars []model.Bar) (angel, devil []float64) {
	close := closes(bars)
	angel = EMA(close, angelPeriod)

	xsl := XSL(close, xslLength)
	adjusted := make([]float64, len(close))
	for i := range close {
		adjusted[i] = xsl[i]*xslMultiplier + close[i]
	}
	devil = EMA(adjusted, devilPeriod)
	return angel, devil
}

func (vw *VolumeWave) Apply(symbol model.Symbol, bars []model.Bar) ([]EnrichedBar, []model.Signal) {
	angel, devil := computeLines(bars)

	out := make([]EnrichedBar, len(bars))
	var signals []model.Signal
	for i, b := range bars {
		out[i] = EnrichedBar{Bar: b, Indicators: map[string]float64{"angel": angel[i], "devil": devil[i]}}
		if i == 0 {
			continue
		}
		crossedUp := angel[i-1] <= devil[i-1] && angel[i] > devil[i]
		crossedDown := angel[i-1] >= devil[i-1] && angel[i] < devil[i]
		switch {
		case crossedUp:
			signals = append(signals, vw.signal(symbol, b, i, model.SignalBuy))
		case crossedDown:
			signals = append(signals, vw.signal(symbol, b, i, model.SignalSell))
		}
	}
	return out, signals
}

func (VolumeWave) signal(symbol model.Symbol, b model.Bar, index int, kind model.SignalType) model.Signal {
	return model.Signal{
		Code:           symbol.Symbol,
		Name:           symbol.Name,
		Market:         symbol.Market,
		Strategy:       "volume_wave",
		SignalType:     kind,
		Price:          b.Close,
		ChangePercent:  b.PctChg,
		Volume:         b.Vol,
		SignalDate:     b.TradeDate,
		CalculatedTime: time.Now(),
		Index:          index,
	}
}
