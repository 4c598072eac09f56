package strategy

import (
	"time"

	"github.com/aristath/marketwatch/internal/model"
)

const (
	vcKeyValue  = 1.0
	vcATRPeriod = 10
)

// VolatilityConservation implements spec §4.H's ATR trailing-stop
// strategy: the stop only rises in an up-trend, only falls in a
// down-trend, and flips to the opposite bound otherwise.
type VolatilityConservation struct{}

func (VolatilityConservation) Name() string { return "volatility_conservation" }

func (vc *VolatilityConservation) trailingStop(bars []model.Bar) []float64 {
	atr := ATR(highs(bars), lows(bars), closes(bars), vcATRPeriod)
	x := make([]float64, len(bars))
	if len(bars) == 0 {
		return x
	}
	nLoss0 := vcKeyValue * atr[0]
	x[0] = bars[0].Close - nLoss0

	for i := 1; i < len(bars); i++ {
		nLoss := vcKeyValue * atr[i]
		close := bars[i].Close
		prevClose := bars[i-1].Close
		prevX := x[i-1]

		switch {
		case close > prevX && prevClose > prevX:
			x[i] = maxF(prevX, close-nLoss)
		case close < prevX && prevClose < prevX:
			x[i] = minF(prevX, close+nLoss)
		case close > prevX:
			x[i] = close - nLoss
		default:
			x[i] = close + nLoss
		}
	}
	return x
}

func (vc *VolatilityConservation) Apply(symbol model.Symbol, bars []model.Bar) ([]EnrichedBar, []model.Signal) {
	x := vc.trailingStop(bars)
	close := closes(bars)

	out := make([]EnrichedBar, len(bars))
	var signals []model.Signal
	for i, b := range bars {
		out[i] = EnrichedBar{Bar: b, Indicators: map[string]float64{"trailing_stop": x[i]}}
		if i == 0 {
			continue
		}
		crossedUp := close[i-1] <= x[i-1] && close[i] > x[i]
		crossedDown := close[i-1] >= x[i-1] && close[i] < x[i]
		switch {
		case crossedUp:
			signals = append(signals, model.Signal{
				Code: symbol.Symbol, Name: symbol.Name, Market: symbol.Market,
				Strategy: "volatility_conservation", SignalType: model.SignalBuy,
				Price: b.Close, ChangePercent: b.PctChg, Volume: b.Vol,
				SignalDate: b.TradeDate, CalculatedTime: time.Now(), Index: i,
			})
		case crossedDown:
			signals = append(signals, model.Signal{
				Code: symbol.Symbol, Name: symbol.Name, Market: symbol.Market,
				Strategy: "volatility_conservation", SignalType: model.SignalSell,
				Price: b.Close, ChangePercent: b.PctChg, Volume: b.Vol,
				SignalDate: b.TradeDate, CalculatedTime: time.Now(), Index: i,
			})
		}
	}
	return out, signals
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
