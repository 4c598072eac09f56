package strategy

import (
	"time"

	"github.com/aristath/marketwatch/internal/model"
)

const (
	tcPivotLength  = 5
	tcTouchWindow  = 10
	tcStopPct      = 0.05
	tcTakeProfitMu = 1.5
	tcRSIPeriod    = 14
)

// TrendContinuation implements spec §4.H's "123" pivot-breakout strategy:
// a buy fires on a close breaking above the last confirmed pivot high that
// has not been touched again within the prior ten bars; sell is symmetric
// on pivot lows.
type TrendContinuation struct{}

func (TrendContinuation) Name() string { return "trend_continuation" }

// isPivotHigh reports whether bars[i].High is the max of the
// 2*length+1-wide window centred on i.
func isPivotHigh(bars []model.Bar, i, length int) bool {
	if i-length < 0 || i+length >= len(bars) {
		return false
	}
	v := bars[i].High
	for j := i - length; j <= i+length; j++ {
		if j != i && bars[j].High > v {
			return false
		}
	}
	return true
}

func isPivotLow(bars []model.Bar, i, length int) bool {
	if i-length < 0 || i+length >= len(bars) {
		return false
	}
	v := bars[i].Low
	for j := i - length; j <= i+length; j++ {
		if j != i && bars[j].Low < v {
			return false
		}
	}
	return true
}

func (tc *TrendContinuation) Apply(symbol model.Symbol, bars []model.Bar) ([]EnrichedBar, []model.Signal) {
	out := make([]EnrichedBar, len(bars))
	var signals []model.Signal

	// RSI is a supplementary enrichment indicator, not referenced by this
	// strategy's own pivot-breakout trigger, attached to every enriched bar
	// for chart/diagnostic consumers (spec §3: EnrichedBar.Indicators).
	rsi := RSI(closes(bars), tcRSIPeriod)

	var (
		highLevel      float64
		haveHighLevel  bool
		highLastTouch  int = -1 - tcTouchWindow
		lowLevel       float64
		haveLowLevel   bool
		lowLastTouch   int = -1 - tcTouchWindow
	)

	for i, b := range bars {
		// A pivot centred at p = i-length is confirmed once length bars
		// have elapsed past it.
		p := i - tcPivotLength
		if p >= 0 {
			if isPivotHigh(bars, p, tcPivotLength) {
				highLevel = bars[p].High
				haveHighLevel = true
				highLastTouch = p - tcTouchWindow - 1
			}
			if isPivotLow(bars, p, tcPivotLength) {
				lowLevel = bars[p].Low
				haveLowLevel = true
				lowLastTouch = p - tcTouchWindow - 1
			}
		}

		indicators := map[string]float64{}
		if haveHighLevel {
			indicators["pivot_high"] = highLevel
		}
		if haveLowLevel {
			indicators["pivot_low"] = lowLevel
		}
		if i < len(rsi) && !isNaN(rsi[i]) {
			indicators["rsi14"] = rsi[i]
		}
		out[i] = EnrichedBar{Bar: b, Indicators: indicators}

		if haveHighLevel && b.Close > highLevel && i-highLastTouch > tcTouchWindow {
			highLastTouch = i
			stopLoss := b.Close * (1 - tcStopPct)
			if haveLowLevel && lowLevel > stopLoss {
				stopLoss = lowLevel
			}
			takeProfit := b.Close + tcTakeProfitMu*(b.Close-stopLoss)
			signals = append(signals, model.Signal{
				Code: symbol.Symbol, Name: symbol.Name, Market: symbol.Market,
				Strategy: "trend_continuation", SignalType: model.SignalBuy,
				Price: b.Close, ChangePercent: b.PctChg, Volume: b.Vol,
				SignalDate: b.TradeDate, CalculatedTime: time.Now(), Index: i,
				StopLoss: &stopLoss, TakeProfit: &takeProfit,
			})
		}
		if haveLowLevel && b.Close < lowLevel && i-lowLastTouch > tcTouchWindow {
			lowLastTouch = i
			signals = append(signals, model.Signal{
				Code: symbol.Symbol, Name: symbol.Name, Market: symbol.Market,
				Strategy: "trend_continuation", SignalType: model.SignalSell,
				Price: b.Close, ChangePercent: b.PctChg, Volume: b.Vol,
				SignalDate: b.TradeDate, CalculatedTime: time.Now(), Index: i,
			})
		}
	}

	return out, signals
}
