package strategy

import (
	"github.com/aristath/marketwatch/internal/model"
)

const enhancedTrendPeriod = 18

// VolumeWaveEnhanced wraps VolumeWave with a single-position state machine
// (spec §4.H): a buy survives only when no position is open and close is
// above EMA(close,18); a sell only when a position is open.
type VolumeWaveEnhanced struct {
	base VolumeWave
}

func (VolumeWaveEnhanced) Name() string { return "volume_wave_enhanced" }

func (e *VolumeWaveEnhanced) Apply(symbol model.Symbol, bars []model.Bar) ([]EnrichedBar, []model.Signal) {
	enriched, raw := e.base.Apply(symbol, bars)

	trend := EMA(closes(bars), enhancedTrendPeriod)
	byIndex := make(map[int]model.Bar, len(bars))
	for i, b := range bars {
		byIndex[i] = b
	}

	var signals []model.Signal
	inPosition := false
	for _, sig := range raw {
		b := byIndex[sig.Index]
		switch sig.SignalType {
		case model.SignalBuy:
			if inPosition {
				continue
			}
			if b.Close <= trend[sig.Index] {
				continue
			}
			inPosition = true
			sig.Strategy = "volume_wave_enhanced"
			signals = append(signals, sig)
		case model.SignalSell:
			if !inPosition {
				continue
			}
			inPosition = false
			sig.Strategy = "volume_wave_enhanced"
			signals = append(signals, sig)
		}
	}

	for i := range enriched {
		enriched[i].Indicators["ema18"] = trend[i]
	}
	return enriched, signals
}
